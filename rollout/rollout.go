// Package rollout implements the dense, column-major trajectory buffer
// the shooting-method core reads and writes: per-mapping poses,
// velocities and forces over a fixed time window, a mass vector, and
// free-form metadata. Owning and borrowed (sliced) variants share one
// interface, per the "tagged sum over mutability" design note.
package rollout

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
)

// columns holds the three matrices recorded for one registered mapping
// name: poses[m] ∈ R^{posDim x T}, vels[m] ∈ R^{velDim x T},
// forces[m] ∈ R^{forceDim x T}.
type columns struct {
	poses  *la.Matrix
	vels   *la.Matrix
	forces *la.Matrix
}

// Buffer is the interface shared by owning and borrowed rollout
// variants. A const slice implements every method but panics (a
// program-contract violation) from the mutating ones, per spec §9's
// "the source chooses stubs" resolution of the Open Question.
type Buffer interface {
	Len() int
	MappingNames() []string

	Poses(name string) *la.Matrix
	Vels(name string) *la.Matrix
	Forces(name string) *la.Matrix
	Masses() la.Vector
	Metadata(key string) *la.Matrix

	SetPoses(name string, col int, v la.Vector)
	SetVels(name string, col int, v la.Vector)
	SetForces(name string, col int, v la.Vector)
	SetMetadata(key string, value *la.Matrix)

	// Slice returns a mutable borrowing view over columns
	// [start, start+length). Its lifetime must not exceed the backing
	// rollout (spec §4.2).
	Slice(start, length int) Buffer

	// ConstSlice is the same borrowing view, but forbids writes.
	ConstSlice(start, length int) Buffer

	// DeepCopy duplicates every matrix by value into a fresh
	// OwningBuffer, independent of this buffer's backing storage. A
	// SliceBuffer's copy holds its window's poses/vels/forces and the
	// masses; metadata is not copied.
	DeepCopy() *OwningBuffer
}

// OwningBuffer allocates and owns all of its matrices.
type OwningBuffer struct {
	t        int
	byName   map[string]*columns
	masses   la.Vector
	metadata map[string]*la.Matrix
}

// NewOwningBuffer allocates a rollout of T timesteps. dims maps mapping
// name to (posDim, velDim, forceDim); IdentityName must be present per
// the "identity mapping is always present" invariant (spec §3).
func NewOwningBuffer(t int, dims map[string][3]int, numMasses int) *OwningBuffer {
	if _, ok := dims["identity"]; !ok {
		chk.Panic("rollout: dims must include the %q mapping", "identity")
	}
	b := &OwningBuffer{
		t:        t,
		byName:   make(map[string]*columns, len(dims)),
		masses:   la.NewVector(numMasses),
		metadata: make(map[string]*la.Matrix),
	}
	for name, d := range dims {
		posDim, velDim, forceDim := d[0], d[1], d[2]
		b.byName[name] = &columns{
			poses:  la.NewMatrix(posDim, t),
			vels:   la.NewMatrix(velDim, t),
			forces: la.NewMatrix(forceDim, t),
		}
	}
	return b
}

func (b *OwningBuffer) Len() int { return b.t }

func (b *OwningBuffer) MappingNames() []string {
	names := make([]string, 0, len(b.byName))
	for name := range b.byName {
		names = append(names, name)
	}
	return names
}

func (b *OwningBuffer) get(name string) *columns {
	c, ok := b.byName[name]
	if !ok {
		chk.Panic("rollout: unknown mapping %q", name)
	}
	return c
}

func (b *OwningBuffer) Poses(name string) *la.Matrix  { return b.get(name).poses }
func (b *OwningBuffer) Vels(name string) *la.Matrix   { return b.get(name).vels }
func (b *OwningBuffer) Forces(name string) *la.Matrix { return b.get(name).forces }
func (b *OwningBuffer) Masses() la.Vector             { return b.masses }

func (b *OwningBuffer) Metadata(key string) *la.Matrix {
	m, ok := b.metadata[key]
	if !ok {
		io.Pfyel("rollout: metadata key %q not found, returning zero matrix\n", key)
		return la.NewMatrix(0, 0)
	}
	return m
}

func (b *OwningBuffer) SetMetadata(key string, value *la.Matrix) {
	b.metadata[key] = value
}

func setColumn(m *la.Matrix, col int, v la.Vector) {
	if len(v) != m.M {
		chk.Panic("rollout: column vector has length %d, want %d", len(v), m.M)
	}
	for i, val := range v {
		m.Set(i, col, val)
	}
}

func (b *OwningBuffer) SetPoses(name string, col int, v la.Vector)  { setColumn(b.get(name).poses, col, v) }
func (b *OwningBuffer) SetVels(name string, col int, v la.Vector)   { setColumn(b.get(name).vels, col, v) }
func (b *OwningBuffer) SetForces(name string, col int, v la.Vector) { setColumn(b.get(name).forces, col, v) }

func (b *OwningBuffer) Slice(start, length int) Buffer {
	return newSliceBuffer(b, start, length, false)
}

func (b *OwningBuffer) ConstSlice(start, length int) Buffer {
	return newSliceBuffer(b, start, length, true)
}

// DeepCopy duplicates every matrix by value.
func (b *OwningBuffer) DeepCopy() *OwningBuffer {
	cp := &OwningBuffer{
		t:        b.t,
		byName:   make(map[string]*columns, len(b.byName)),
		masses:   cloneVector(b.masses),
		metadata: make(map[string]*la.Matrix, len(b.metadata)),
	}
	for name, c := range b.byName {
		cp.byName[name] = &columns{
			poses:  cloneMatrix(c.poses),
			vels:   cloneMatrix(c.vels),
			forces: cloneMatrix(c.forces),
		}
	}
	for key, m := range b.metadata {
		cp.metadata[key] = cloneMatrix(m)
	}
	return cp
}

// cloneMatrix duplicates a matrix's column-major data into a new,
// independently-owned matrix.
func cloneMatrix(m *la.Matrix) *la.Matrix {
	out := la.NewMatrix(m.M, m.N)
	copy(out.Data, m.Data)
	return out
}

// cloneVector duplicates a vector's data into a new, independently
// owned vector.
func cloneVector(v la.Vector) la.Vector {
	out := make(la.Vector, len(v))
	copy(out, v)
	return out
}
