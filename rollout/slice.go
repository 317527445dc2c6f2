package rollout

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// SliceBuffer is a lightweight borrowing view over columns
// [start, start+length) of a backing Buffer. Because rollout matrices
// are column-major, a column range is contiguous in memory, so the
// view's matrices alias the backing storage directly rather than
// copying it.
type SliceBuffer struct {
	backing  Buffer
	start    int
	length   int
	readOnly bool
}

func newSliceBuffer(backing Buffer, start, length int, readOnly bool) *SliceBuffer {
	if start < 0 || length < 0 || start+length > backing.Len() {
		chk.Panic("rollout: slice [%d, %d) out of range for buffer of length %d", start, start+length, backing.Len())
	}
	return &SliceBuffer{backing: backing, start: start, length: length, readOnly: readOnly}
}

func (s *SliceBuffer) Len() int                  { return s.length }
func (s *SliceBuffer) MappingNames() []string    { return s.backing.MappingNames() }
func (s *SliceBuffer) Masses() la.Vector         { return s.backing.Masses() }
func (s *SliceBuffer) Metadata(key string) *la.Matrix { return s.backing.Metadata(key) }

// sliceCols returns a matrix view aliasing columns
// [s.start, s.start+s.length) of a full-window matrix.
func sliceCols(m *la.Matrix, start, length int) *la.Matrix {
	return &la.Matrix{M: m.M, N: length, Data: m.Data[start*m.M : (start+length)*m.M]}
}

func (s *SliceBuffer) Poses(name string) *la.Matrix  { return sliceCols(s.backing.Poses(name), s.start, s.length) }
func (s *SliceBuffer) Vels(name string) *la.Matrix   { return sliceCols(s.backing.Vels(name), s.start, s.length) }
func (s *SliceBuffer) Forces(name string) *la.Matrix { return sliceCols(s.backing.Forces(name), s.start, s.length) }

func (s *SliceBuffer) SetPoses(name string, col int, v la.Vector) {
	s.checkWritable()
	s.backing.SetPoses(name, s.start+col, v)
}

func (s *SliceBuffer) SetVels(name string, col int, v la.Vector) {
	s.checkWritable()
	s.backing.SetVels(name, s.start+col, v)
}

func (s *SliceBuffer) SetForces(name string, col int, v la.Vector) {
	s.checkWritable()
	s.backing.SetForces(name, s.start+col, v)
}

func (s *SliceBuffer) SetMetadata(key string, value *la.Matrix) {
	s.checkWritable()
	s.backing.SetMetadata(key, value)
}

// checkWritable aborts with a program-contract violation if this is a
// const slice (spec §7: "write on const slice").
func (s *SliceBuffer) checkWritable() {
	if s.readOnly {
		chk.Panic("rollout: write attempted on const slice [%d, %d)", s.start, s.start+s.length)
	}
}

func (s *SliceBuffer) Slice(start, length int) Buffer {
	return newSliceBuffer(s.backing, s.start+start, length, s.readOnly)
}

func (s *SliceBuffer) ConstSlice(start, length int) Buffer {
	return newSliceBuffer(s.backing, s.start+start, length, true)
}

func (s *SliceBuffer) DeepCopy() *OwningBuffer {
	dims := make(map[string][3]int)
	for _, name := range s.MappingNames() {
		dims[name] = [3]int{s.Poses(name).M, s.Vels(name).M, s.Forces(name).M}
	}
	out := NewOwningBuffer(s.length, dims, len(s.Masses()))
	for _, name := range s.MappingNames() {
		copy(out.Poses(name).Data, s.Poses(name).Data)
		copy(out.Vels(name).Data, s.Vels(name).Data)
		copy(out.Forces(name).Data, s.Forces(name).Data)
	}
	copy(out.masses, s.Masses())
	return out
}
