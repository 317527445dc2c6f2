package rollout

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

func testDims() map[string][3]int {
	return map[string][3]int{
		"identity": {2, 2, 2},
	}
}

func TestOwningBufferReadWrite(tst *testing.T) {
	b := NewOwningBuffer(4, testDims(), 1)
	if b.Len() != 4 {
		tst.Fatalf("expected Len 4, got %d", b.Len())
	}
	b.SetPoses("identity", 1, la.Vector{1, 2})
	chk.Vector(tst, "poses col 1", 1e-17, []float64{b.Poses("identity").Get(0, 1), b.Poses("identity").Get(1, 1)}, []float64{1, 2})

	b.SetVels("identity", 2, la.Vector{3, 4})
	chk.Vector(tst, "vels col 2", 1e-17, []float64{b.Vels("identity").Get(0, 2), b.Vels("identity").Get(1, 2)}, []float64{3, 4})

	b.SetForces("identity", 0, la.Vector{5, 6})
	chk.Vector(tst, "forces col 0", 1e-17, []float64{b.Forces("identity").Get(0, 0), b.Forces("identity").Get(1, 0)}, []float64{5, 6})
}

func TestOwningBufferRequiresIdentity(tst *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			tst.Fatalf("expected a panic when dims omits the identity mapping")
		}
	}()
	NewOwningBuffer(2, map[string][3]int{"other": {1, 1, 1}}, 0)
}

func TestOwningBufferUnknownMappingPanics(tst *testing.T) {
	b := NewOwningBuffer(2, testDims(), 0)
	defer func() {
		if r := recover(); r == nil {
			tst.Fatalf("expected a panic reading an unregistered mapping")
		}
	}()
	b.Poses("nonexistent")
}

func TestOwningBufferMetadataMissingReturnsEmpty(tst *testing.T) {
	b := NewOwningBuffer(2, testDims(), 0)
	m := b.Metadata("missing-key")
	if m.M != 0 || m.N != 0 {
		tst.Fatalf("expected empty matrix for missing metadata, got %dx%d", m.M, m.N)
	}
	custom := la.NewMatrix(2, 2)
	b.SetMetadata("k", custom)
	if b.Metadata("k") != custom {
		tst.Fatalf("expected SetMetadata/Metadata round trip to return the same matrix")
	}
}

func TestSliceBufferAliasesBacking(tst *testing.T) {
	b := NewOwningBuffer(5, testDims(), 0)
	for t := 0; t < 5; t++ {
		b.SetPoses("identity", t, la.Vector{float64(t), float64(t) * 2})
	}

	s := b.Slice(2, 2)
	if s.Len() != 2 {
		tst.Fatalf("expected slice length 2, got %d", s.Len())
	}
	chk.Vector(tst, "slice col 0", 1e-17, []float64{s.Poses("identity").Get(0, 0), s.Poses("identity").Get(1, 0)}, []float64{2, 4})
	chk.Vector(tst, "slice col 1", 1e-17, []float64{s.Poses("identity").Get(0, 1), s.Poses("identity").Get(1, 1)}, []float64{3, 6})

	// writes through the mutable slice are visible in the backing buffer
	s.SetPoses("identity", 0, la.Vector{99, 99})
	chk.Vector(tst, "backing col 2 after slice write", 1e-17,
		[]float64{b.Poses("identity").Get(0, 2), b.Poses("identity").Get(1, 2)}, []float64{99, 99})
}

func TestSliceOutOfRangePanics(tst *testing.T) {
	b := NewOwningBuffer(3, testDims(), 0)
	defer func() {
		if r := recover(); r == nil {
			tst.Fatalf("expected a panic slicing out of range")
		}
	}()
	b.Slice(2, 5)
}

// TestConstSliceWriteIsProgramContractViolation exercises spec.md §7's
// "write on const slice: immediate program-contract violation".
func TestConstSliceWriteIsProgramContractViolation(tst *testing.T) {
	b := NewOwningBuffer(3, testDims(), 0)
	cs := b.ConstSlice(0, 3)
	defer func() {
		if r := recover(); r == nil {
			tst.Fatalf("expected a panic writing to a const slice")
		}
	}()
	cs.SetPoses("identity", 0, la.Vector{1, 1})
}

func TestConstSliceReadsStillWork(tst *testing.T) {
	b := NewOwningBuffer(3, testDims(), 0)
	b.SetPoses("identity", 1, la.Vector{7, 8})
	cs := b.ConstSlice(0, 3)
	chk.Vector(tst, "const slice read", 1e-17, []float64{cs.Poses("identity").Get(0, 1), cs.Poses("identity").Get(1, 1)}, []float64{7, 8})
}

func TestDeepCopyIsIndependent(tst *testing.T) {
	b := NewOwningBuffer(2, testDims(), 1)
	b.SetPoses("identity", 0, la.Vector{1, 1})
	b.Masses()[0] = 3.0

	cp := b.DeepCopy()
	cp.SetPoses("identity", 0, la.Vector{9, 9})
	cp.Masses()[0] = 100.0

	chk.Vector(tst, "original poses unaffected", 1e-17,
		[]float64{b.Poses("identity").Get(0, 0), b.Poses("identity").Get(1, 0)}, []float64{1, 1})
	chk.Scalar(tst, "original mass unaffected", 1e-17, b.Masses()[0], 3.0)
	chk.Scalar(tst, "copy mass", 1e-17, cp.Masses()[0], 100.0)
}

func TestSliceDeepCopy(tst *testing.T) {
	b := NewOwningBuffer(4, testDims(), 0)
	for t := 0; t < 4; t++ {
		b.SetPoses("identity", t, la.Vector{float64(t), float64(t)})
	}
	s := b.Slice(1, 2)
	cp := s.DeepCopy()
	if cp.Len() != 2 {
		tst.Fatalf("expected deep-copied slice length 2, got %d", cp.Len())
	}
	chk.Vector(tst, "copied slice col 0", 1e-17,
		[]float64{cp.Poses("identity").Get(0, 0), cp.Poses("identity").Get(1, 0)}, []float64{1, 1})

	// mutating the backing buffer must not affect the already-taken copy
	b.SetPoses("identity", 1, la.Vector{-1, -1})
	chk.Vector(tst, "copy still holds old value", 1e-17,
		[]float64{cp.Poses("identity").Get(0, 0), cp.Poses("identity").Get(1, 0)}, []float64{1, 1})
}
