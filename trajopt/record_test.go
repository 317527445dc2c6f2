package trajopt

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

func TestOptimizationRecordTracksBest(tst *testing.T) {
	r := NewOptimizationRecord()
	r.Append(la.Vector{1, 1}, 5.0, la.Vector{0, 0}, la.Vector{}, nil, nil)
	r.Append(la.Vector{2, 2}, 2.0, la.Vector{0, 0}, la.Vector{}, nil, nil)
	r.Append(la.Vector{3, 3}, 4.0, la.Vector{0, 0}, la.Vector{}, nil, nil)

	best, ok := r.Best()
	if !ok {
		tst.Fatalf("expected a best iteration")
	}
	chk.Scalar(tst, "best loss", 1e-17, best.Loss, 2.0)
	chk.Vector(tst, "best x", 1e-17, best.X, []float64{2, 2})
	if best.Index != 1 {
		tst.Fatalf("expected best index 1, got %d", best.Index)
	}
}

func TestOptimizationRecordEmptyHasNoBest(tst *testing.T) {
	r := NewOptimizationRecord()
	if _, ok := r.Best(); ok {
		tst.Fatalf("expected no best on an empty record")
	}
	if _, ok := r.Reoptimize(); ok {
		tst.Fatalf("expected Reoptimize to fail on an empty record")
	}
}

func TestOptimizationRecordReoptimizeClearsLog(tst *testing.T) {
	r := NewOptimizationRecord()
	r.Append(la.Vector{1}, 9.0, la.Vector{0}, la.Vector{}, nil, nil)
	r.Append(la.Vector{2}, 1.0, la.Vector{0}, la.Vector{}, nil, nil)

	startX, ok := r.Reoptimize()
	if !ok {
		tst.Fatalf("expected Reoptimize to succeed")
	}
	chk.Vector(tst, "restart x", 1e-17, startX, []float64{2})
	if len(r.Iterations) != 0 {
		tst.Fatalf("expected Reoptimize to clear the iteration log, got %d entries", len(r.Iterations))
	}
	if _, ok := r.Best(); ok {
		tst.Fatalf("expected no best immediately after Reoptimize")
	}
}

func TestOptimizationRecordIndexesSequentially(tst *testing.T) {
	r := NewOptimizationRecord()
	for i := 0; i < 4; i++ {
		r.Append(la.Vector{float64(i)}, float64(i), la.Vector{0}, la.Vector{}, nil, nil)
	}
	for i, it := range r.Iterations {
		if it.Index != i {
			tst.Fatalf("iteration %d has Index %d", i, it.Index)
		}
	}
}
