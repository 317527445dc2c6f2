package trajopt

import (
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/rollout"
)

// IterationRecord is one append-only entry in an OptimizationRecord:
// the solver's state at a single iteration (spec §4.7).
type IterationRecord struct {
	Index          int
	X              la.Vector
	Loss           float64
	Gradient       la.Vector
	Constraints    la.Vector
	SparseJacobian []float64
	Rollout        *rollout.OwningBuffer
}

// OptimizationRecord accumulates one IterationRecord per solver
// iteration and tracks the best loss seen so far, supporting
// reoptimization from that best point (spec §4.7).
type OptimizationRecord struct {
	Iterations []IterationRecord

	bestIndex int
	bestLoss  float64
	haveBest  bool
}

// NewOptimizationRecord returns an empty record.
func NewOptimizationRecord() *OptimizationRecord {
	return &OptimizationRecord{}
}

// Append records one iteration and updates the running best.
func (r *OptimizationRecord) Append(x la.Vector, loss float64, gradient, constraints la.Vector, sparseJacobian []float64, snapshot *rollout.OwningBuffer) {
	entry := IterationRecord{
		Index:          len(r.Iterations),
		X:              append(la.Vector{}, x...),
		Loss:           loss,
		Gradient:       append(la.Vector{}, gradient...),
		Constraints:    append(la.Vector{}, constraints...),
		SparseJacobian: append([]float64{}, sparseJacobian...),
		Rollout:        snapshot,
	}
	r.Iterations = append(r.Iterations, entry)
	if !r.haveBest || loss < r.bestLoss {
		r.bestIndex = entry.Index
		r.bestLoss = loss
		r.haveBest = true
	}
}

// Best returns the lowest-loss iteration recorded so far.
func (r *OptimizationRecord) Best() (IterationRecord, bool) {
	if !r.haveBest {
		return IterationRecord{}, false
	}
	return r.Iterations[r.bestIndex], true
}

// Reoptimize clears the iteration log but returns the best x seen, so
// a caller can restart the outer solver from that point rather than
// from scratch (spec §4.7).
func (r *OptimizationRecord) Reoptimize() (startX la.Vector, ok bool) {
	best, ok := r.Best()
	if !ok {
		return nil, false
	}
	startX = append(la.Vector{}, best.X...)
	r.Iterations = nil
	r.bestIndex = 0
	r.bestLoss = 0
	r.haveBest = false
	return startX, true
}
