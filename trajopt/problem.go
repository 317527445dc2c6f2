// Package trajopt builds, flattens and differentiates single-shot and
// multi-shot trajectory optimization problems over a world.Simulator,
// the core the outer interior-point solver polls through the Problem
// interface.
package trajopt

import "github.com/cpmech/gosl/la"

// Problem is the contract the outer solver consumes (spec §4.6). Its
// state machine is trivial: constructed, repeatedly evaluated,
// destroyed.
type Problem interface {
	FlatDim() int
	ConstraintDim() int

	Flatten(out la.Vector)
	Unflatten(x la.Vector)

	UpperBounds() la.Vector
	LowerBounds() la.Vector
	ConstraintUpperBounds() la.Vector
	ConstraintLowerBounds() la.Vector

	InitialGuess() la.Vector

	ComputeLoss(x la.Vector) float64
	BackpropGradient(x la.Vector) la.Vector

	ComputeConstraints(x la.Vector) la.Vector
	BackpropJacobianDense(x la.Vector) *la.Matrix

	NumberNonZeroJacobian() int
	JacobianSparsityStructure() (rows, cols []int)
	GetSparseJacobian(x la.Vector) []float64
}

// ConvergeResult is the outer solver's terminal status: a normal
// enumerated result, not an error (spec §7).
type ConvergeResult int

const (
	Invalid ConvergeResult = iota
	TolerancesReached
	IterationLimit
	StaticProblem
)

func (r ConvergeResult) String() string {
	switch r {
	case TolerancesReached:
		return "TolerancesReached"
	case IterationLimit:
		return "IterationLimit"
	case StaticProblem:
		return "StaticProblem"
	default:
		return "Invalid"
	}
}
