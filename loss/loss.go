// Package loss wraps a scalar objective or constraint over a rollout
// buffer, with an optional analytic gradient and a finite-difference
// fallback when none is supplied.
package loss

import (
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/gosl/num"

	"github.com/kelvin34501/nimblephysics/rollout"
)

// Function is a value+gradient callable over a rollout, optionally
// carrying constraint bounds.
type Function struct {
	// Eval computes the scalar objective/constraint value over a rollout.
	Eval func(r rollout.Buffer) float64

	// Grad, if non-nil, computes the scalar value and writes per-timestep
	// gradients into gradOut (same mapping layout as r). When nil,
	// Gradient falls back to centered finite differences.
	Grad func(r rollout.Buffer, gradOut rollout.Buffer) float64

	// LowerBound/UpperBound define the feasible range of Eval's output
	// when this Function is used as a constraint. For an objective,
	// UpperBound+1 is the loss a Problem's ComputeLoss reports when a
	// simulator step fails.
	LowerBound, UpperBound float64
}

// Bounds returns the constraint feasible range.
func (f *Function) Bounds() (lower, upper float64) {
	return f.LowerBound, f.UpperBound
}

// Value evaluates the wrapped objective/constraint.
func (f *Function) Value(r rollout.Buffer) float64 {
	return f.Eval(r)
}

// Gradient evaluates the objective/constraint and writes its gradient
// into gradOut. If no analytic gradient callable was supplied, it
// falls back to centered finite differences (step 1e-7, spec §4.3) on
// every position, velocity and force entry of every registered
// mapping via gosl's num.DerivCen, the same centered-difference
// routine the teacher uses to cross-check analytic tangents in
// msolid/driver.go.
func (f *Function) Gradient(r rollout.Buffer, gradOut rollout.Buffer) float64 {
	if f.Grad != nil {
		return f.Grad(r, gradOut)
	}
	base := f.Eval(r)
	for _, name := range r.MappingNames() {
		finiteDiffMatrix(f.Eval, r, r.Poses(name), gradOut.Poses(name))
		finiteDiffMatrix(f.Eval, r, r.Vels(name), gradOut.Vels(name))
		finiteDiffMatrix(f.Eval, r, r.Forces(name), gradOut.Forces(name))
	}
	return base
}

// finiteDiffMatrix fills grad[i][j] with the centered-difference
// derivative of eval(r) with respect to src[i][j], perturbing src in
// place (and restoring it) for each entry in turn.
func finiteDiffMatrix(eval func(rollout.Buffer) float64, r rollout.Buffer, src, grad *la.Matrix) {
	for i := 0; i < src.M; i++ {
		for j := 0; j < src.N; j++ {
			orig := src.Get(i, j)
			d := num.DerivCen(func(x float64, args ...interface{}) (res float64) {
				src.Set(i, j, x)
				res = eval(r)
				return
			}, orig)
			src.Set(i, j, orig)
			grad.Set(i, j, d)
		}
	}
}
