package loss

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/kelvin34501/nimblephysics/rollout"
)

func dims() map[string][3]int {
	return map[string][3]int{"identity": {1, 1, 1}}
}

// sumSquares is a closed-form scalar so the finite-difference fallback's
// output can be checked against an exact analytic gradient.
func sumSquares(r rollout.Buffer) float64 {
	sum := 0.0
	poses := r.Poses("identity")
	for t := 0; t < r.Len(); t++ {
		v := poses.Get(0, t)
		sum += v * v
	}
	return sum
}

func TestGradientUsesSuppliedAnalyticGradient(tst *testing.T) {
	called := false
	f := &Function{
		Eval: sumSquares,
		Grad: func(r rollout.Buffer, gradOut rollout.Buffer) float64 {
			called = true
			return sumSquares(r)
		},
	}
	r := rollout.NewOwningBuffer(1, dims(), 0)
	grad := rollout.NewOwningBuffer(1, dims(), 0)
	f.Gradient(r, grad)
	if !called {
		tst.Fatalf("expected the supplied analytic Grad to be invoked, fallback used instead")
	}
}

// TestGradientFiniteDifferenceFallback checks that, absent an analytic
// Grad, Function.Gradient's centered-difference fallback recovers the
// exact derivative of a smooth closed-form scalar (d(v^2)/dv = 2v).
func TestGradientFiniteDifferenceFallback(tst *testing.T) {
	f := &Function{Eval: sumSquares}
	r := rollout.NewOwningBuffer(3, dims(), 0)
	r.SetPoses("identity", 0, []float64{1.0})
	r.SetPoses("identity", 1, []float64{-2.0})
	r.SetPoses("identity", 2, []float64{0.5})

	grad := rollout.NewOwningBuffer(3, dims(), 0)
	value := f.Gradient(r, grad)

	chk.Scalar(tst, "value", 1e-12, value, 1.0+4.0+0.25)
	chk.Scalar(tst, "d/dpos[0]", 1e-6, grad.Poses("identity").Get(0, 0), 2.0)
	chk.Scalar(tst, "d/dpos[1]", 1e-6, grad.Poses("identity").Get(0, 1), -4.0)
	chk.Scalar(tst, "d/dpos[2]", 1e-6, grad.Poses("identity").Get(0, 2), 1.0)

	// velocities/forces never contribute to sumSquares, so their
	// finite-difference gradient should come back exactly zero.
	chk.Scalar(tst, "d/dvel[0]", 1e-9, grad.Vels("identity").Get(0, 0), 0.0)
	chk.Scalar(tst, "d/dforce[0]", 1e-9, grad.Forces("identity").Get(0, 0), 0.0)
}

func TestValueDelegatesToEval(tst *testing.T) {
	f := &Function{Eval: sumSquares}
	r := rollout.NewOwningBuffer(1, dims(), 0)
	r.SetPoses("identity", 0, []float64{3.0})
	chk.Scalar(tst, "value", 1e-17, f.Value(r), 9.0)
}

func TestBounds(tst *testing.T) {
	f := &Function{LowerBound: -1, UpperBound: 2}
	lo, hi := f.Bounds()
	chk.Scalar(tst, "lower", 1e-17, lo, -1)
	chk.Scalar(tst, "upper", 1e-17, hi, 2)
}
