// Package numcheck provides a Ridders-extrapolation finite-difference
// reference derivative, used only from _test.go files to cross-check
// the production analytic Jacobians (spec.md §9: "Finite-difference
// reference routines ... belong in a test-only module; the production
// path uses analytical Jacobians exclusively"). The production
// fallback gradient lives in loss.Function and uses gosl's own
// num.DerivCen instead — this package exists only for the
// higher-precision checks spec.md §8 items 3-4 require (agreement to
// 1e-8), which plain central differences cannot reliably hit across a
// wide step-size range.
package numcheck

import "math"

// Ridders parameters named directly from spec.md §9.
const (
	con      = 1.4
	con2     = con * con
	tableSize = 10
	safety   = 2.0
	big      = 1e30
)

// Deriv returns the Ridders-extrapolated derivative of f at x, with an
// initial step h. Algorithm: Numerical Recipes' "dfridr" — build a
// table of central-difference estimates at shrinking step sizes, then
// Richardson-extrapolate across the table, tracking the error estimate
// and stopping early if it stops improving by more than safety.
func Deriv(f func(x float64) float64, x, h float64) float64 {
	if h == 0 {
		h = 1e-6
	}
	a := make([][]float64, tableSize)
	for i := range a {
		a[i] = make([]float64, tableSize)
	}

	hh := h
	a[0][0] = (f(x+hh) - f(x-hh)) / (2 * hh)
	best := a[0][0]
	bestErr := big

	for i := 1; i < tableSize; i++ {
		hh /= con
		a[0][i] = (f(x+hh) - f(x-hh)) / (2 * hh)
		fac := con2
		for j := 1; j <= i; j++ {
			a[j][i] = (a[j-1][i]*fac - a[j-1][i-1]) / (fac - 1)
			fac *= con2
			errt := math.Max(math.Abs(a[j][i]-a[j-1][i]), math.Abs(a[j][i]-a[j-1][i-1]))
			if errt <= bestErr {
				bestErr = errt
				best = a[j][i]
			}
		}
		if math.Abs(a[i][i]-a[i-1][i-1]) >= safety*bestErr {
			break
		}
	}
	return best
}
