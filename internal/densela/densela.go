// Package densela provides small dense linear-algebra helpers
// (multiply, transpose, damped pseudo-inverse) over gosl's
// la.Matrix/la.Vector in the exact shapes the mapping and trajopt
// packages need: converting kinematic Jacobians between joint space
// and a representation mapping's coordinates. The square inversion
// itself is gosl's own la.MatInv, the same call NlSolver.Solve uses to
// invert a dense Newton Jacobian; only the damped-least-squares
// composition on top (Tikhonov regularization for IK's generally
// rectangular Jacobians) is specific to this package, since gosl has
// no generalized/pseudo-inverse over the la.Matrix struct API (the
// older [][]float64-based la.MatInvG belongs to a different, pre-struct
// gosl generation and is not part of the vendored version's API).
// Shared by mapping (IK solves) and trajopt (representation-space
// Jacobian chaining) to avoid duplicating the composition twice.
package densela

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// Identity returns the n x n identity matrix.
func Identity(n int) *la.Matrix {
	m := la.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// MatMul returns a*b.
func MatMul(a, b *la.Matrix) *la.Matrix {
	if a.N != b.M {
		chk.Panic("densela: MatMul dimension mismatch")
	}
	out := la.NewMatrix(a.M, b.N)
	for i := 0; i < a.M; i++ {
		for j := 0; j < b.N; j++ {
			sum := 0.0
			for k := 0; k < a.N; k++ {
				sum += a.Get(i, k) * b.Get(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	return out
}

// MatVec returns a*v.
func MatVec(a *la.Matrix, v la.Vector) la.Vector {
	out := la.NewVector(a.M)
	for i := 0; i < a.M; i++ {
		sum := 0.0
		for j := 0; j < a.N; j++ {
			sum += a.Get(i, j) * v[j]
		}
		out[i] = sum
	}
	return out
}

// Transpose returns a^T.
func Transpose(a *la.Matrix) *la.Matrix {
	out := la.NewMatrix(a.N, a.M)
	for i := 0; i < a.M; i++ {
		for j := 0; j < a.N; j++ {
			out.Set(j, i, a.Get(i, j))
		}
	}
	return out
}

// Inverse solves for the inverse of a square matrix using gosl's own
// la.MatInv, the same dense inversion NlSolver.Solve calls on its
// Newton Jacobian (`la.MatInv(o.Ji, o.J, false)`).
func Inverse(a *la.Matrix) *la.Matrix {
	out := la.NewMatrix(a.M, a.M)
	la.MatInv(out, a, false)
	return out
}

// PseudoInverse returns the damped least-squares inverse of j (an
// m x n matrix): j^T * (j*j^T + damping*I)^-1, an n x m matrix. For a
// j of full column rank (m >= n, as the IK body-node Jacobians are) it
// approaches the left inverse (j^T*j)^-1 * j^T as damping goes to
// zero; for full row rank (m <= n) it approaches the minimum-norm
// right inverse. Used to convert between joint-space and representation-space
// tangent vectors without requiring j to be square.
func PseudoInverse(j *la.Matrix, damping float64) *la.Matrix {
	jt := Transpose(j)
	gram := MatMul(j, jt)
	for i := 0; i < gram.M; i++ {
		gram.Set(i, i, gram.Get(i, i)+damping)
	}
	return MatMul(jt, Inverse(gram))
}
