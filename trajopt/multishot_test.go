package trajopt

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/internal/numcheck"
	"github.com/kelvin34501/nimblephysics/internal/testworld"
	"github.com/kelvin34501/nimblephysics/loss"
	"github.com/kelvin34501/nimblephysics/mapping"
	"github.com/kelvin34501/nimblephysics/rollout"
)

// TestDefectAtZero is spec.md §8 property 2: forcing a single shot and
// replicating its computed final state into the next shot's start
// state yields a zero knot defect.
func TestDefectAtZero(tst *testing.T) {
	sim := testworld.NewSlidingBox(0.01, 1.5)
	reg := mapping.NewRegistry(sim.NumDofs())
	m := NewMultiShot(sim, reg, zeroLoss(), 6, 3, true)

	m.Shots[0].StartPos = la.Vector{0.2}
	m.Shots[0].StartVel = la.Vector{0.0}
	for t := 0; t < m.Shots[0].Steps; t++ {
		m.Shots[0].Forces.Set(0, t, 1.0)
	}

	out := newRollout(sim, reg, m.totalSteps())
	if errs := m.UnrollAll(out); anyErr(errs) {
		tst.Fatalf("unroll failed: %v", errs)
	}

	repName := reg.RepresentationName()
	finalPos := out.Poses(repName).Get(0, m.Shots[0].Steps-1)
	finalVel := out.Vels(repName).Get(0, m.Shots[0].Steps-1)
	m.Shots[1].StartPos = la.Vector{finalPos}
	m.Shots[1].StartVel = la.Vector{finalVel}

	if errs := m.UnrollAll(out); anyErr(errs) {
		tst.Fatalf("unroll failed: %v", errs)
	}
	for _, d := range m.KnotDefects(out) {
		for _, v := range d {
			chk.Scalar(tst, "defect", 1e-12, v, 0)
		}
	}
}

// TestSparseEqualsDense is spec.md §8 property 5: scattering the
// sparse Jacobian values into the declared (rows, cols) pattern
// reconstructs the dense Jacobian exactly.
func TestSparseEqualsDense(tst *testing.T) {
	sim := testworld.NewSlidingBox(0.01, 1.0)
	reg := mapping.NewRegistry(sim.NumDofs())
	m := NewMultiShot(sim, reg, zeroLoss(), 6, 3, true)

	x := m.InitialGuess()
	for i := range x {
		x[i] = 0.1 * float64(i+1)
	}

	dense := m.BackpropJacobianDense(x)
	rows, cols := m.JacobianSparsityStructure()
	vals := m.GetSparseJacobian(x)
	if len(vals) != len(rows) {
		tst.Fatalf("sparse value count %d does not match sparsity pattern length %d", len(vals), len(rows))
	}

	reconstructed := la.NewMatrix(dense.M, dense.N)
	for k, v := range vals {
		reconstructed.Set(rows[k], cols[k], v)
	}

	for i := 0; i < dense.M; i++ {
		for j := 0; j < dense.N; j++ {
			if reconstructed.Get(i, j) != dense.Get(i, j) {
				tst.Fatalf("dense/sparse mismatch at (%d,%d): dense=%g reconstructed=%g", i, j, dense.Get(i, j), reconstructed.Get(i, j))
			}
		}
	}
}

// TestSparseEqualsDenseWithParentConstraint extends property 5 to a
// MultiShot carrying a Parent (whole-trajectory) constraint: the
// sparsity pattern's extra dense row for the parent constraint must
// reconstruct the dense Jacobian's own parent row exactly (spec.md
// §4.5's sparsity count "summed over pairs plus parent constraints").
// This is also the regression case for the "Constrained cycle"
// scenario (spec.md §8): Parent is an equality constraint over the
// whole trajectory, not just a knot defect.
func TestSparseEqualsDenseWithParentConstraint(tst *testing.T) {
	sim := testworld.NewSlidingBox(0.01, 1.0)
	reg := mapping.NewRegistry(sim.NumDofs())
	m := NewMultiShot(sim, reg, zeroLoss(), 6, 3, true)
	m.Parent = &loss.Function{
		Eval: func(r rollout.Buffer) float64 {
			poses := r.Poses(mapping.IdentityName)
			d := poses.Get(0, 0) - poses.Get(0, r.Len()-1)
			return d * d
		},
		UpperBound: 1e9,
	}

	x := m.InitialGuess()
	for i := range x {
		x[i] = 0.1 * float64(i+1)
	}

	if want := m.knotConstraintDim() + 1; m.ConstraintDim() != want {
		tst.Fatalf("expected ConstraintDim %d with Parent set, got %d", want, m.ConstraintDim())
	}

	dense := m.BackpropJacobianDense(x)
	rows, cols := m.JacobianSparsityStructure()
	vals := m.GetSparseJacobian(x)
	if len(vals) != len(rows) {
		tst.Fatalf("sparse value count %d does not match sparsity pattern length %d", len(vals), len(rows))
	}

	lastRow := dense.M - 1
	sawParentRow := false
	for _, r := range rows {
		if r == lastRow {
			sawParentRow = true
			break
		}
	}
	if !sawParentRow {
		tst.Fatalf("expected the sparsity pattern to include the parent constraint's row %d", lastRow)
	}

	reconstructed := la.NewMatrix(dense.M, dense.N)
	for k, v := range vals {
		reconstructed.Set(rows[k], cols[k], v)
	}
	for i := 0; i < dense.M; i++ {
		for j := 0; j < dense.N; j++ {
			if reconstructed.Get(i, j) != dense.Get(i, j) {
				tst.Fatalf("dense/sparse mismatch at (%d,%d): dense=%g reconstructed=%g", i, j, dense.Get(i, j), reconstructed.Get(i, j))
			}
		}
	}
}

// TestConstrainedCycleJacobianMatchesFiniteDifference is the other half
// of the "Constrained cycle" scenario (spec.md §8): Parent's dense
// constraint row must match a Ridders-extrapolated finite difference
// of the constraint's value with respect to the flat vector.
func TestConstrainedCycleJacobianMatchesFiniteDifference(tst *testing.T) {
	sim := testworld.NewPendulum(0.01, 1.0, 1.0, 9.8, 0.1)
	reg := mapping.NewRegistry(sim.NumDofs())
	m := NewMultiShot(sim, reg, zeroLoss(), 12, 3, true)
	m.Parent = &loss.Function{
		Eval: func(r rollout.Buffer) float64 {
			poses := r.Poses(mapping.IdentityName)
			d := poses.Get(0, 0) - poses.Get(0, r.Len()-1)
			return d * d
		},
		UpperBound: 1e9,
	}

	x := m.InitialGuess()
	for i := range x {
		x[i] = 0.02 * float64(i%5)
	}

	dense := m.BackpropJacobianDense(x)
	lastRow := dense.M - 1
	for j := 0; j < dense.N; j++ {
		d := numcheck.Deriv(func(v float64) float64 {
			xp := append(la.Vector{}, x...)
			xp[j] = v
			c := m.ComputeConstraints(xp)
			return c[len(c)-1]
		}, x[j], 1e-4)
		chk.Scalar(tst, io.Sf("dParent/dx[%d]", j), 1e-6, dense.Get(lastRow, j), d)
	}
}

func buildJumpwormMultiShot(workers int) *MultiShot {
	sim := testworld.NewJumpwormLike(0.01, 5, 1.0)
	reg := mapping.NewRegistry(sim.NumDofs())
	reg.Register(mapping.NewIKMapping("tips", sim.BodyNodeNames(), sim.NumDofs()))

	lossFn := &loss.Function{
		Eval: func(r rollout.Buffer) float64 {
			sum := 0.0
			poses := r.Poses(mapping.IdentityName)
			for t := 0; t < r.Len(); t++ {
				for i := 0; i < poses.M; i++ {
					v := poses.Get(i, t)
					sum += v * v
				}
			}
			return sum
		},
		UpperBound: 1e9,
	}
	m := NewMultiShot(sim, reg, lossFn, 20, 5, true)
	m.Parallel = ParallelOptions{Workers: workers}
	return m
}

// TestParallelEqualsSerial is spec.md §8 property 6: serial and
// parallel modes produce identical gradients, constraints, sparse
// Jacobian values, losses and reconstructed rollouts across several
// solver iterations, since every shot only ever touches its own
// simulator clone and its own rollout window (no order-dependent
// reduction combines floating-point results from different shots).
func TestParallelEqualsSerial(tst *testing.T) {
	serial := buildJumpwormMultiShot(1)
	parallel := buildJumpwormMultiShot(4)

	x := serial.InitialGuess()
	for i := range x {
		x[i] = 0.01 * float64(i%7)
	}

	for iter := 0; iter < 10; iter++ {
		for i := range x {
			x[i] += 0.001 * float64(iter+1)
		}

		lSerial := serial.ComputeLoss(x)
		lParallel := parallel.ComputeLoss(x)
		if lSerial != lParallel {
			tst.Fatalf("iter %d: loss differs: serial=%g parallel=%g", iter, lSerial, lParallel)
		}

		gSerial := serial.BackpropGradient(x)
		gParallel := parallel.BackpropGradient(x)
		for i := range gSerial {
			if gSerial[i] != gParallel[i] {
				tst.Fatalf("iter %d: gradient[%d] differs: serial=%g parallel=%g", iter, i, gSerial[i], gParallel[i])
			}
		}

		cSerial := serial.ComputeConstraints(x)
		cParallel := parallel.ComputeConstraints(x)
		for i := range cSerial {
			if cSerial[i] != cParallel[i] {
				tst.Fatalf("iter %d: constraint[%d] differs: serial=%g parallel=%g", iter, i, cSerial[i], cParallel[i])
			}
		}

		vSerial := serial.GetSparseJacobian(x)
		vParallel := parallel.GetSparseJacobian(x)
		for i := range vSerial {
			if vSerial[i] != vParallel[i] {
				tst.Fatalf("iter %d: sparse jacobian value[%d] differs: serial=%g parallel=%g", iter, i, vSerial[i], vParallel[i])
			}
		}

		serial.Unflatten(x)
		rSerial := newRollout(serial.Sim, serial.Mappings, serial.totalSteps())
		if errs := serial.UnrollAll(rSerial); anyErr(errs) {
			tst.Fatalf("iter %d: serial unroll failed: %v", iter, errs)
		}
		parallel.Unflatten(x)
		rParallel := newRollout(parallel.Sim, parallel.Mappings, parallel.totalSteps())
		if errs := parallel.UnrollAll(rParallel); anyErr(errs) {
			tst.Fatalf("iter %d: parallel unroll failed: %v", iter, errs)
		}
		for _, name := range rSerial.MappingNames() {
			ps, pp := rSerial.Poses(name), rParallel.Poses(name)
			for i := 0; i < ps.M; i++ {
				for j := 0; j < ps.N; j++ {
					if ps.Get(i, j) != pp.Get(i, j) {
						tst.Fatalf("iter %d: mapping %q pose (%d,%d) differs: serial=%g parallel=%g", iter, name, i, j, ps.Get(i, j), pp.Get(i, j))
					}
				}
			}
		}
	}

	loSerial, hiSerial := serial.Bounds()
	loParallel, hiParallel := parallel.Bounds()
	chk.Vector(tst, "lower bounds", 0, loSerial, loParallel)
	chk.Vector(tst, "upper bounds", 0, hiSerial, hiParallel)
}

// TestStateReconstructionWithAndWithoutKnots is spec.md §8 property 8,
// exercised through MultiShot.GetStates (spec.md §4.5's getStates).
func TestStateReconstructionWithAndWithoutKnots(tst *testing.T) {
	const totalSteps, shotLen = 6, 3

	sim := testworld.NewSlidingBox(0.01, 1.0)
	reg := mapping.NewRegistry(sim.NumDofs())
	m := NewMultiShot(sim, reg, zeroLoss(), totalSteps, shotLen, true)
	m.Shots[0].StartPos = la.Vector{0.4}
	m.Shots[0].StartVel = la.Vector{0.1}
	m.Shots[1].StartPos = la.Vector{-0.2}
	m.Shots[1].StartVel = la.Vector{0.05}
	for i, shot := range m.Shots {
		for t := 0; t < shot.Steps; t++ {
			shot.Forces.Set(0, t, 0.3*float64(i+1))
		}
	}

	// withKnots: each shot's own recorded trajectory, concatenated,
	// even though shot 1's start state (-0.2) deliberately does not
	// match shot 0's natural end state.
	withKnots := newRollout(sim, reg, totalSteps)
	if errs := m.GetStates(true, withKnots); anyErr(errs) {
		tst.Fatalf("withKnots reconstruction failed: %v", errs)
	}
	step := 0
	for _, shot := range m.Shots {
		standaloneSim := testworld.NewSlidingBox(0.01, 1.0)
		standaloneReg := mapping.NewRegistry(standaloneSim.NumDofs())
		standalone := NewSingleShot(standaloneSim, standaloneReg, zeroLoss(), shot.Steps, true)
		standalone.StartPos = shot.StartPos
		standalone.StartVel = shot.StartVel
		for t := 0; t < shot.Steps; t++ {
			standalone.Forces.Set(0, t, shot.Forces.Get(0, t))
		}
		out := newRollout(standaloneSim, standaloneReg, shot.Steps)
		if err := standalone.Unroll(out); err != nil {
			tst.Fatalf("standalone unroll failed: %v", err)
		}
		for t := 0; t < shot.Steps; t++ {
			got := withKnots.Poses(mapping.IdentityName).Get(0, step+t)
			want := out.Poses(mapping.IdentityName).Get(0, t)
			chk.Scalar(tst, "withKnots reconstruction", 0, got, want)
		}
		step += shot.Steps
	}

	// withoutKnots: restoring only shot 0's own start state and
	// replaying every stored force through one continuous simulation
	// must equal a monolithic single shot driven by the same
	// concatenated forces from the same start state.
	monoSim := testworld.NewSlidingBox(0.01, 1.0)
	monoReg := mapping.NewRegistry(monoSim.NumDofs())
	mono := NewSingleShot(monoSim, monoReg, zeroLoss(), totalSteps, true)
	mono.StartPos = la.Vector{0.4}
	mono.StartVel = la.Vector{0.1}
	for t := 0; t < totalSteps; t++ {
		mono.Forces.Set(0, t, 0.3*float64(t/shotLen+1))
	}
	monoOut := newRollout(monoSim, monoReg, totalSteps)
	if err := mono.Unroll(monoOut); err != nil {
		tst.Fatalf("monolithic unroll failed: %v", err)
	}

	withoutKnots := newRollout(sim, reg, totalSteps)
	if errs := m.GetStates(false, withoutKnots); anyErr(errs) {
		tst.Fatalf("withoutKnots reconstruction failed: %v", errs)
	}
	for t := 0; t < totalSteps; t++ {
		chk.Scalar(tst, "withoutKnots pos", 1e-12, withoutKnots.Poses(mapping.IdentityName).Get(0, t), monoOut.Poses(mapping.IdentityName).Get(0, t))
		chk.Scalar(tst, "withoutKnots vel", 1e-12, withoutKnots.Vels(mapping.IdentityName).Get(0, t), monoOut.Vels(mapping.IdentityName).Get(0, t))
	}
}
