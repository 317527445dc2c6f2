package trajopt

import "github.com/cpmech/gosl/la"

func (m *MultiShot) totalSteps() int {
	n := 0
	for _, shot := range m.Shots {
		n += shot.Steps
	}
	return n
}

// ConstraintDim is the knot-defect block plus one scalar for the
// optional parent (whole-trajectory) constraint.
func (m *MultiShot) ConstraintDim() int {
	n := m.knotConstraintDim()
	if m.Parent != nil {
		n++
	}
	return n
}

func (m *MultiShot) UpperBounds() la.Vector {
	_, hi := m.Bounds()
	return hi
}

func (m *MultiShot) LowerBounds() la.Vector {
	lo, _ := m.Bounds()
	return lo
}

// ConstraintUpperBounds and ConstraintLowerBounds are both zero for
// knot defects (an equality constraint), plus Parent's own feasible
// range when present.
func (m *MultiShot) ConstraintUpperBounds() la.Vector {
	out := la.NewVector(m.ConstraintDim())
	if m.Parent != nil {
		_, hi := m.Parent.Bounds()
		out[len(out)-1] = hi
	}
	return out
}

func (m *MultiShot) ConstraintLowerBounds() la.Vector {
	out := la.NewVector(m.ConstraintDim())
	if m.Parent != nil {
		lo, _ := m.Parent.Bounds()
		out[len(out)-1] = lo
	}
	return out
}

func (m *MultiShot) InitialGuess() la.Vector {
	x := la.NewVector(m.FlatDim())
	m.Flatten(x)
	return x
}

func (m *MultiShot) ComputeLoss(x la.Vector) float64 {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	if errs := m.UnrollAll(r); anyErr(errs) {
		return m.Loss.UpperBound + 1
	}
	return m.Loss.Value(r)
}

func (m *MultiShot) BackpropGradient(x la.Vector) la.Vector {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	if errs := m.UnrollAll(r); anyErr(errs) {
		return la.NewVector(m.FlatDim())
	}
	grad := newRollout(m.Sim, m.Mappings, m.totalSteps())
	m.Loss.Gradient(r, grad)

	out := la.NewVector(m.FlatDim())
	step := 0
	for i, shot := range m.Shots {
		window := grad.Slice(step, shot.Steps)
		seg := shot.GradientBackprop(window)
		off := m.shotOffsets[i]
		copy(out[off:off+shot.FlatDim()], seg)
		step += shot.Steps
	}
	return out
}

// ComputeConstraints unrolls the trajectory and returns the knot
// defects concatenated with the parent constraint's scalar value, if
// any.
func (m *MultiShot) ComputeConstraints(x la.Vector) la.Vector {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	out := la.NewVector(m.ConstraintDim())
	if errs := m.UnrollAll(r); anyErr(errs) {
		return out
	}
	defects := m.KnotDefects(r)
	off := 0
	for _, d := range defects {
		copy(out[off:off+len(d)], d)
		off += len(d)
	}
	if m.Parent != nil {
		out[len(out)-1] = m.Parent.Value(r)
	}
	return out
}

// BackpropJacobianDense densifies GetSparseJacobian's knot block and,
// if Parent is set, its dense whole-trajectory row (spec §4.5's
// "sparsity count: ... summed over pairs plus parent constraints").
func (m *MultiShot) BackpropJacobianDense(x la.Vector) *la.Matrix {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	_ = m.UnrollAll(r)

	out := la.NewMatrix(m.ConstraintDim(), m.FlatDim())
	vals := m.sparseJacobianValues(x)
	rows, cols := m.JacobianSparsityStructure()
	for k, v := range vals {
		out.Set(rows[k], cols[k], v)
	}
	return out
}

// parentRowFiniteDiff centered-differences Parent's scalar value over
// the whole flat vector, since a shared whole-trajectory constraint
// has no natural analytic chain through per-shot snapshots.
func (m *MultiShot) parentRowFiniteDiff(x la.Vector) la.Vector {
	const h = 1e-6
	row := la.NewVector(len(x))
	xp := append(la.Vector{}, x...)
	for j := range x {
		orig := xp[j]
		xp[j] = orig + h
		plus := m.evalParent(xp)
		xp[j] = orig - h
		minus := m.evalParent(xp)
		xp[j] = orig
		row[j] = (plus - minus) / (2 * h)
	}
	return row
}

func (m *MultiShot) evalParent(x la.Vector) float64 {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	if errs := m.UnrollAll(r); anyErr(errs) {
		return 0
	}
	return m.Parent.Value(r)
}

func anyErr(errs []error) bool {
	for _, e := range errs {
		if e != nil {
			return true
		}
	}
	return false
}
