package trajopt

import "github.com/cpmech/gosl/la"

// ConstraintDim is always 0: a lone SingleShot carries no defect
// constraints of its own (those belong to MultiShot). It still
// satisfies Problem so a single shot can be optimized standalone.
func (s *SingleShot) ConstraintDim() int { return 0 }

func (s *SingleShot) UpperBounds() la.Vector {
	_, hi := s.Bounds()
	return hi
}

func (s *SingleShot) LowerBounds() la.Vector {
	lo, _ := s.Bounds()
	return lo
}

func (s *SingleShot) ConstraintUpperBounds() la.Vector { return la.NewVector(0) }
func (s *SingleShot) ConstraintLowerBounds() la.Vector { return la.NewVector(0) }

// InitialGuess flattens this shot's currently-set state.
func (s *SingleShot) InitialGuess() la.Vector {
	x := la.NewVector(s.FlatDim())
	s.Flatten(x)
	return x
}

// ComputeLoss unflattens x, unrolls the shot, and evaluates Loss over
// the resulting trajectory.
func (s *SingleShot) ComputeLoss(x la.Vector) float64 {
	s.Unflatten(x)
	r := newRollout(s.Sim, s.Mappings, s.Steps)
	if err := s.Unroll(r); err != nil {
		return s.Loss.UpperBound + 1 // a failed step reports a loss above Loss.UpperBound
	}
	return s.Loss.Value(r)
}

// BackpropGradient unflattens x, unrolls the shot, evaluates Loss's
// per-timestep gradient, and chains it back through the shot via
// GradientBackprop.
func (s *SingleShot) BackpropGradient(x la.Vector) la.Vector {
	s.Unflatten(x)
	r := newRollout(s.Sim, s.Mappings, s.Steps)
	if err := s.Unroll(r); err != nil {
		return la.NewVector(s.FlatDim())
	}
	grad := newRollout(s.Sim, s.Mappings, s.Steps)
	s.Loss.Gradient(r, grad)
	return s.GradientBackprop(grad)
}

func (s *SingleShot) ComputeConstraints(x la.Vector) la.Vector { return la.NewVector(0) }

func (s *SingleShot) BackpropJacobianDense(x la.Vector) *la.Matrix {
	return la.NewMatrix(0, s.FlatDim())
}

func (s *SingleShot) NumberNonZeroJacobian() int { return 0 }

func (s *SingleShot) JacobianSparsityStructure() (rows, cols []int) { return nil, nil }

func (s *SingleShot) GetSparseJacobian(x la.Vector) []float64 { return nil }
