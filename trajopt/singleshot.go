package trajopt

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/internal/densela"
	"github.com/kelvin34501/nimblephysics/loss"
	"github.com/kelvin34501/nimblephysics/mapping"
	"github.com/kelvin34501/nimblephysics/rollout"
	"github.com/kelvin34501/nimblephysics/world"
)

// ikJacobianDamping is the damping used when converting Jacobians
// between joint space and a (possibly non-square) representation
// mapping, matching the default used by mapping.IKMapping's own
// Newton solve.
const ikJacobianDamping = 1e-4

// SingleShot owns one contiguous simulated trajectory: an optional
// tunable start state plus a per-step force sequence (spec §3, §4.4).
type SingleShot struct {
	Sim      world.Simulator
	Mappings *mapping.Registry
	Loss     *loss.Function // may be nil when only used as part of a MultiShot

	Steps             int
	TuneStartingState bool
	TuneMass          bool

	StartPos la.Vector  // representationDim
	StartVel la.Vector  // representationDim
	Forces   *la.Matrix // forceDim x Steps, forceDim == Sim.NumDofs() always
	Mass     la.Vector  // Sim.NumMassParams(); meaningful only when TuneMass

	// populated by Unroll; consumed by FinalStateJacobian/GradientBackprop
	snapshots    []*world.BackpropSnapshot // length Steps
	repJacobians []*la.Matrix              // length Steps+1; repJacobians[0] at start, [t+1] after step t
}

// NewSingleShot constructs a single shot driving sim for steps ticks,
// using mappings' current representation for its start state and
// keeping forces in joint space.
func NewSingleShot(sim world.Simulator, mappings *mapping.Registry, lossFn *loss.Function, steps int, tuneStartingState bool) *SingleShot {
	repDim := mappings.Representation().PosDim()
	forceDim := sim.NumDofs()
	return &SingleShot{
		Sim:               sim,
		Mappings:          mappings,
		Loss:              lossFn,
		Steps:             steps,
		TuneStartingState: tuneStartingState,
		StartPos:          la.NewVector(repDim),
		StartVel:          la.NewVector(repDim),
		Forces:            la.NewMatrix(forceDim, steps),
		Mass:              la.NewVector(sim.NumMassParams()),
	}
}

// RepresentationDim is the dimension of the representation mapping's
// position (== velocity) coordinates.
func (s *SingleShot) RepresentationDim() int { return s.Mappings.Representation().PosDim() }

// ForceDim is the dimension of the per-step force vector, always the
// simulator's joint-space DOF count.
func (s *SingleShot) ForceDim() int { return s.Sim.NumDofs() }

// FlatDim is the length of this shot's contribution to a flat variable
// vector (spec §4.4's layout).
func (s *SingleShot) FlatDim() int {
	n := s.Steps * s.ForceDim()
	if s.TuneStartingState {
		n += 2 * s.RepresentationDim()
	}
	if s.TuneMass {
		n += len(s.Mass)
	}
	return n
}

// startOffset, forcesOffset and massOffset locate each block within
// this shot's own flat segment.
func (s *SingleShot) startOffset() int { return 0 }
func (s *SingleShot) forcesOffset() int {
	if s.TuneStartingState {
		return 2 * s.RepresentationDim()
	}
	return 0
}
func (s *SingleShot) massOffset() int {
	return s.forcesOffset() + s.Steps*s.ForceDim()
}

// col returns a view of matrix m's column t (mutating it mutates m, as
// columns are contiguous in gosl's column-major storage).
func col(m *la.Matrix, t int) la.Vector {
	return la.Vector(m.Data[t*m.M : (t+1)*m.M])
}

// Flatten copies this shot's internal state into out[0:FlatDim()].
func (s *SingleShot) Flatten(out la.Vector) {
	if len(out) != s.FlatDim() {
		chk.Panic("single shot: Flatten output has length %d, want %d", len(out), s.FlatDim())
	}
	if s.TuneStartingState {
		repDim := s.RepresentationDim()
		copy(out[s.startOffset():s.startOffset()+repDim], s.StartPos)
		copy(out[s.startOffset()+repDim:s.startOffset()+2*repDim], s.StartVel)
	}
	fOff := s.forcesOffset()
	fd := s.ForceDim()
	for t := 0; t < s.Steps; t++ {
		copy(out[fOff+t*fd:fOff+(t+1)*fd], col(s.Forces, t))
	}
	if s.TuneMass {
		copy(out[s.massOffset():s.massOffset()+len(s.Mass)], s.Mass)
	}
}

// Unflatten copies x[0:FlatDim()] into this shot's internal state.
func (s *SingleShot) Unflatten(x la.Vector) {
	if len(x) != s.FlatDim() {
		chk.Panic("single shot: Unflatten input has length %d, want %d", len(x), s.FlatDim())
	}
	if s.TuneStartingState {
		repDim := s.RepresentationDim()
		copy(s.StartPos, x[s.startOffset():s.startOffset()+repDim])
		copy(s.StartVel, x[s.startOffset()+repDim:s.startOffset()+2*repDim])
	}
	fOff := s.forcesOffset()
	fd := s.ForceDim()
	for t := 0; t < s.Steps; t++ {
		copy(col(s.Forces, t), x[fOff+t*fd:fOff+(t+1)*fd])
	}
	if s.TuneMass {
		copy(s.Mass, x[s.massOffset():s.massOffset()+len(s.Mass)])
	}
}

// Bounds returns this shot's flat variable bounds: position/velocity
// bounds from the representation mapping's joint limits, force bounds
// from per-DOF force limits, mass bounds from the simulator's
// registered mass-parameter ranges (spec §4.4).
func (s *SingleShot) Bounds() (lower, upper la.Vector) {
	lower = la.NewVector(s.FlatDim())
	upper = la.NewVector(s.FlatDim())
	rep := s.Mappings.Representation()
	if s.TuneStartingState {
		repDim := s.RepresentationDim()
		posLo, posHi := rep.PositionBounds(s.Sim)
		velLo, velHi := rep.VelocityBounds(s.Sim)
		copy(lower[0:repDim], posLo)
		copy(upper[0:repDim], posHi)
		copy(lower[repDim:2*repDim], velLo)
		copy(upper[repDim:2*repDim], velHi)
	}
	frcLo, frcHi := rep.ForceBounds(s.Sim)
	fOff := s.forcesOffset()
	fd := s.ForceDim()
	for t := 0; t < s.Steps; t++ {
		copy(lower[fOff+t*fd:fOff+(t+1)*fd], frcLo)
		copy(upper[fOff+t*fd:fOff+(t+1)*fd], frcHi)
	}
	if s.TuneMass {
		copy(lower[s.massOffset():], s.Sim.MassLowerLimits())
		copy(upper[s.massOffset():], s.Sim.MassUpperLimits())
	}
	return
}

// Unroll drives the simulator forward for Steps ticks from
// (StartPos, StartVel), recording every registered mapping's
// pos/vel/force into out's columns [0, Steps). The simulator's prior
// state is restored on every exit path, including a step failure
// (spec §4.4, §5).
func (s *SingleShot) Unroll(out rollout.Buffer) (err error) {
	restore := s.Sim.Snapshot()
	defer restore.Restore()

	if s.TuneMass {
		s.Sim.SetMassParams(s.Mass)
	}
	rep := s.Mappings.Representation()
	rep.WritePositions(s.Sim, s.StartPos)
	rep.WriteVelocities(s.Sim, s.StartVel)

	s.snapshots = make([]*world.BackpropSnapshot, s.Steps)
	s.repJacobians = make([]*la.Matrix, s.Steps+1)
	s.repJacobians[0] = rep.PosJacobian(s.Sim)

	for t := 0; t < s.Steps; t++ {
		s.Sim.SetForces(col(s.Forces, t))
		if err = s.Sim.Step(); err != nil {
			return err
		}
		var snap *world.BackpropSnapshot
		snap, err = s.Sim.Linearize()
		if err != nil {
			return err
		}
		s.snapshots[t] = snap
		s.repJacobians[t+1] = rep.PosJacobian(s.Sim)

		for _, name := range out.MappingNames() {
			mp := s.Mappings.Get(name)
			out.SetPoses(name, t, mp.ReadPositions(s.Sim))
			out.SetVels(name, t, mp.ReadVelocities(s.Sim))
			out.SetForces(name, t, mp.ReadForces(s.Sim))
		}
	}
	return nil
}

// FinalStateJacobian returns the dense (2*RepresentationDim) x FlatDim
// Jacobian of (finalPos, finalVel), in representation-mapping
// coordinates, with respect to this shot's flat variables. Requires
// Unroll to have run first. The mass-tuning block, if present, is
// filled by central finite differences re-unrolling the shot, since
// mass sensitivity is not among world.BackpropSnapshot's six analytic
// Jacobians (spec §4.4 leaves the mass block's differentiation
// unspecified).
func (s *SingleShot) FinalStateJacobian() *la.Matrix {
	n := s.Sim.NumDofs()
	repDim := s.RepresentationDim()
	out := la.NewMatrix(2*repDim, s.FlatDim())

	// running pair, joint space: (∂final/∂pos_t, ∂final/∂vel_t), each 2n x n
	runPos := blockStack(densela.Identity(n), la.NewMatrix(n, n)) // ∂(posT,velT)/∂pos_T = [I;0]
	runVel := blockStack(la.NewMatrix(n, n), densela.Identity(n)) // ∂(posT,velT)/∂vel_T = [0;I]

	fOff := s.forcesOffset()
	fd := s.ForceDim()
	for t := s.Steps - 1; t >= 0; t-- {
		snap := s.snapshots[t]
		// force column: write before updating the running pair
		forceBlock := densela.MatMul(runPos, snap.PosForce)
		forceBlock = addInto(forceBlock, densela.MatMul(runVel, snap.VelForce))
		setCols(out, fOff+t*fd, forceBlock)

		newRunPos := addInto(densela.MatMul(runPos, snap.PosPos), densela.MatMul(runVel, snap.VelPos))
		newRunVel := addInto(densela.MatMul(runPos, snap.PosVel), densela.MatMul(runVel, snap.VelVel))
		runPos, runVel = newRunPos, newRunVel
	}

	if s.TuneStartingState {
		pinvStart := startStateInverse(s.repJacobians[0])
		startPosBlock := densela.MatMul(runPos, pinvStart)
		startVelBlock := densela.MatMul(runVel, pinvStart)
		setCols(out, s.startOffset(), startPosBlock)
		setCols(out, s.startOffset()+repDim, startVelBlock)
	}

	// convert rows from joint space into representation space using
	// the representation mapping's Jacobian at the final joint state.
	jFinal := s.repJacobians[s.Steps]
	rowConvert := blockDiag(jFinal, jFinal) // (2*repDim) x (2n)
	converted := densela.MatMul(rowConvert, out)

	if s.TuneMass {
		s.fillMassJacobianFiniteDiff(converted)
	}
	return converted
}

// GradientBackprop carries a loss cotangent backward through the same
// step-by-step chain FinalStateJacobian uses, except the cotangent is
// injected at every timestep (not just the last) from gradRollout's
// representation-mapping pos/vel columns and identity-mapping force
// column, matching a loss that may depend on the whole trajectory, not
// only its final state. Returns this shot's flat gradient segment.
// Requires Unroll to have run first with the same gradRollout window.
func (s *SingleShot) GradientBackprop(gradRollout rollout.Buffer) la.Vector {
	repName := s.Mappings.RepresentationName()
	out := la.NewVector(s.FlatDim())

	gPos := la.NewVector(s.Sim.NumDofs())
	gVel := la.NewVector(s.Sim.NumDofs())

	fOff := s.forcesOffset()
	fd := s.ForceDim()
	for t := s.Steps; t >= 1; t-- {
		jT := s.repJacobians[t]
		gPosRepr := col(gradRollout.Poses(repName), t-1)
		gVelRepr := col(gradRollout.Vels(repName), t-1)
		gPos = addVec(gPos, densela.MatVec(densela.Transpose(jT), gPosRepr))
		gVel = addVec(gVel, densela.MatVec(densela.Transpose(jT), gVelRepr))

		snap := s.snapshots[t-1]
		gForce := addVec(densela.MatVec(densela.Transpose(snap.PosForce), gPos), densela.MatVec(densela.Transpose(snap.VelForce), gVel))
		gForce = addVec(gForce, col(gradRollout.Forces(mapping.IdentityName), t-1))
		copy(out[fOff+(t-1)*fd:fOff+t*fd], gForce)

		newGPos := addVec(densela.MatVec(densela.Transpose(snap.PosPos), gPos), densela.MatVec(densela.Transpose(snap.VelPos), gVel))
		newGVel := addVec(densela.MatVec(densela.Transpose(snap.PosVel), gPos), densela.MatVec(densela.Transpose(snap.VelVel), gVel))
		gPos, gVel = newGPos, newGVel
	}

	if s.TuneStartingState {
		pinvT := densela.Transpose(startStateInverse(s.repJacobians[0]))
		repDim := s.RepresentationDim()
		copy(out[s.startOffset():s.startOffset()+repDim], densela.MatVec(pinvT, gPos))
		copy(out[s.startOffset()+repDim:s.startOffset()+2*repDim], densela.MatVec(pinvT, gVel))
	}

	if s.TuneMass && s.Loss != nil {
		s.fillMassGradientFiniteDiff(out)
	}
	return out
}

// fillMassGradientFiniteDiff fills out's mass-tuning segment with the
// central-difference sensitivity of the whole loss to each mass
// parameter, re-unrolling the shot for each perturbation. Unlike the
// force/start-state blocks, this needs the loss itself (not just the
// final state), so it lives at the SingleShot level rather than inside
// the analytic chain above.
func (s *SingleShot) fillMassGradientFiniteDiff(out la.Vector) {
	const h = 1e-6
	base := make(la.Vector, len(s.Mass))
	copy(base, s.Mass)

	rep := s.Mappings.Representation()
	dims := map[string][3]int{
		mapping.IdentityName: {s.Sim.NumDofs(), s.Sim.NumDofs(), s.Sim.NumDofs()},
	}
	if rep.Name() != mapping.IdentityName {
		dims[rep.Name()] = [3]int{rep.PosDim(), rep.VelDim(), rep.ForceDim()}
	}
	scratch := rollout.NewOwningBuffer(s.Steps, dims, 0)

	for i := range base {
		s.Mass[i] = base[i] + h
		_ = s.Unroll(scratch)
		plus := s.Loss.Value(scratch)

		s.Mass[i] = base[i] - h
		_ = s.Unroll(scratch)
		minus := s.Loss.Value(scratch)

		out[s.massOffset()+i] = (plus - minus) / (2 * h)
	}
	copy(s.Mass, base)
}

// startStateInverse maps representation-space start-state tangents to
// joint space: the exact inverse when the representation Jacobian is
// square, the damped pseudo-inverse otherwise.
func startStateInverse(j *la.Matrix) *la.Matrix {
	if j.M == j.N {
		return densela.Inverse(j)
	}
	return densela.PseudoInverse(j, ikJacobianDamping)
}

// addVec returns a+b.
func addVec(a, b la.Vector) la.Vector {
	out := la.NewVector(len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// fillMassJacobianFiniteDiff fills dst's mass-tuning columns with the
// central-difference sensitivity of the final representation-space
// state to each mass parameter.
func (s *SingleShot) fillMassJacobianFiniteDiff(dst *la.Matrix) {
	const h = 1e-6
	base := make(la.Vector, len(s.Mass))
	copy(base, s.Mass)

	rep := s.Mappings.Representation()
	dims := map[string][3]int{
		mapping.IdentityName: {s.Sim.NumDofs(), s.Sim.NumDofs(), s.Sim.NumDofs()},
	}
	if rep.Name() != mapping.IdentityName {
		dims[rep.Name()] = [3]int{rep.PosDim(), rep.VelDim(), rep.ForceDim()}
	}
	scratch := rollout.NewOwningBuffer(s.Steps, dims, 0)
	for i := range base {
		plus := s.finalReprStateWithMass(base, i, h, scratch)
		minus := s.finalReprStateWithMass(base, i, -h, scratch)
		for r := 0; r < len(plus); r++ {
			dst.Set(r, s.massOffset()+i, (plus[r]-minus[r])/(2*h))
		}
	}
	copy(s.Mass, base)
}

func (s *SingleShot) finalReprStateWithMass(base la.Vector, i int, delta float64, scratch rollout.Buffer) la.Vector {
	copy(s.Mass, base)
	s.Mass[i] += delta
	_ = s.Unroll(scratch)
	rep := s.Mappings.RepresentationName()
	out := make(la.Vector, 2*s.RepresentationDim())
	copy(out[:s.RepresentationDim()], col(scratch.Poses(rep), s.Steps-1))
	copy(out[s.RepresentationDim():], col(scratch.Vels(rep), s.Steps-1))
	return out
}

// blockStack vertically stacks a (n x n) over b (n x n) into (2n x n).
func blockStack(a, b *la.Matrix) *la.Matrix {
	n := a.N
	out := la.NewMatrix(2*a.M, n)
	for i := 0; i < a.M; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, a.Get(i, j))
		}
	}
	for i := 0; i < b.M; i++ {
		for j := 0; j < n; j++ {
			out.Set(a.M+i, j, b.Get(i, j))
		}
	}
	return out
}

// blockDiag builds a block-diagonal matrix with a and b on the diagonal.
func blockDiag(a, b *la.Matrix) *la.Matrix {
	out := la.NewMatrix(a.M+b.M, a.N+b.N)
	for i := 0; i < a.M; i++ {
		for j := 0; j < a.N; j++ {
			out.Set(i, j, a.Get(i, j))
		}
	}
	for i := 0; i < b.M; i++ {
		for j := 0; j < b.N; j++ {
			out.Set(a.M+i, a.N+j, b.Get(i, j))
		}
	}
	return out
}

// addInto returns a+b (a new matrix; neither input is mutated).
func addInto(a, b *la.Matrix) *la.Matrix {
	out := la.NewMatrix(a.M, a.N)
	for i := 0; i < a.M; i++ {
		for j := 0; j < a.N; j++ {
			out.Set(i, j, a.Get(i, j)+b.Get(i, j))
		}
	}
	return out
}

// setCols writes src's columns into dst starting at column offset.
func setCols(dst *la.Matrix, offset int, src *la.Matrix) {
	for j := 0; j < src.N; j++ {
		for i := 0; i < src.M; i++ {
			dst.Set(i, offset+j, src.Get(i, j))
		}
	}
}
