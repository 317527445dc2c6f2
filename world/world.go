// Package world defines the collaborator contracts the shooting-method
// core consumes but never implements: a time-stepping dynamics
// simulator and the per-step linearization it hands back to the core
// for backpropagation.
package world

import "github.com/cpmech/gosl/la"

// Restore reverts a Simulator to the state captured by Snapshot. Every
// core operation that mutates a Simulator temporarily must acquire one
// of these and call Restore on all exit paths, including failure.
type Restore interface {
	Restore()
}

// BackpropSnapshot is the per-step linearization of the dynamics: the
// six Jacobians of (pos_{t+1}, vel_{t+1}) with respect to
// (pos_t, vel_t, force_t). The core treats these as black boxes.
type BackpropSnapshot struct {
	PosPos   *la.Matrix // ∂pos_{t+1}/∂pos_t
	PosVel   *la.Matrix // ∂pos_{t+1}/∂vel_t
	PosForce *la.Matrix // ∂pos_{t+1}/∂force_t
	VelPos   *la.Matrix // ∂vel_{t+1}/∂pos_t
	VelVel   *la.Matrix // ∂vel_{t+1}/∂vel_t
	VelForce *la.Matrix // ∂vel_{t+1}/∂force_t
}

// Simulator is a time-stepping rigid-body world. Positions, velocities
// and forces are always expressed in the simulator's own joint-space
// coordinates; Mapping implementations translate to and from other
// representations.
type Simulator interface {
	// NumDofs returns the number of joint-space degrees of freedom.
	NumDofs() int

	// Positions, Velocities and Forces read the current joint-space state.
	Positions() la.Vector
	Velocities() la.Vector
	Forces() la.Vector

	// SetPositions, SetVelocities and SetForces write the joint-space state.
	SetPositions(pos la.Vector)
	SetVelocities(vel la.Vector)
	SetForces(frc la.Vector)

	// Step advances the simulation by one tick using the currently set
	// forces. An error aborts the current unroll (§7: simulator step
	// failure propagates, it is not a programmer-contract violation).
	Step() error

	// Clone returns an independent copy suitable for parallel shot
	// execution; mutating the clone never affects the original.
	Clone() Simulator

	// Snapshot captures the current state so it can be restored later.
	Snapshot() Restore

	// Linearize returns the six Jacobians of the step just taken. It
	// must be called immediately after Step to refer to that step.
	Linearize() (*BackpropSnapshot, error)

	// Bounds on joint-space position, velocity and force, one entry per DOF.
	PositionLowerLimits() la.Vector
	PositionUpperLimits() la.Vector
	VelocityLowerLimits() la.Vector
	VelocityUpperLimits() la.Vector
	ForceLowerLimits() la.Vector
	ForceUpperLimits() la.Vector

	// NumMassParams and mass-parameter accessors support the optional
	// mass-tuning block of the flat variable layout (spec §4.4).
	NumMassParams() int
	MassParams() la.Vector
	SetMassParams(m la.Vector)
	MassLowerLimits() la.Vector
	MassUpperLimits() la.Vector

	// BodyNodeNames and ForwardKinematics back the Rollout JSON
	// emission format: given the joint-space positions currently set
	// on the simulator, ForwardKinematics returns body-node name's
	// world-frame translation and XYZ Euler rotation.
	BodyNodeNames() []string
	ForwardKinematics(name string) (translation, eulerXYZ [3]float64)

	// BodyJacobian returns the 6xNumDofs spatial Jacobian (translation
	// then XYZ-Euler rows) of the named body node with respect to the
	// currently set joint-space positions. Consumed as a pure function
	// by the IK mapping; Euler-angle parameterization and its
	// derivatives are themselves out of scope (spec §1).
	BodyJacobian(name string) *la.Matrix
}
