// Package testworld supplies closed-form, analytically-differentiable
// toy world.Simulator implementations used only by tests: a sliding
// box, a pendulum, a cartpole, and a decoupled multi-DOF "jumpworm"
// chain with a compliant floor. Nothing under world/, mapping/,
// rollout/, loss/, or trajopt/ imports this package (spec.md §1 places
// the physics engine itself out of scope; these exist only to drive
// the §8 testable properties and end-to-end scenarios).
//
// Every world integrates with semi-implicit (symplectic) Euler,
// structurally grounded on the teacher's Newmark/HHT coefficient
// bookkeeping in fem/dyncoefs.go, simplified to its plain
// semi-implicit case: velocity is updated first from the current
// acceleration, then position from the new velocity. The six
// BackpropSnapshot Jacobians are the exact analytic derivatives of
// that discrete update, not an approximation, so centered finite
// differences on any of these worlds agree with them to near machine
// precision.
package testworld

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/world"
)

// SlidingBox is a single translational DOF point mass driven by one
// force channel, with a tunable mass parameter used by the "mass
// recovery" end-to-end scenario (spec.md §8).
type SlidingBox struct {
	dt float64

	pos, vel, force la.Vector
	mass            la.Vector // length 1

	posLo, posHi   la.Vector
	velLo, velHi   la.Vector
	frcLo, frcHi   la.Vector
	massLo, massHi la.Vector

	lastSnap *world.BackpropSnapshot
}

// NewSlidingBox builds a sliding box with the given integration step
// and initial mass.
func NewSlidingBox(dt, mass float64) *SlidingBox {
	return &SlidingBox{
		dt:     dt,
		pos:    la.Vector{0},
		vel:    la.Vector{0},
		force:  la.Vector{0},
		mass:   la.Vector{mass},
		posLo:  la.Vector{-10}, posHi: la.Vector{10},
		velLo:  la.Vector{-10}, velHi: la.Vector{10},
		frcLo:  la.Vector{-50}, frcHi: la.Vector{50},
		massLo: la.Vector{0.1}, massHi: la.Vector{10},
	}
}

func (b *SlidingBox) NumDofs() int { return 1 }

func (b *SlidingBox) Positions() la.Vector  { return append(la.Vector{}, b.pos...) }
func (b *SlidingBox) Velocities() la.Vector { return append(la.Vector{}, b.vel...) }
func (b *SlidingBox) Forces() la.Vector     { return append(la.Vector{}, b.force...) }

func (b *SlidingBox) SetPositions(v la.Vector)  { copy(b.pos, v) }
func (b *SlidingBox) SetVelocities(v la.Vector) { copy(b.vel, v) }
func (b *SlidingBox) SetForces(v la.Vector)     { copy(b.force, v) }

func mat1(v float64) *la.Matrix {
	m := la.NewMatrix(1, 1)
	m.Set(0, 0, v)
	return m
}

// Step advances x_{t+1} = x_t + v_{t+1}*dt, v_{t+1} = v_t + (f_t/m)*dt,
// the single-DOF semi-implicit Euler update.
func (b *SlidingBox) Step() error {
	m := b.mass[0]
	dt := b.dt
	f := b.force[0]
	accel := f / m

	newVel := b.vel[0] + accel*dt
	newPos := b.pos[0] + newVel*dt

	b.lastSnap = &world.BackpropSnapshot{
		PosPos:   mat1(1),
		PosVel:   mat1(dt),
		PosForce: mat1(dt * dt / m),
		VelPos:   mat1(0),
		VelVel:   mat1(1),
		VelForce: mat1(dt / m),
	}

	b.pos[0] = newPos
	b.vel[0] = newVel
	return nil
}

func (b *SlidingBox) Clone() world.Simulator {
	cp := *b
	cp.pos = append(la.Vector{}, b.pos...)
	cp.vel = append(la.Vector{}, b.vel...)
	cp.force = append(la.Vector{}, b.force...)
	cp.mass = append(la.Vector{}, b.mass...)
	cp.lastSnap = b.lastSnap
	return &cp
}

type slidingBoxRestore struct {
	pos, vel, force, mass la.Vector
	target                *SlidingBox
}

func (s *slidingBoxRestore) Restore() {
	copy(s.target.pos, s.pos)
	copy(s.target.vel, s.vel)
	copy(s.target.force, s.force)
	copy(s.target.mass, s.mass)
}

func (b *SlidingBox) Snapshot() world.Restore {
	return &slidingBoxRestore{
		pos: append(la.Vector{}, b.pos...), vel: append(la.Vector{}, b.vel...),
		force: append(la.Vector{}, b.force...), mass: append(la.Vector{}, b.mass...),
		target: b,
	}
}

func (b *SlidingBox) Linearize() (*world.BackpropSnapshot, error) {
	if b.lastSnap == nil {
		chk.Panic("testworld: SlidingBox.Linearize called before Step")
	}
	return b.lastSnap, nil
}

func (b *SlidingBox) PositionLowerLimits() la.Vector { return append(la.Vector{}, b.posLo...) }
func (b *SlidingBox) PositionUpperLimits() la.Vector { return append(la.Vector{}, b.posHi...) }
func (b *SlidingBox) VelocityLowerLimits() la.Vector { return append(la.Vector{}, b.velLo...) }
func (b *SlidingBox) VelocityUpperLimits() la.Vector { return append(la.Vector{}, b.velHi...) }
func (b *SlidingBox) ForceLowerLimits() la.Vector    { return append(la.Vector{}, b.frcLo...) }
func (b *SlidingBox) ForceUpperLimits() la.Vector    { return append(la.Vector{}, b.frcHi...) }

func (b *SlidingBox) NumMassParams() int        { return 1 }
func (b *SlidingBox) MassParams() la.Vector     { return append(la.Vector{}, b.mass...) }
func (b *SlidingBox) SetMassParams(m la.Vector) { copy(b.mass, m) }
func (b *SlidingBox) MassLowerLimits() la.Vector { return append(la.Vector{}, b.massLo...) }
func (b *SlidingBox) MassUpperLimits() la.Vector { return append(la.Vector{}, b.massHi...) }

func (b *SlidingBox) BodyNodeNames() []string { return []string{"box"} }

func (b *SlidingBox) ForwardKinematics(name string) (translation, eulerXYZ [3]float64) {
	if name != "box" {
		chk.Panic("testworld: SlidingBox has no body node %q", name)
	}
	translation = [3]float64{b.pos[0], 0, 0}
	return
}

func (b *SlidingBox) BodyJacobian(name string) *la.Matrix {
	if name != "box" {
		chk.Panic("testworld: SlidingBox has no body node %q", name)
	}
	J := la.NewMatrix(6, 1)
	J.Set(0, 0, 1)
	return J
}
