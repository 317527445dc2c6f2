package testworld

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/world"
)

// Pendulum is a single revolute DOF: a point mass at the end of a
// massless rod of length Length, pivoting under gravity G and driven
// by a joint torque. State is (theta, thetadot); force is a torque.
type Pendulum struct {
	dt     float64
	Length float64
	G      float64

	pos, vel, force la.Vector
	mass            la.Vector // length 1, moment-of-inertia scaling mass

	lastSnap *world.BackpropSnapshot
}

// NewPendulum builds a pendulum released at the given angle (radians,
// 0 = hanging straight down), integrated with step dt.
func NewPendulum(dt, length, mass, g, theta0 float64) *Pendulum {
	return &Pendulum{
		dt: dt, Length: length, G: g,
		pos: la.Vector{theta0}, vel: la.Vector{0}, force: la.Vector{0},
		mass: la.Vector{mass},
	}
}

func (p *Pendulum) NumDofs() int { return 1 }

func (p *Pendulum) Positions() la.Vector  { return append(la.Vector{}, p.pos...) }
func (p *Pendulum) Velocities() la.Vector { return append(la.Vector{}, p.vel...) }
func (p *Pendulum) Forces() la.Vector     { return append(la.Vector{}, p.force...) }

func (p *Pendulum) SetPositions(v la.Vector)  { copy(p.pos, v) }
func (p *Pendulum) SetVelocities(v la.Vector) { copy(p.vel, v) }
func (p *Pendulum) SetForces(v la.Vector)     { copy(p.force, v) }

// Step advances the pendulum with semi-implicit Euler:
//
//	thetaacc = -(g/L)*sin(theta) + tau/(m*L^2)
//	thetadot_{t+1} = thetadot_t + thetaacc*dt
//	theta_{t+1}    = theta_t + thetadot_{t+1}*dt
func (p *Pendulum) Step() error {
	L, g, m := p.Length, p.G, p.mass[0]
	dt := p.dt
	theta, tau := p.pos[0], p.force[0]
	s, c := math.Sin(theta), math.Cos(theta)

	thetaacc := -(g/L)*s + tau/(m*L*L)
	newThetadot := p.vel[0] + thetaacc*dt
	newTheta := p.pos[0] + newThetadot*dt

	dAccDTheta := -(g / L) * c
	dAccDTau := 1 / (m * L * L)

	velPos := dt * dAccDTheta
	velVel := 1.0
	velForce := dt * dAccDTau

	p.lastSnap = &world.BackpropSnapshot{
		PosPos:   mat1(1 + dt*velPos),
		PosVel:   mat1(dt * velVel),
		PosForce: mat1(dt * velForce),
		VelPos:   mat1(velPos),
		VelVel:   mat1(velVel),
		VelForce: mat1(velForce),
	}

	p.pos[0] = newTheta
	p.vel[0] = newThetadot
	return nil
}

func (p *Pendulum) Clone() world.Simulator {
	cp := *p
	cp.pos = append(la.Vector{}, p.pos...)
	cp.vel = append(la.Vector{}, p.vel...)
	cp.force = append(la.Vector{}, p.force...)
	cp.mass = append(la.Vector{}, p.mass...)
	cp.lastSnap = p.lastSnap
	return &cp
}

type pendulumRestore struct {
	pos, vel, force, mass la.Vector
	target                *Pendulum
}

func (s *pendulumRestore) Restore() {
	copy(s.target.pos, s.pos)
	copy(s.target.vel, s.vel)
	copy(s.target.force, s.force)
	copy(s.target.mass, s.mass)
}

func (p *Pendulum) Snapshot() world.Restore {
	return &pendulumRestore{
		pos: append(la.Vector{}, p.pos...), vel: append(la.Vector{}, p.vel...),
		force: append(la.Vector{}, p.force...), mass: append(la.Vector{}, p.mass...),
		target: p,
	}
}

func (p *Pendulum) Linearize() (*world.BackpropSnapshot, error) {
	if p.lastSnap == nil {
		chk.Panic("testworld: Pendulum.Linearize called before Step")
	}
	return p.lastSnap, nil
}

func (p *Pendulum) PositionLowerLimits() la.Vector { return la.Vector{-2 * math.Pi} }
func (p *Pendulum) PositionUpperLimits() la.Vector { return la.Vector{2 * math.Pi} }
func (p *Pendulum) VelocityLowerLimits() la.Vector { return la.Vector{-50} }
func (p *Pendulum) VelocityUpperLimits() la.Vector { return la.Vector{50} }
func (p *Pendulum) ForceLowerLimits() la.Vector    { return la.Vector{-20} }
func (p *Pendulum) ForceUpperLimits() la.Vector    { return la.Vector{20} }

func (p *Pendulum) NumMassParams() int        { return 1 }
func (p *Pendulum) MassParams() la.Vector     { return append(la.Vector{}, p.mass...) }
func (p *Pendulum) SetMassParams(m la.Vector) { copy(p.mass, m) }
func (p *Pendulum) MassLowerLimits() la.Vector { return la.Vector{0.1} }
func (p *Pendulum) MassUpperLimits() la.Vector { return la.Vector{10} }

func (p *Pendulum) BodyNodeNames() []string { return []string{"pendulum_bob"} }

// ForwardKinematics places the bob at (L*sin(theta), -L*cos(theta), 0),
// rotated by theta about z.
func (p *Pendulum) ForwardKinematics(name string) (translation, eulerXYZ [3]float64) {
	if name != "pendulum_bob" {
		chk.Panic("testworld: Pendulum has no body node %q", name)
	}
	theta := p.pos[0]
	translation = [3]float64{p.Length * math.Sin(theta), -p.Length * math.Cos(theta), 0}
	eulerXYZ = [3]float64{0, 0, theta}
	return
}

// BodyJacobian is d(translation,rotation)/d(theta), a 6x1 matrix.
func (p *Pendulum) BodyJacobian(name string) *la.Matrix {
	if name != "pendulum_bob" {
		chk.Panic("testworld: Pendulum has no body node %q", name)
	}
	theta := p.pos[0]
	J := la.NewMatrix(6, 1)
	J.Set(0, 0, p.Length*math.Cos(theta))
	J.Set(1, 0, p.Length*math.Sin(theta))
	J.Set(5, 0, 1)
	return J
}
