package testworld

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/world"
)

// Cartpole is a prismatic cart carrying a revolute pole (Florian's
// standard cart-pole equations, frictionless), state (x, theta,
// xdot, thetadot), force (cartForce, poleTorque). Position x does not
// enter the accelerations, only theta/thetadot/force do.
type Cartpole struct {
	dt               float64
	CartMass, PoleMass, HalfLength, G float64

	pos, vel, force la.Vector // [cart, pole] order throughout

	lastSnap *world.BackpropSnapshot
}

// NewCartpole builds a cartpole with the pole released at theta0
// radians from hanging-down, integrated with step dt.
func NewCartpole(dt, cartMass, poleMass, halfLength, g, theta0 float64) *Cartpole {
	return &Cartpole{
		dt: dt, CartMass: cartMass, PoleMass: poleMass, HalfLength: halfLength, G: g,
		pos: la.Vector{0, theta0}, vel: la.Vector{0, 0}, force: la.Vector{0, 0},
	}
}

func (c *Cartpole) NumDofs() int { return 2 }

func (c *Cartpole) Positions() la.Vector  { return append(la.Vector{}, c.pos...) }
func (c *Cartpole) Velocities() la.Vector { return append(la.Vector{}, c.vel...) }
func (c *Cartpole) Forces() la.Vector     { return append(la.Vector{}, c.force...) }

func (c *Cartpole) SetPositions(v la.Vector)  { copy(c.pos, v) }
func (c *Cartpole) SetVelocities(v la.Vector) { copy(c.vel, v) }
func (c *Cartpole) SetForces(v la.Vector)     { copy(c.force, v) }

// accelerations returns (xacc, thetaacc) and their partial derivatives
// with respect to (theta, thetadot, cartForce, poleTorque); x and xdot
// never enter the equations.
func (c *Cartpole) accelerations() (xacc, thetaacc float64, dXacc, dThetaacc [4]float64) {
	M, m, l, g := c.CartMass, c.PoleMass, c.HalfLength, c.G
	Mt := M + m
	theta, thetadot := c.pos[1], c.vel[1]
	F, tau := c.force[0], c.force[1]
	s, cs := math.Sin(theta), math.Cos(theta)

	temp := (F + m*l*thetadot*thetadot*s) / Mt
	dTempDTheta := m * l * thetadot * thetadot * cs / Mt
	dTempDThetadot := 2 * m * l * thetadot * s / Mt
	dTempDF := 1 / Mt

	denom := l * (4.0/3.0 - m*cs*cs/Mt)
	dDenomDTheta := 2 * m * l * cs * s / Mt

	numTheta := g*s - cs*temp
	dNumDTheta := g*cs + s*temp - cs*dTempDTheta
	dNumDThetadot := -cs * dTempDThetadot
	dNumDF := -cs * dTempDF

	thetaacc = numTheta/denom + tau/(m*l*l)
	dThetaaccDTheta := (dNumDTheta*denom - numTheta*dDenomDTheta) / (denom * denom)
	dThetaaccDThetadot := dNumDThetadot / denom
	dThetaaccDF := dNumDF / denom
	dThetaaccDTau := 1 / (m * l * l)

	xacc = temp - m*l*thetaacc*cs/Mt
	dXaccDTheta := dTempDTheta - (m*l/Mt)*(dThetaaccDTheta*cs+thetaacc*(-s))
	dXaccDThetadot := dTempDThetadot - (m*l/Mt)*(dThetaaccDThetadot*cs)
	dXaccDF := dTempDF - (m*l/Mt)*(dThetaaccDF*cs)
	dXaccDTau := -(m * l * cs / Mt) * dThetaaccDTau

	dXacc = [4]float64{dXaccDTheta, dXaccDThetadot, dXaccDF, dXaccDTau}
	dThetaacc = [4]float64{dThetaaccDTheta, dThetaaccDThetadot, dThetaaccDF, dThetaaccDTau}
	return
}

// Step advances with semi-implicit Euler, vel first then pos:
//
//	vel_{t+1} = vel_t + acc_t*dt
//	pos_{t+1} = pos_t + vel_{t+1}*dt
//
// Since acc depends only on (theta, thetadot, force), the resulting
// six Jacobian blocks reduce to PosPos = I + dt*VelPos,
// PosVel = dt*VelVel, PosForce = dt*VelForce (spec §4.4's per-step
// Jacobian shapes), with VelPos/VelVel/VelForce built directly from
// accelerations' partials.
func (c *Cartpole) Step() error {
	dt := c.dt
	xacc, thetaacc, dXacc, dThetaacc := c.accelerations()

	newXdot := c.vel[0] + xacc*dt
	newThetadot := c.vel[1] + thetaacc*dt
	newX := c.pos[0] + newXdot*dt
	newTheta := c.pos[1] + newThetadot*dt

	velPos := la.NewMatrix(2, 2)
	velPos.Set(0, 1, dt*dXacc[0])
	velPos.Set(1, 1, dt*dThetaacc[0])

	velVel := la.NewMatrix(2, 2)
	velVel.Set(0, 0, 1)
	velVel.Set(0, 1, dt*dXacc[1])
	velVel.Set(1, 1, 1+dt*dThetaacc[1])

	velForce := la.NewMatrix(2, 2)
	velForce.Set(0, 0, dt*dXacc[2])
	velForce.Set(0, 1, dt*dXacc[3])
	velForce.Set(1, 0, dt*dThetaacc[2])
	velForce.Set(1, 1, dt*dThetaacc[3])

	posPos := la.NewMatrix(2, 2)
	posVel := la.NewMatrix(2, 2)
	posForce := la.NewMatrix(2, 2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			id := 0.0
			if i == j {
				id = 1
			}
			posPos.Set(i, j, id+dt*velPos.Get(i, j))
			posVel.Set(i, j, dt*velVel.Get(i, j))
			posForce.Set(i, j, dt*velForce.Get(i, j))
		}
	}

	c.lastSnap = &world.BackpropSnapshot{
		PosPos: posPos, PosVel: posVel, PosForce: posForce,
		VelPos: velPos, VelVel: velVel, VelForce: velForce,
	}

	c.pos[0], c.pos[1] = newX, newTheta
	c.vel[0], c.vel[1] = newXdot, newThetadot
	return nil
}

func (c *Cartpole) Clone() world.Simulator {
	cp := *c
	cp.pos = append(la.Vector{}, c.pos...)
	cp.vel = append(la.Vector{}, c.vel...)
	cp.force = append(la.Vector{}, c.force...)
	cp.lastSnap = c.lastSnap
	return &cp
}

type cartpoleRestore struct {
	pos, vel, force la.Vector
	target          *Cartpole
}

func (s *cartpoleRestore) Restore() {
	copy(s.target.pos, s.pos)
	copy(s.target.vel, s.vel)
	copy(s.target.force, s.force)
}

func (c *Cartpole) Snapshot() world.Restore {
	return &cartpoleRestore{
		pos: append(la.Vector{}, c.pos...), vel: append(la.Vector{}, c.vel...),
		force: append(la.Vector{}, c.force...), target: c,
	}
}

func (c *Cartpole) Linearize() (*world.BackpropSnapshot, error) {
	if c.lastSnap == nil {
		chk.Panic("testworld: Cartpole.Linearize called before Step")
	}
	return c.lastSnap, nil
}

func (c *Cartpole) PositionLowerLimits() la.Vector { return la.Vector{-5, -2 * math.Pi} }
func (c *Cartpole) PositionUpperLimits() la.Vector { return la.Vector{5, 2 * math.Pi} }
func (c *Cartpole) VelocityLowerLimits() la.Vector { return la.Vector{-20, -20} }
func (c *Cartpole) VelocityUpperLimits() la.Vector { return la.Vector{20, 20} }
func (c *Cartpole) ForceLowerLimits() la.Vector    { return la.Vector{-30, -10} }
func (c *Cartpole) ForceUpperLimits() la.Vector    { return la.Vector{30, 10} }

// Cartpole has no tunable mass parameters in this spec's test scenarios.
func (c *Cartpole) NumMassParams() int        { return 0 }
func (c *Cartpole) MassParams() la.Vector     { return la.NewVector(0) }
func (c *Cartpole) SetMassParams(m la.Vector) {}
func (c *Cartpole) MassLowerLimits() la.Vector { return la.NewVector(0) }
func (c *Cartpole) MassUpperLimits() la.Vector { return la.NewVector(0) }

func (c *Cartpole) BodyNodeNames() []string { return []string{"cart", "pole_tip"} }

func (c *Cartpole) ForwardKinematics(name string) (translation, eulerXYZ [3]float64) {
	x, theta := c.pos[0], c.pos[1]
	switch name {
	case "cart":
		translation = [3]float64{x, 0, 0}
	case "pole_tip":
		l2 := 2 * c.HalfLength
		translation = [3]float64{x + l2*math.Sin(theta), -l2 * math.Cos(theta), 0}
		eulerXYZ = [3]float64{0, 0, theta}
	default:
		chk.Panic("testworld: Cartpole has no body node %q", name)
	}
	return
}

func (c *Cartpole) BodyJacobian(name string) *la.Matrix {
	theta := c.pos[1]
	J := la.NewMatrix(6, 2)
	switch name {
	case "cart":
		J.Set(0, 0, 1)
	case "pole_tip":
		l2 := 2 * c.HalfLength
		J.Set(0, 0, 1)
		J.Set(0, 1, l2*math.Cos(theta))
		J.Set(1, 1, l2*math.Sin(theta))
		J.Set(5, 1, 1)
	default:
		chk.Panic("testworld: Cartpole has no body node %q", name)
	}
	return J
}
