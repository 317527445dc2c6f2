package testworld

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/world"
)

// JumpwormLike is a minimal multi-DOF articulated body over a floor,
// used only to exercise the parallel-vs-serial bit-identical scenario
// (spec.md §8's "Parallel jumpworm"); no contact solver is modeled
// (explicitly out of scope, spec.md §1). Each DOF is an independent
// point mass falling under gravity with a compliant floor contact
// (piecewise-smooth spring-damper, no LCP, per DESIGN.md), so its
// Jacobians are block-diagonal across DOFs and Clone is a cheap deep
// copy — exactly the shape needed for independent per-shot goroutine
// simulation.
type JumpwormLike struct {
	dt       float64
	numDofs  int
	g        float64
	floorK   float64
	floorC   float64
	floorY   float64

	pos, vel, force la.Vector
	mass            la.Vector

	lastSnap *world.BackpropSnapshot
}

// NewJumpwormLike builds a chain of numDofs independent falling point
// masses starting at height startHeight, each with unit mass.
func NewJumpwormLike(dt float64, numDofs int, startHeight float64) *JumpwormLike {
	pos := make(la.Vector, numDofs)
	for i := range pos {
		pos[i] = startHeight
	}
	return &JumpwormLike{
		dt: dt, numDofs: numDofs, g: 9.8, floorK: 500, floorC: 50, floorY: 0,
		pos: pos, vel: la.NewVector(numDofs), force: la.NewVector(numDofs),
		mass: onesVector(numDofs),
	}
}

func onesVector(n int) la.Vector {
	v := make(la.Vector, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func (j *JumpwormLike) NumDofs() int { return j.numDofs }

func (j *JumpwormLike) Positions() la.Vector  { return append(la.Vector{}, j.pos...) }
func (j *JumpwormLike) Velocities() la.Vector { return append(la.Vector{}, j.vel...) }
func (j *JumpwormLike) Forces() la.Vector     { return append(la.Vector{}, j.force...) }

func (j *JumpwormLike) SetPositions(v la.Vector)  { copy(j.pos, v) }
func (j *JumpwormLike) SetVelocities(v la.Vector) { copy(j.vel, v) }
func (j *JumpwormLike) SetForces(v la.Vector)     { copy(j.force, v) }

// Step advances every DOF independently: gravity plus an applied force
// plus, below the floor, a compliant spring-damper contact force
// contact = -floorK*penetration - floorC*vel (active only while
// pos < floorY); the per-DOF Jacobian blocks are diagonal.
func (j *JumpwormLike) Step() error {
	n := j.numDofs
	dt := j.dt
	posPos := la.NewMatrix(n, n)
	posVel := la.NewMatrix(n, n)
	posForce := la.NewMatrix(n, n)
	velPos := la.NewMatrix(n, n)
	velVel := la.NewMatrix(n, n)
	velForce := la.NewMatrix(n, n)

	newPos := la.NewVector(n)
	newVel := la.NewVector(n)

	for i := 0; i < n; i++ {
		m := j.mass[i]
		contactActive := j.pos[i] < j.floorY
		var dAccDPos, dAccDVel float64
		accel := -j.g + j.force[i]/m
		if contactActive {
			accel += (-j.floorK*(j.pos[i]-j.floorY) - j.floorC*j.vel[i]) / m
			dAccDPos = -j.floorK / m
			dAccDVel = -j.floorC / m
		}
		dAccDForce := 1 / m

		vi := j.vel[i] + accel*dt
		pi := j.pos[i] + vi*dt

		vp := dt * dAccDPos
		vv := 1 + dt*dAccDVel
		vf := dt * dAccDForce

		velPos.Set(i, i, vp)
		velVel.Set(i, i, vv)
		velForce.Set(i, i, vf)
		posPos.Set(i, i, 1+dt*vp)
		posVel.Set(i, i, dt*vv)
		posForce.Set(i, i, dt*vf)

		newPos[i] = pi
		newVel[i] = vi
	}

	j.lastSnap = &world.BackpropSnapshot{
		PosPos: posPos, PosVel: posVel, PosForce: posForce,
		VelPos: velPos, VelVel: velVel, VelForce: velForce,
	}
	copy(j.pos, newPos)
	copy(j.vel, newVel)
	return nil
}

func (j *JumpwormLike) Clone() world.Simulator {
	cp := *j
	cp.pos = append(la.Vector{}, j.pos...)
	cp.vel = append(la.Vector{}, j.vel...)
	cp.force = append(la.Vector{}, j.force...)
	cp.mass = append(la.Vector{}, j.mass...)
	cp.lastSnap = j.lastSnap
	return &cp
}

type jumpwormRestore struct {
	pos, vel, force, mass la.Vector
	target                *JumpwormLike
}

func (s *jumpwormRestore) Restore() {
	copy(s.target.pos, s.pos)
	copy(s.target.vel, s.vel)
	copy(s.target.force, s.force)
	copy(s.target.mass, s.mass)
}

func (j *JumpwormLike) Snapshot() world.Restore {
	return &jumpwormRestore{
		pos: append(la.Vector{}, j.pos...), vel: append(la.Vector{}, j.vel...),
		force: append(la.Vector{}, j.force...), mass: append(la.Vector{}, j.mass...),
		target: j,
	}
}

func (j *JumpwormLike) Linearize() (*world.BackpropSnapshot, error) {
	if j.lastSnap == nil {
		chk.Panic("testworld: JumpwormLike.Linearize called before Step")
	}
	return j.lastSnap, nil
}

func constVector(n int, v float64) la.Vector {
	out := make(la.Vector, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (j *JumpwormLike) PositionLowerLimits() la.Vector { return constVector(j.numDofs, -10) }
func (j *JumpwormLike) PositionUpperLimits() la.Vector { return constVector(j.numDofs, 10) }
func (j *JumpwormLike) VelocityLowerLimits() la.Vector { return constVector(j.numDofs, -20) }
func (j *JumpwormLike) VelocityUpperLimits() la.Vector { return constVector(j.numDofs, 20) }
func (j *JumpwormLike) ForceLowerLimits() la.Vector    { return constVector(j.numDofs, -40) }
func (j *JumpwormLike) ForceUpperLimits() la.Vector    { return constVector(j.numDofs, 40) }

func (j *JumpwormLike) NumMassParams() int        { return j.numDofs }
func (j *JumpwormLike) MassParams() la.Vector     { return append(la.Vector{}, j.mass...) }
func (j *JumpwormLike) SetMassParams(m la.Vector) { copy(j.mass, m) }
func (j *JumpwormLike) MassLowerLimits() la.Vector { return constVector(j.numDofs, 0.1) }
func (j *JumpwormLike) MassUpperLimits() la.Vector { return constVector(j.numDofs, 10) }

func (j *JumpwormLike) BodyNodeNames() []string {
	names := make([]string, j.numDofs)
	for i := range names {
		names[i] = bodyNodeName(i)
	}
	return names
}

func bodyNodeName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "segment_" + string(letters[i%len(letters)])
}

func (j *JumpwormLike) ForwardKinematics(name string) (translation, eulerXYZ [3]float64) {
	i := j.indexOf(name)
	translation = [3]float64{0, j.pos[i], 0}
	return
}

func (j *JumpwormLike) BodyJacobian(name string) *la.Matrix {
	i := j.indexOf(name)
	J := la.NewMatrix(6, j.numDofs)
	J.Set(1, i, 1)
	return J
}

func (j *JumpwormLike) indexOf(name string) int {
	for i := 0; i < j.numDofs; i++ {
		if bodyNodeName(i) == name {
			return i
		}
	}
	chk.Panic("testworld: JumpwormLike has no body node %q", name)
	return -1
}
