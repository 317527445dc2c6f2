// Package mapping implements named, invertible views over a
// world.Simulator's state: the identity joint-space mapping and
// inverse-kinematics subset mappings, swappable without the
// trajopt core losing problem identity.
package mapping

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"

	"github.com/kelvin34501/nimblephysics/world"
)

// Mapping is a named view with fixed dimensions and invertible
// read/write to/from the world. Dimensions are constant for the
// lifetime of a problem (spec §3).
type Mapping interface {
	Name() string
	PosDim() int
	VelDim() int
	ForceDim() int

	ReadPositions(sim world.Simulator) la.Vector
	ReadVelocities(sim world.Simulator) la.Vector
	ReadForces(sim world.Simulator) la.Vector

	WritePositions(sim world.Simulator, pos la.Vector)
	WriteVelocities(sim world.Simulator, vel la.Vector)
	WriteForces(sim world.Simulator, frc la.Vector)

	// PositionBounds, VelocityBounds and ForceBounds express the
	// simulator's joint limits in this mapping's coordinates (spec
	// §4.4: "position and velocity bounds come from joint limits in
	// the current mapping").
	PositionBounds(sim world.Simulator) (lower, upper la.Vector)
	VelocityBounds(sim world.Simulator) (lower, upper la.Vector)
	ForceBounds(sim world.Simulator) (lower, upper la.Vector)

	// PosJacobian returns d(mapped position)/d(joint position) at the
	// simulator's current state, used by trajopt to chain backprop
	// Jacobians (always computed in joint space, since that is the
	// space world.BackpropSnapshot is expressed in) into this
	// mapping's coordinates.
	PosJacobian(sim world.Simulator) *la.Matrix
}

// IdentityName is the name of the mapping that is always present in a
// Registry and reads/writes raw joint-space vectors.
const IdentityName = "identity"

// Registry holds named mappings plus a designated representation
// mapping, the vector space start states and defect constraints live
// in. Lookup is name-keyed rather than inheritance-based so mapping
// variants stay swappable without touching the problem core.
type Registry struct {
	byName         map[string]Mapping
	representation string
}

// NewRegistry builds a registry seeded with the identity mapping for
// the given simulator's DOF count, set as the initial representation.
func NewRegistry(numDofs int) *Registry {
	r := &Registry{byName: make(map[string]Mapping)}
	ident := NewIdentityMapping(numDofs)
	r.byName[ident.Name()] = ident
	r.representation = ident.Name()
	return r
}

// Register adds a mapping under its own name, overwriting any previous
// mapping registered under that name.
func (r *Registry) Register(m Mapping) {
	r.byName[m.Name()] = m
}

// Names returns all registered mapping names in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Get looks up a mapping by name. A missing mapping is a fatal
// program-contract violation (spec §7).
func (r *Registry) Get(name string) Mapping {
	m, ok := r.byName[name]
	if !ok {
		chk.Panic("mapping registry: unknown mapping %q", name)
	}
	return m
}

// Representation returns the currently designated representation mapping.
func (r *Registry) Representation() Mapping {
	return r.Get(r.representation)
}

// RepresentationName returns the name of the currently designated
// representation mapping.
func (r *Registry) RepresentationName() string {
	return r.representation
}

// SwitchRepresentation changes the representation mapping used for
// start states and defect constraints. It only records the new name:
// sim is not read or written, and no stored start state or rollout
// column is converted into the new mapping's coordinates. If the new
// mapping has a smaller posDim or velDim than the old one, a
// diagnostic warns that a round trip through it is not guaranteed.
func (r *Registry) SwitchRepresentation(sim world.Simulator, newName string) {
	newMap := r.Get(newName)
	oldMap := r.Representation()
	if newMap.PosDim() < oldMap.PosDim() || newMap.VelDim() < oldMap.VelDim() {
		io.Pfyel("mapping: switching %q -> %q loses dimension (posDim %d->%d, velDim %d->%d); round-trip not guaranteed\n",
			oldMap.Name(), newMap.Name(), oldMap.PosDim(), newMap.PosDim(), oldMap.VelDim(), newMap.VelDim())
	}
	r.representation = newName
}

// IdentityMapping reads/writes raw joint-space position/velocity/force
// vectors; it is required to be present in every registry.
type IdentityMapping struct {
	numDofs int
}

// NewIdentityMapping builds the identity mapping for a simulator with
// the given number of joint-space degrees of freedom.
func NewIdentityMapping(numDofs int) *IdentityMapping {
	return &IdentityMapping{numDofs: numDofs}
}

func (m *IdentityMapping) Name() string   { return IdentityName }
func (m *IdentityMapping) PosDim() int    { return m.numDofs }
func (m *IdentityMapping) VelDim() int    { return m.numDofs }
func (m *IdentityMapping) ForceDim() int  { return m.numDofs }

func (m *IdentityMapping) ReadPositions(sim world.Simulator) la.Vector { return sim.Positions() }
func (m *IdentityMapping) ReadVelocities(sim world.Simulator) la.Vector { return sim.Velocities() }
func (m *IdentityMapping) ReadForces(sim world.Simulator) la.Vector    { return sim.Forces() }

func (m *IdentityMapping) WritePositions(sim world.Simulator, pos la.Vector) {
	if len(pos) != m.numDofs {
		chk.Panic("identity mapping: position vector has length %d, want %d", len(pos), m.numDofs)
	}
	sim.SetPositions(pos)
}

func (m *IdentityMapping) WriteVelocities(sim world.Simulator, vel la.Vector) {
	if len(vel) != m.numDofs {
		chk.Panic("identity mapping: velocity vector has length %d, want %d", len(vel), m.numDofs)
	}
	sim.SetVelocities(vel)
}

func (m *IdentityMapping) WriteForces(sim world.Simulator, frc la.Vector) {
	if len(frc) != m.numDofs {
		chk.Panic("identity mapping: force vector has length %d, want %d", len(frc), m.numDofs)
	}
	sim.SetForces(frc)
}

func (m *IdentityMapping) PositionBounds(sim world.Simulator) (lower, upper la.Vector) {
	return sim.PositionLowerLimits(), sim.PositionUpperLimits()
}

func (m *IdentityMapping) VelocityBounds(sim world.Simulator) (lower, upper la.Vector) {
	return sim.VelocityLowerLimits(), sim.VelocityUpperLimits()
}

func (m *IdentityMapping) ForceBounds(sim world.Simulator) (lower, upper la.Vector) {
	return sim.ForceLowerLimits(), sim.ForceUpperLimits()
}

// PosJacobian is the identity matrix: identity-mapping coordinates are
// joint-space coordinates.
func (m *IdentityMapping) PosJacobian(sim world.Simulator) *la.Matrix {
	out := la.NewMatrix(m.numDofs, m.numDofs)
	for i := 0; i < m.numDofs; i++ {
		out.Set(i, i, 1)
	}
	return out
}
