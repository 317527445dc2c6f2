package trajopt

import (
	"github.com/kelvin34501/nimblephysics/mapping"
	"github.com/kelvin34501/nimblephysics/rollout"
	"github.com/kelvin34501/nimblephysics/world"
)

// newRollout allocates an owning buffer wide enough to record every
// mapping in registry over steps timesteps, for internal use by a
// Problem's ComputeLoss/BackpropGradient implementations.
func newRollout(sim world.Simulator, registry *mapping.Registry, steps int) *rollout.OwningBuffer {
	dims := make(map[string][3]int)
	for _, name := range registry.Names() {
		mp := registry.Get(name)
		dims[name] = [3]int{mp.PosDim(), mp.VelDim(), mp.ForceDim()}
	}
	return rollout.NewOwningBuffer(steps, dims, sim.NumMassParams())
}
