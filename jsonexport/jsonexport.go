// Package jsonexport emits a rollout as the Rollout JSON format
// described in spec.md §6: one key per skeleton body node, each value
// an object of six equal-length float arrays giving the world-frame
// translation and XYZ Euler rotation of that body node across the
// rollout's time window. This is the one file-format the core owns;
// everything else (visualization, general file I/O) stays out of
// scope per spec.md §1. Matches the teacher's own choice of stdlib
// encoding/json (inp/sim.go, inp/mat.go, fem/testing.go never reach
// for a third-party JSON library).
package jsonexport

import (
	"encoding/json"

	"github.com/kelvin34501/nimblephysics/mapping"
	"github.com/kelvin34501/nimblephysics/rollout"
	"github.com/kelvin34501/nimblephysics/world"
)

// bodyNodeSeries is one body node's six coordinate series, named
// exactly as spec.md §6 requires.
type bodyNodeSeries struct {
	PosX []float64 `json:"pos_x"`
	PosY []float64 `json:"pos_y"`
	PosZ []float64 `json:"pos_z"`
	RotX []float64 `json:"rot_x"`
	RotY []float64 `json:"rot_y"`
	RotZ []float64 `json:"rot_z"`
}

// Emit re-runs r's identity-mapping positions through sim's forward
// kinematics, column by column, and marshals one bodyNodeSeries per
// sim.BodyNodeNames() entry. The simulator's prior state is captured
// before the replay and restored on every exit path, including a
// marshal failure (spec.md §5's scoped-state-restoration rule, applied
// here to "JSON emission" explicitly).
func Emit(sim world.Simulator, identity mapping.Mapping, r rollout.Buffer) (out []byte, err error) {
	restore := sim.Snapshot()
	defer restore.Restore()

	names := sim.BodyNodeNames()
	series := make(map[string]*bodyNodeSeries, len(names))
	for _, name := range names {
		series[name] = &bodyNodeSeries{
			PosX: make([]float64, r.Len()), PosY: make([]float64, r.Len()), PosZ: make([]float64, r.Len()),
			RotX: make([]float64, r.Len()), RotY: make([]float64, r.Len()), RotZ: make([]float64, r.Len()),
		}
	}

	poses := r.Poses(identity.Name())
	for t := 0; t < r.Len(); t++ {
		col := make([]float64, poses.M)
		for i := 0; i < poses.M; i++ {
			col[i] = poses.Get(i, t)
		}
		identity.WritePositions(sim, col)
		for _, name := range names {
			trans, rot := sim.ForwardKinematics(name)
			s := series[name]
			s.PosX[t], s.PosY[t], s.PosZ[t] = trans[0], trans[1], trans[2]
			s.RotX[t], s.RotY[t], s.RotZ[t] = rot[0], rot[1], rot[2]
		}
	}

	return json.Marshal(series)
}
