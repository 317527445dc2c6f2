package trajopt

import (
	"sync"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/gosl/utl"

	"github.com/kelvin34501/nimblephysics/loss"
	"github.com/kelvin34501/nimblephysics/mapping"
	"github.com/kelvin34501/nimblephysics/rollout"
	"github.com/kelvin34501/nimblephysics/world"
)

// ParallelOptions selects how a MultiShot unrolls its shots. Workers<=1
// runs serially; Workers>1 starts Workers goroutines that take shots in
// turn, each shot unrolled on its own Sim.Clone(). Both paths must produce bit-identical results (spec §5).
type ParallelOptions struct {
	Workers int
}

// MultiShot splits a trajectory of totalSteps into ceil(totalSteps/
// shotLength) independent SingleShots, tying them together with knot
// defect constraints: shot i's final state must match shot i+1's start
// state (spec §3, §4.5). Every shot but the first tunes its own start
// state; the first shot's start state is tunable only if the caller
// asked for it.
type MultiShot struct {
	Sim      world.Simulator
	Mappings *mapping.Registry
	Loss     *loss.Function

	Shots   []*SingleShot
	Parent  *loss.Function // optional additional constraint shared across the whole trajectory

	Parallel ParallelOptions

	shotOffsets []int // flat-variable offset of each shot's segment
	sparseRows  []int
	sparseCols  []int
}

// NewMultiShot splits totalSteps into shots of shotLength (the last
// shot absorbs the remainder), sharing one simulator and mapping
// registry. tuneFirstStartingState controls whether shot 0's start
// state is a free variable; every subsequent shot's start state is
// always tunable, since it is fixed only by the knot defect
// constraint, not by construction.
func NewMultiShot(sim world.Simulator, mappings *mapping.Registry, lossFn *loss.Function, totalSteps, shotLength int, tuneFirstStartingState bool) *MultiShot {
	if shotLength <= 0 || totalSteps <= 0 {
		chk.Panic("multi shot: totalSteps and shotLength must be positive, got %d, %d", totalSteps, shotLength)
	}
	numShots := (totalSteps + shotLength - 1) / shotLength
	m := &MultiShot{
		Sim:      sim,
		Mappings: mappings,
		Loss:     lossFn,
		Shots:    make([]*SingleShot, numShots),
	}
	remaining := totalSteps
	for i := 0; i < numShots; i++ {
		steps := shotLength
		if remaining < shotLength {
			steps = remaining
		}
		remaining -= steps
		tune := i > 0 || tuneFirstStartingState
		m.Shots[i] = NewSingleShot(sim, mappings, lossFn, steps, tune)
	}
	m.computeOffsets()
	return m
}

func (m *MultiShot) computeOffsets() {
	m.shotOffsets = make([]int, len(m.Shots))
	off := 0
	for i, shot := range m.Shots {
		m.shotOffsets[i] = off
		off += shot.FlatDim()
	}
}

// FlatDim is the sum of every shot's own flat dimension.
func (m *MultiShot) FlatDim() int {
	n := 0
	for _, shot := range m.Shots {
		n += shot.FlatDim()
	}
	return n
}

// Flatten concatenates every shot's flat segment into out.
func (m *MultiShot) Flatten(out la.Vector) {
	for i, shot := range m.Shots {
		off := m.shotOffsets[i]
		shot.Flatten(out[off : off+shot.FlatDim()])
	}
}

// Unflatten distributes x's segments back into each shot.
func (m *MultiShot) Unflatten(x la.Vector) {
	for i, shot := range m.Shots {
		off := m.shotOffsets[i]
		shot.Unflatten(x[off : off+shot.FlatDim()])
	}
}

// Bounds concatenates every shot's own bounds.
func (m *MultiShot) Bounds() (lower, upper la.Vector) {
	lower = la.NewVector(m.FlatDim())
	upper = la.NewVector(m.FlatDim())
	for i, shot := range m.Shots {
		off := m.shotOffsets[i]
		lo, hi := shot.Bounds()
		copy(lower[off:off+shot.FlatDim()], lo)
		copy(upper[off:off+shot.FlatDim()], hi)
	}
	return
}

// knotConstraintDim is the dimension of the knot-defect block alone:
// one (2*representationDim)-vector per knot between consecutive shots.
func (m *MultiShot) knotConstraintDim() int {
	return (len(m.Shots) - 1) * 2 * m.Mappings.Representation().PosDim()
}

// UnrollAll drives every shot forward into its own window of out,
// honoring m.Parallel. Serial and parallel execution must agree
// bit-for-bit, since each shot only ever reads/writes its own
// simulator state (the shared Sim when serial, a Sim.Clone() per
// goroutine when parallel) and its own window of out.
func (m *MultiShot) UnrollAll(out rollout.Buffer) []error {
	errs := make([]error, len(m.Shots))
	workers := m.Parallel.Workers
	if workers <= 1 {
		step := 0
		for i, shot := range m.Shots {
			window := out.Slice(step, shot.Steps)
			errs[i] = shot.Unroll(window)
			step += shot.Steps
		}
		return errs
	}

	type job struct {
		index  int
		shot   *SingleShot
		window rollout.Buffer
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				clone := j.shot.Sim.Clone()
				cloned := *j.shot
				cloned.Sim = clone
				errs[j.index] = cloned.Unroll(j.window)
				j.shot.snapshots = cloned.snapshots
				j.shot.repJacobians = cloned.repJacobians
			}
		}()
	}
	step := 0
	for i, shot := range m.Shots {
		jobs <- job{index: i, shot: shot, window: out.Slice(step, shot.Steps)}
		step += shot.Steps
	}
	close(jobs)
	wg.Wait()
	return errs
}

// KnotDefects returns, for each knot i (0-indexed, between shot i and
// shot i+1), shot i's final representation-space state minus shot i+1's
// representation-space start state (spec §4.5). Requires UnrollAll to
// have run first.
func (m *MultiShot) KnotDefects(out rollout.Buffer) []la.Vector {
	repName := m.Mappings.RepresentationName()
	defects := make([]la.Vector, len(m.Shots)-1)
	step := 0
	for i := 0; i < len(m.Shots)-1; i++ {
		step += m.Shots[i].Steps
		finalPos := col(out.Poses(repName), step-1)
		finalVel := col(out.Vels(repName), step-1)
		d := la.NewVector(2 * len(finalPos))
		copy(d[:len(finalPos)], finalPos)
		copy(d[len(finalPos):], finalVel)
		for k := range m.Shots[i+1].StartPos {
			d[k] -= m.Shots[i+1].StartPos[k]
		}
		for k := range m.Shots[i+1].StartVel {
			d[len(finalPos)+k] -= m.Shots[i+1].StartVel[k]
		}
		defects[i] = d
	}
	return defects
}

// GetStates reconstructs the trajectory's recorded history into out
// (spec §4.5's getStates). withKnots=true concatenates each shot's own
// recorded trajectory, exactly what UnrollAll already writes into out's
// per-shot windows. withKnots=false restores only the first shot's
// start state and replays every stored force, in order, through one
// continuous simulation — the trajectory the solver would see once
// every knot defect has closed.
func (m *MultiShot) GetStates(withKnots bool, out rollout.Buffer) []error {
	if withKnots {
		return m.UnrollAll(out)
	}
	mono := NewSingleShot(m.Sim, m.Mappings, m.Loss, m.totalSteps(), true)
	mono.StartPos = append(la.Vector{}, m.Shots[0].StartPos...)
	mono.StartVel = append(la.Vector{}, m.Shots[0].StartVel...)
	step := 0
	for _, shot := range m.Shots {
		for t := 0; t < shot.Steps; t++ {
			for f := 0; f < shot.Forces.M; f++ {
				mono.Forces.Set(f, step, shot.Forces.Get(f, t))
			}
			step++
		}
	}
	if err := mono.Unroll(out); err != nil {
		return []error{err}
	}
	return nil
}

// JacobianSparsityStructure emits the sparsity pattern of the
// constraint Jacobian once: each knot contributes a dense
// (2*representationDim) x FlatDim(shot_i) block at shot i's columns,
// plus a -I block at shot (i+1)'s start-state columns, mirroring the
// element-stiffness triplet assembly pattern where the structure is
// computed once and the triplet values are refreshed every call. When
// Parent is set, a final dense row spanning every column is appended
// for the whole-trajectory constraint (spec §4.5).
func (m *MultiShot) JacobianSparsityStructure() (rows, cols []int) {
	if m.sparseRows != nil {
		return m.sparseRows, m.sparseCols
	}
	repDim := m.Mappings.Representation().PosDim()
	rowBase := 0
	for i := 0; i < len(m.Shots)-1; i++ {
		shotOff := m.shotOffsets[i]
		shotDim := m.Shots[i].FlatDim()
		for r := 0; r < 2*repDim; r++ {
			for c := 0; c < shotDim; c++ {
				m.sparseRows = append(m.sparseRows, rowBase+r)
				m.sparseCols = append(m.sparseCols, shotOff+c)
			}
		}
		nextOff := m.shotOffsets[i+1]
		negIRows := utl.IntRange(2 * repDim)
		negICols := utl.IntRange(2 * repDim)
		for k := range negIRows {
			negIRows[k] += rowBase
			negICols[k] += nextOff
		}
		m.sparseRows = append(m.sparseRows, negIRows...)
		m.sparseCols = append(m.sparseCols, negICols...)
		rowBase += 2 * repDim
	}
	if m.Parent != nil {
		m.sparseRows = append(m.sparseRows, utl.IntVals(m.FlatDim(), rowBase)...)
		m.sparseCols = append(m.sparseCols, utl.IntRange(m.FlatDim())...)
	}
	return m.sparseRows, m.sparseCols
}

// NumberNonZeroJacobian is the length of the sparsity structure.
func (m *MultiShot) NumberNonZeroJacobian() int {
	rows, _ := m.JacobianSparsityStructure()
	return len(rows)
}

// GetSparseJacobian satisfies Problem: it unflattens x, re-unrolls
// every shot, and returns the defect Jacobian's values in the order
// JacobianSparsityStructure declared.
func (m *MultiShot) GetSparseJacobian(x la.Vector) []float64 {
	m.Unflatten(x)
	r := newRollout(m.Sim, m.Mappings, m.totalSteps())
	_ = m.UnrollAll(r)
	return m.sparseJacobianValues(x)
}

// sparseJacobianValues assembles the constraint Jacobian's values from
// the shots' currently-cached per-step snapshots (the most recent
// UnrollAll), using a Triplet the way the teacher assembles its global
// stiffness matrix: structure fixed, values refreshed per call. When
// Parent is set, its finite-differenced row is appended last, matching
// the extra row JacobianSparsityStructure declares.
func (m *MultiShot) sparseJacobianValues(x la.Vector) []float64 {
	repDim := m.Mappings.Representation().PosDim()
	nnz := m.NumberNonZeroJacobian()
	trip := new(la.Triplet)
	trip.Init(m.ConstraintDim(), m.FlatDim(), nnz)
	vals := make([]float64, 0, nnz)

	rowBase := 0
	for i := 0; i < len(m.Shots)-1; i++ {
		shotOff := m.shotOffsets[i]
		block := m.Shots[i].FinalStateJacobian()
		for r := 0; r < block.M; r++ {
			for c := 0; c < block.N; c++ {
				v := block.Get(r, c)
				trip.Put(rowBase+r, shotOff+c, v)
				vals = append(vals, v)
			}
		}
		nextOff := m.shotOffsets[i+1]
		for r := 0; r < 2*repDim; r++ {
			trip.Put(rowBase+r, nextOff+r, -1)
			vals = append(vals, -1)
		}
		rowBase += 2 * repDim
	}
	if m.Parent != nil {
		for j, v := range m.parentRowFiniteDiff(x) {
			trip.Put(rowBase, j, v)
			vals = append(vals, v)
		}
	}
	return vals
}
