// Package physics names the external collaborator contract the core calls
// into. Every operation here is pure with respect to the cells passed: the
// physics kernel reads and mutates particles within those cells only, and
// never touches the task graph, the scheduler, or any other cell.
package physics

import "github.com/pthm-cable/cosmos/cell"

// Runner executes the per-task kernels the scheduler dispatches into. A
// concrete hydro/gravity scheme implements Runner; the core ships no
// implementation of its own (SPH density/force, gravity, cooling, star
// formation and black-hole kernels are explicitly out of scope).
type Runner interface {
	// Self-interaction kernels, parameterised by (ci) and the
	// task subtype the scheduler is dispatching.
	DoSelfDensity(tree *cell.Tree, ci cell.Idx)
	DoSelfForce(tree *cell.Tree, ci cell.Idx)
	DoSelfGrav(tree *cell.Tree, ci cell.Idx)

	// Pair-interaction kernels, parameterised by (ci, cj) and the axis
	// flag recorded on the task.
	DoPairDensity(tree *cell.Tree, ci, cj cell.Idx, flags uint32)
	DoPairForce(tree *cell.Tree, ci, cj cell.Idx, flags uint32)
	DoPairGrav(tree *cell.Tree, ci, cj cell.Idx, flags uint32)

	// Per-particle hierarchical passes.
	Init(tree *cell.Tree, ci cell.Idx)
	Ghost(tree *cell.Tree, ci cell.Idx)
	ExtraGhost(tree *cell.Tree, ci cell.Idx)
	Kick1(tree *cell.Tree, ci cell.Idx, dt float64)
	Kick2(tree *cell.Tree, ci cell.Idx, dt float64)
	Timestep(tree *cell.Tree, ci cell.Idx) // recomputes each particle's time bin in place; returns nothing
	Cooling(tree *cell.Tree, ci cell.Idx)
	Sourceterms(tree *cell.Tree, ci cell.Idx)

	// GravMM, GravGatherM and GravFFT implement the long-range mesh path.
	GravMM(tree *cell.Tree, ci cell.Idx)
	GravGatherM(tree *cell.Tree)
	GravFFT(tree *cell.Tree)
}

// Observer exposes read-only accessors used by dumps and tests, kept
// separate from Runner so a test harness can stub density readback without
// implementing the full kernel set.
type Observer interface {
	Density(tree *cell.Tree, ci cell.Idx, localIndex int) float64
}

// Repartitioner is the external graph-partitioner contract: given the
// current task-weight matrix it returns a new cell-to-node mapping. The
// core is agnostic to the algorithm it wraps.
type Repartitioner interface {
	Repartition(myNode, nrNodes int, cellWeights []int64) (cellToNode []int, err error)
}
