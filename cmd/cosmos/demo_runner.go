package main

import "github.com/pthm-cable/cosmos/cell"

// demoRunner is a placeholder physics.Runner: every kernel but Timestep is
// a no-op. The SPH/gravity/cooling kernels named in the physics collaborator
// contract are out of this repository's scope; demoRunner exists only so
// the CLI can drive the task graph and scheduler through every task type
// without a real kernel plugged in. Timestep advances each cell's end-time
// bound by a fixed number of ticks so a run actually progresses instead of
// reactivating the same cells forever.
type demoRunner struct{}

const demoAdvanceTicks = 1 << 10

func (r *demoRunner) DoSelfDensity(tree *cell.Tree, ci cell.Idx)            {}
func (r *demoRunner) DoSelfForce(tree *cell.Tree, ci cell.Idx)              {}
func (r *demoRunner) DoSelfGrav(tree *cell.Tree, ci cell.Idx)               {}
func (r *demoRunner) DoPairDensity(tree *cell.Tree, ci, cj cell.Idx, flags uint32) {}
func (r *demoRunner) DoPairForce(tree *cell.Tree, ci, cj cell.Idx, flags uint32)   {}
func (r *demoRunner) DoPairGrav(tree *cell.Tree, ci, cj cell.Idx, flags uint32)    {}
func (r *demoRunner) Init(tree *cell.Tree, ci cell.Idx)                     {}
func (r *demoRunner) Ghost(tree *cell.Tree, ci cell.Idx)                    {}
func (r *demoRunner) ExtraGhost(tree *cell.Tree, ci cell.Idx)               {}
func (r *demoRunner) Kick1(tree *cell.Tree, ci cell.Idx, dt float64)        {}
func (r *demoRunner) Kick2(tree *cell.Tree, ci cell.Idx, dt float64)        {}

func (r *demoRunner) Timestep(tree *cell.Tree, ci cell.Idx) {
	c := tree.At(ci)
	c.TiEndMin += demoAdvanceTicks
	c.TiEndMax += demoAdvanceTicks
}

func (r *demoRunner) Cooling(tree *cell.Tree, ci cell.Idx)     {}
func (r *demoRunner) Sourceterms(tree *cell.Tree, ci cell.Idx) {}
func (r *demoRunner) GravMM(tree *cell.Tree, ci cell.Idx)      {}
func (r *demoRunner) GravGatherM(tree *cell.Tree)              {}
func (r *demoRunner) GravFFT(tree *cell.Tree)                  {}
