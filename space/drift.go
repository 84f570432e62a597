package space

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cosmos/threadpool"
)

// driftChunk is the minimum number of particles handed to one goroutine;
// below this the fixed-add loop is cheaper than the fan-out itself.
const driftChunk = 2048

// DriftAll advances every particle in every array by x += v*dt, the
// uniform full-box drift the engine runs before a snapshot, a repartition,
// or a rebuild: unlike the per-cell TypeDrift task, which only ever
// touches Parts because it is dispatched against a cell's gas range, this
// walks Parts, GParts and SParts directly so dark-matter and star
// particles stay in sync with gas before the positions they all share a
// grid with are re-bucketed. The three arrays are independent, so
// nrWorkers goroutines fan out over each in turn via threadpool.Map.
func DriftAll(sp *Space, dt float64, nrWorkers int) {
	threadpool.Map(len(sp.Parts), driftChunk, nrWorkers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			sp.Parts[i].X = r3.Add(sp.Parts[i].X, r3.Scale(dt, sp.Parts[i].V))
		}
	})
	threadpool.Map(len(sp.GParts), driftChunk, nrWorkers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			sp.GParts[i].X = r3.Add(sp.GParts[i].X, r3.Scale(dt, sp.GParts[i].V))
		}
	})
	threadpool.Map(len(sp.SParts), driftChunk, nrWorkers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			sp.SParts[i].X = r3.Add(sp.SParts[i].X, r3.Scale(dt, sp.SParts[i].V))
		}
	})
}
