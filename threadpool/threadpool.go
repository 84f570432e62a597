// Package threadpool implements the engine's parallel-for primitive: a
// chunked map over an index range, distributed among goroutines via atomic
// fetch-add on a shared cursor, used for parallel sections outside the task
// graph (currently only space.DriftAll's drift_all pass).
package threadpool

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Map partitions [0, n) into chunks of chunkSize elements (the last chunk
// holds whatever remains and may be smaller) and runs
// fn(lo, hi) for each chunk across nrWorkers goroutines, returning only
// once every chunk has completed. Workers claim chunks via an atomic
// fetch-add on a shared cursor rather than a static split, so a slow chunk
// does not stall idle workers.
func Map(n, chunkSize, nrWorkers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	if nrWorkers < 1 {
		nrWorkers = 1
	}
	// A single chunk covering the whole range never benefits from more
	// than one worker.
	if chunkSize >= n {
		nrWorkers = 1
	}

	var cursor int64
	var g errgroup.Group

	for w := 0; w < nrWorkers; w++ {
		g.Go(func() error {
			for {
				lo := int(atomic.AddInt64(&cursor, int64(chunkSize))) - chunkSize
				if lo >= n {
					return nil
				}
				hi := lo + chunkSize
				if hi > n {
					hi = n
				}
				fn(lo, hi)
			}
		})
	}
	_ = g.Wait() // fn never returns an error
}
