package telemetry

import (
	"time"

	"github.com/pthm-cable/cosmos/ticks"
)

// Collector accumulates per-task counters across a window of steps and
// produces a TimestepStats row on Flush, sampled every windowTicks the
// same way the engine's configured statistics interval does.
type Collector struct {
	windowTicks ticks.T
	clock       ticks.Clock

	windowStartTick ticks.T
	tasksRun        int64
	tasksSkipped    int64
	rebuilds        int64
	repartitions    int64
}

// NewCollector creates a collector that flushes every windowSimTime of
// simulated time, measured against clock.
func NewCollector(clock ticks.Clock, windowSimTime float64) *Collector {
	windowTicks := clock.ToTick(windowSimTime)
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: windowTicks, clock: clock}
}

// RecordTaskRun counts one task dispatched to completion.
func (c *Collector) RecordTaskRun() { c.tasksRun++ }

// RecordTaskSkipped counts one task left skipped by an activation pass.
func (c *Collector) RecordTaskSkipped() { c.tasksSkipped++ }

// RecordRebuild counts one full tree rebuild.
func (c *Collector) RecordRebuild() { c.rebuilds++ }

// RecordRepartition counts one external-partitioner invocation.
func (c *Collector) RecordRepartition() { c.repartitions++ }

// ShouldFlush reports whether enough ticks have passed since the window
// opened to close it.
func (c *Collector) ShouldFlush(currentTick ticks.T) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a TimestepStats row for the window ending at currentTick
// and resets the event counters for the next window. activeCells,
// activeParts, minBin and maxBin describe the state at currentTick; stepDur
// is the wall-clock duration of the step that closed the window.
func (c *Collector) Flush(currentTick ticks.T, activeCells, activeParts int, minBin, maxBin uint8, stepDur time.Duration) TimestepStats {
	stats := TimestepStats{
		Tick:              int64(currentTick),
		SimTime:           c.clock.ToFloat(currentTick),
		ActiveCells:       activeCells,
		ActiveParts:       activeParts,
		MinTimeBin:        minBin,
		MaxTimeBin:        maxBin,
		TasksRun:          c.tasksRun,
		TasksSkipped:      c.tasksSkipped,
		RebuildsTotal:     c.rebuilds,
		RepartitionsTotal: c.repartitions,
		StepDurationUS:    stepDur.Microseconds(),
	}

	c.windowStartTick = currentTick
	c.tasksRun = 0
	c.tasksSkipped = 0
	// rebuilds and repartitions are cumulative totals, not per-window, and
	// are intentionally not reset.

	return stats
}

// WindowTicks returns the number of ticks per statistics window.
func (c *Collector) WindowTicks() ticks.T {
	return c.windowTicks
}
