// Package engine implements the step loop: it collects the minimum next
// end-time across cells and nodes, checks
// whether load imbalance calls for a repartition, drifts and rebuilds the
// cell tree and task graph whenever neighbour relations would otherwise go
// stale, and launches the worker pool to drain the resulting graph. Every
// other package is a collaborator the engine wires together; none of them
// reach back into the engine.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/config"
	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/metrics"
	"github.com/pthm-cable/cosmos/physics"
	"github.com/pthm-cable/cosmos/proxy"
	"github.com/pthm-cable/cosmos/repartition"
	"github.com/pthm-cable/cosmos/scheduler"
	"github.com/pthm-cable/cosmos/space"
	"github.com/pthm-cable/cosmos/task"
	"github.com/pthm-cable/cosmos/telemetry"
	"github.com/pthm-cable/cosmos/ticks"
	"github.com/pthm-cable/cosmos/worker"
)

// Params bundles every collaborator and tunable Run needs. It mirrors
// config.Config's sections rather than requiring one, so a test can build
// an Engine without a YAML file on disk.
type Params struct {
	Space   *space.Space
	Proxy   *proxy.Manager
	Pool    *worker.Pool
	Runner  physics.Runner
	Repart  *repartition.Driver
	Trigger repartition.Trigger

	Clock   ticks.Clock
	Cfg     *config.Config
	Metrics *metrics.Registry
	Log     *zap.Logger

	Collector *telemetry.Collector
	Perf      *telemetry.PerfCollector
	Output    *telemetry.OutputManager

	TaskParams task.Params
	Periodic   bool
}

// Engine owns one node's Space, proxy manager, worker pool and the task
// graph built against them.
type Engine struct {
	space   *space.Space
	proxy   *proxy.Manager
	pool    *worker.Pool
	runner  physics.Runner
	repart  *repartition.Driver
	trigger repartition.Trigger

	clock   ticks.Clock
	cfg     *config.Config
	metrics *metrics.Registry
	log     *zap.Logger

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager

	taskParams task.Params
	periodic   bool
	neighbour  func(linear, di, dj, dk int) (int, bool)

	positions  []r3.Vec
	velocities []r3.Vec

	graph *task.Graph

	TiCurrent         ticks.T
	nextSnapshotTick  ticks.T
	lastFullDriftTick ticks.T
	ticksSinceRepart  int64

	stepStart time.Time
}

// New builds an Engine over p.Space and performs the first rebuild and
// graph construction, so the returned Engine is ready for Run.
func New(ctx context.Context, p Params) (*Engine, error) {
	e := &Engine{
		space:      p.Space,
		proxy:      p.Proxy,
		pool:       p.Pool,
		runner:     p.Runner,
		repart:     p.Repart,
		trigger:    p.Trigger,
		clock:      p.Clock,
		cfg:        p.Cfg,
		metrics:    p.Metrics,
		log:        p.Log,
		collector:  p.Collector,
		perf:       p.Perf,
		output:     p.Output,
		taskParams: p.TaskParams,
		periodic:   p.Periodic,
	}
	if p.Cfg != nil {
		e.nextSnapshotTick = p.Clock.ToTick(p.Cfg.Snapshots.TimeFirst)
	}
	if err := e.rebuildAndGraph(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Run drives nrSteps iterations of the step loop.
func (e *Engine) Run(ctx context.Context, nrSteps int) error {
	for i := 0; i < nrSteps; i++ {
		e.stepStart = time.Now()
		if e.perf != nil {
			e.perf.StartStep()
		}
		if err := e.step(ctx); err != nil {
			return err
		}
		if e.perf != nil {
			e.perf.EndStep()
		}
		if e.metrics != nil {
			e.metrics.StepsTotal.Inc()
			e.metrics.TiCurrent.Set(float64(e.TiCurrent))
			e.metrics.StepDuration.Observe(time.Since(e.stepStart).Seconds())
		}
	}
	return nil
}

func (e *Engine) phase(name string) {
	if e.perf != nil {
		e.perf.StartPhase(name)
	}
}

// step runs one iteration of the engine's step loop: collect the global
// minimum next end-time, decide whether to repartition, drift and rebuild
// whenever a rebuild is due, then launch the task graph and record
// statistics.
func (e *Engine) step(ctx context.Context) error {
	e.phase(telemetry.PhaseCollectTimestep)
	globalMinTiEnd, err := e.collectTimestep(ctx)
	if err != nil {
		return err
	}

	e.phase(telemetry.PhaseRebalanceCheck)
	repart, err := e.checkRebalance(ctx)
	if err != nil {
		return err
	}

	driftedThisStep := false

	if e.cfg != nil && e.TiCurrent >= e.nextSnapshotTick {
		e.phase(telemetry.PhaseSnapshot)
		e.driftAll()
		driftedThisStep = true
		if err := e.dumpSnapshot(); err != nil {
			return err
		}
		e.scheduleNextSnapshot()
	}

	e.TiCurrent = globalMinTiEnd

	if repart && !driftedThisStep {
		e.phase(telemetry.PhaseDrift)
		e.driftAll()
		driftedThisStep = true
	}

	rebuildNeeded := false
	if repart {
		e.phase(telemetry.PhaseRedistribute)
		if err := e.repartitionNow(ctx); err != nil {
			return err
		}
		rebuildNeeded = true
	}

	e.phase(telemetry.PhaseUnskip)
	if e.unskip() {
		rebuildNeeded = true
	}

	if rebuildNeeded {
		if !driftedThisStep {
			e.phase(telemetry.PhaseDrift)
			e.driftAll()
		}
		e.phase(telemetry.PhaseRebuild)
		if err := e.rebuildAndGraph(ctx); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.RebuildsTotal.Inc()
		}
		e.phase(telemetry.PhaseUnskip)
		e.unskip()
	}

	e.phase(telemetry.PhaseLaunch)
	if err := e.launch(); err != nil {
		return err
	}

	e.phase(telemetry.PhaseStatistics)
	e.recordStatistics()
	return nil
}

// rebuildAndGraph discards the current cell tree and task graph and grows
// fresh ones against the current particle arrays: rebuild, exchange cell
// metadata with every bordering peer, then build and rank the per-step
// task graph. Tasks never survive a rebuild (task.Graph's own doc comment),
// so the old graph is simply replaced.
func (e *Engine) rebuildAndGraph(ctx context.Context) error {
	if err := space.Rebuild(e.space); err != nil {
		return coreerr.Wrap(coreerr.KindInvariant, e.space.NodeID, "engine", "rebuild", err)
	}
	e.syncContextFromSpace()

	e.neighbour = space.NeighbourFunc(e.space.Cdim, e.periodic)

	if err := e.proxy.ExchangeCellMeta(ctx, e.space.Tree, e.space.TopCells, e.neighbour); err != nil {
		return err
	}

	g, err := task.Build(e.space.Tree, e.space.TopCells, e.space.Cdim, e.taskParams, e.neighbour)
	if err != nil {
		return coreerr.Wrap(coreerr.KindGraphOverflow, e.space.NodeID, "engine", "task graph build", err)
	}
	if err := g.Rank(e.space.Tree); err != nil {
		return coreerr.Wrap(coreerr.KindInvariant, e.space.NodeID, "engine", "task graph rank", err)
	}
	e.graph = g
	return nil
}

// unskip runs the per-step activation pass and reports whether any pair's
// displacement bound crossed its rebuild trigger.
func (e *Engine) unskip() bool {
	dmin := func(ci, cj cell.Idx) float64 {
		a, b := e.space.Tree.At(ci), e.space.Tree.At(cj)
		return cell.Dmin(a.Loc, a.Width, b.Loc, b.Width)
	}
	return e.graph.Unskip(e.space.Tree, e.TiCurrent, dmin).RebuildNeeded
}

// driftAll runs the global full-box drift (space.DriftAll) from the last
// globally-synced tick to TiCurrent, then resets every top cell's
// TiOldPart so the per-cell TypeDrift task dispatched later this step
// computes a zero dt instead of double-drifting the gas it already moved.
func (e *Engine) driftAll() {
	dt := e.clock.Dt(e.lastFullDriftTick, e.TiCurrent)
	if dt != 0 {
		nrWorkers := 1
		if e.pool != nil {
			nrWorkers = e.pool.NrThreads
		}
		space.DriftAll(e.space, dt, nrWorkers)
	}
	for _, idx := range e.space.TopCells {
		e.space.Tree.At(idx).TiOldPart = e.TiCurrent
	}
	e.lastFullDriftTick = e.TiCurrent
	e.syncContextFromSpace()
}

// launch builds a fresh scheduler over the current graph and runs it to
// quiescence on the worker pool, then writes whatever positions/velocities
// the dispatched drift tasks changed back into the Space's particle
// arrays.
func (e *Engine) launch() error {
	sctx := &scheduler.Context{
		Tree:       e.space.Tree,
		Positions:  e.positions,
		Velocities: e.velocities,
		Clock:      e.clock,
		Runner:     e.runner,
		Transport:  e.proxy.Transport,
		NodeID:     e.space.NodeID,
		TiCurrent:  e.TiCurrent,
	}
	nrQueues := 1
	if e.cfg != nil && e.cfg.Derived.NrQueues > 0 {
		nrQueues = e.cfg.Derived.NrQueues
	}
	sched := scheduler.New(e.graph, sctx, nrQueues)
	if err := e.pool.Launch(sched); err != nil {
		return coreerr.Wrap(coreerr.KindInvariant, e.space.NodeID, "engine", "launch", err)
	}
	e.syncSpaceFromContext()

	if e.collector != nil {
		for i := range e.graph.Tasks {
			if e.graph.Tasks[i].Skip {
				e.collector.RecordTaskSkipped()
			} else {
				e.collector.RecordTaskRun()
			}
		}
	}
	if e.metrics != nil {
		for i, q := range sched.Queues {
			e.metrics.QueueDepth.WithLabelValues(fmt.Sprintf("q%d", i)).Set(float64(q.Len()))
		}
	}
	return nil
}
