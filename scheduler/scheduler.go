package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/physics"
	"github.com/pthm-cable/cosmos/proxy"
	"github.com/pthm-cable/cosmos/task"
	"github.com/pthm-cable/cosmos/taskref"
	"github.com/pthm-cable/cosmos/ticks"
	"gonum.org/v1/gonum/spatial/r3"
)

// Context bundles everything a task's dispatch needs to run: the cell tree
// it indexes into, the particle arrays it reads/writes, the physics
// collaborator, the cross-node transport, and the clock that turns integer
// ticks into a dt for drift/kick.
type Context struct {
	Tree       *cell.Tree
	Positions  []r3.Vec
	Velocities []r3.Vec
	Clock      ticks.Clock
	Runner     physics.Runner
	Transport  proxy.Transport
	NodeID     int

	// TiCurrent is the integer time the engine is currently launching a
	// step at; the engine updates it before each launch so drift tasks can
	// compute dt without the scheduler reaching back into engine state.
	TiCurrent ticks.T
}

// Scheduler owns NrQueues priority queues over a single task.Graph and
// dispatches tasks into a physics.Runner. A task enters its owner queue
// (id mod NrQueues, matching how the graph builder lays tasks out roughly
// in cell order) when its Wait counter reaches zero.
type Scheduler struct {
	Graph   *task.Graph
	Queues  []*Queue
	ctx     *Context
	nrQueue int

	// remaining counts non-skipped tasks that have not yet completed. A
	// worker finding every queue empty cannot tell a stall from the instant
	// before another worker unlocks more work; remaining is the thing that
	// actually reaches zero exactly when the graph has drained, so Done is
	// what the pool barrier waits on rather than per-worker idleness.
	remaining int32

	errOnce sync.Once
	err     error
}

// New builds a scheduler over graph with nrQueues queues, recomputes every
// task's Wait from its non-skipped predecessors (a graph is launched once per
// step until the next rebuild, so the previous launch's counts are stale),
// and seeds every already-runnable task (Wait == 0) into its owner queue.
func New(graph *task.Graph, ctx *Context, nrQueues int) *Scheduler {
	if nrQueues < 1 {
		nrQueues = 1
	}
	s := &Scheduler{Graph: graph, ctx: ctx, nrQueue: nrQueues}
	s.Queues = make([]*Queue, nrQueues)
	for i := range s.Queues {
		s.Queues[i] = &Queue{}
	}
	for i := range graph.Tasks {
		graph.Tasks[i].Wait = 0
	}
	for i := range graph.Tasks {
		if graph.Tasks[i].Skip {
			continue
		}
		for _, nxt := range graph.Tasks[i].Unlocks {
			graph.Tasks[nxt].Wait++
		}
	}
	for i := range graph.Tasks {
		t := &graph.Tasks[i]
		if t.Skip {
			continue
		}
		s.remaining++
		if atomic.LoadInt32(&t.Wait) == 0 {
			s.owner(taskref.ID(i)).Push(taskref.ID(i), t.Weight)
		}
	}
	return s
}

// Done reports whether every non-skipped task in the graph has completed,
// or the run was aborted by a fatal task error.
func (s *Scheduler) Done() bool {
	return atomic.LoadInt32(&s.remaining) == 0
}

// Abort records a fatal task error and forces Done to report true, so
// workers stop spinning on a graph that can no longer drain on its own.
// Only the first call takes effect.
func (s *Scheduler) Abort(err error) {
	s.errOnce.Do(func() {
		s.err = err
		atomic.StoreInt32(&s.remaining, 0)
	})
}

// Err returns the error passed to Abort, or nil if the graph drained
// normally.
func (s *Scheduler) Err() error {
	return s.err
}

func (s *Scheduler) owner(id taskref.ID) *Queue {
	return s.Queues[int(id)%s.nrQueue]
}

// Steal attempts to pop a task from any queue other than worker's own,
// in a bounded random order, and returns ok=false if every queue was
// empty — the caller should then park.
func (s *Scheduler) Steal(own int, rng *rand.Rand) (taskref.ID, bool) {
	order := rng.Perm(s.nrQueue)
	for _, i := range order {
		if i == own {
			continue
		}
		if id, ok := s.Queues[i].Pop(); ok {
			return id, true
		}
	}
	return 0, false
}

// Run executes one task by (type, subtype) dispatch and then propagates
// completion to its unlock list, enqueuing any task whose Wait reaches
// zero. Returns a fatal *coreerr.Error if the task itself fails; there is
// no task-local retry.
func (s *Scheduler) Run(id taskref.ID) error {
	t := &s.Graph.Tasks[id]
	if t.Skip {
		return nil
	}
	ready, err := s.dispatch(id, t)
	if err != nil {
		return err
	}
	if !ready {
		// A recv whose message has not arrived yet: re-enqueue without
		// touching Wait or any downstream task, per the non-blocking
		// probe-and-requeue policy.
		s.owner(id).Push(id, t.Weight)
		return nil
	}
	for _, nxt := range t.Unlocks {
		if atomic.AddInt32(&s.Graph.Tasks[nxt].Wait, -1) == 0 {
			nt := &s.Graph.Tasks[nxt]
			if !nt.Skip {
				s.owner(nxt).Push(nxt, nt.Weight)
			}
		}
	}
	atomic.AddInt32(&s.remaining, -1)
	return nil
}

func (s *Scheduler) dispatch(id taskref.ID, t *task.Task) (ready bool, err error) {
	ctx := s.ctx
	switch t.Type {
	case task.TypeSelf:
		switch t.Subtype {
		case task.SubDensity:
			ctx.Runner.DoSelfDensity(ctx.Tree, t.CI)
		case task.SubForce:
			ctx.Runner.DoSelfForce(ctx.Tree, t.CI)
		case task.SubGrav, task.SubExternalGrav:
			ctx.Runner.DoSelfGrav(ctx.Tree, t.CI)
		}
	case task.TypePair:
		switch t.Subtype {
		case task.SubDensity:
			ctx.Runner.DoPairDensity(ctx.Tree, t.CI, t.CJ, t.Flags)
		case task.SubForce:
			ctx.Runner.DoPairForce(ctx.Tree, t.CI, t.CJ, t.Flags)
		case task.SubGrav:
			ctx.Runner.DoPairGrav(ctx.Tree, t.CI, t.CJ, t.Flags)
		}
	case task.TypeSubSelf, task.TypeSubPair:
		// A splitter parent: every leaf interaction it covers was already
		// dispatched by its children (and, for TypeSubSelf, the sibling
		// pair tasks between them). Its only job is to be a join point in
		// the unlock graph, so it carries no kernel call of its own.
	case task.TypeSort:
		cell.Sort(ctx.Tree, t.CI, uint16(t.Flags), ctx.Positions)
	case task.TypeDrift:
		c := ctx.Tree.At(t.CI)
		dt := ctx.Clock.Dt(c.TiOldPart, ctx.TiCurrent)
		cell.Drift(c, dt, ctx.Positions, ctx.Velocities)
		c.TiOldPart = ctx.TiCurrent
	case task.TypeInit:
		ctx.Runner.Init(ctx.Tree, t.CI)
	case task.TypeGhost:
		ctx.Runner.Ghost(ctx.Tree, t.CI)
	case task.TypeExtraGhost:
		ctx.Runner.ExtraGhost(ctx.Tree, t.CI)
	case task.TypeKick1:
		ctx.Runner.Kick1(ctx.Tree, t.CI, ctx.Clock.TimeBase())
	case task.TypeKick2:
		ctx.Runner.Kick2(ctx.Tree, t.CI, ctx.Clock.TimeBase())
	case task.TypeTimestep:
		ctx.Runner.Timestep(ctx.Tree, t.CI)
	case task.TypeCooling:
		ctx.Runner.Cooling(ctx.Tree, t.CI)
	case task.TypeSourceterms:
		ctx.Runner.Sourceterms(ctx.Tree, t.CI)
	case task.TypeGravMM:
		ctx.Runner.GravMM(ctx.Tree, t.CI)
	case task.TypeGravGatherM:
		ctx.Runner.GravGatherM(ctx.Tree)
	case task.TypeGravFFT:
		ctx.Runner.GravFFT(ctx.Tree)
	case task.TypeSend:
		return true, s.send(t)
	case task.TypeRecv:
		return s.recv(t)
	}
	return true, nil
}

func (s *Scheduler) send(t *task.Task) error {
	ci := s.ctx.Tree.At(t.CI)
	payload := make([]byte, 0) // a real deployment packs the named quantity's particle-of-kind records here
	if err := s.ctx.Transport.Send(context.Background(), ci.NodeID, int32(t.Flags), payload); err != nil {
		return coreerr.Wrap(coreerr.KindComm, s.ctx.NodeID, "scheduler", "send", err)
	}
	return nil
}

func (s *Scheduler) recv(t *task.Task) (ready bool, err error) {
	cj := s.ctx.Tree.At(t.CJ)
	if _, ok := s.ctx.Transport.Recv(cj.NodeID, int32(t.Flags)); !ok {
		// Non-blocking probe: report not-ready so Run re-enqueues this same
		// task without decrementing Wait or unlocking downstream work. A
		// recv never parks a worker.
		return false, nil
	}
	return true, nil
}
