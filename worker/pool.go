// Package worker implements the fixed-size worker pool and its launch
// barrier: nr_threads goroutines parked on a condition variable, woken
// together at the start of a step, and rendezvoused again once the
// scheduler's queues have drained.
package worker

import (
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/cosmos/scheduler"
)

// Pool owns NrThreads long-lived goroutines that sit parked between steps
// and are released together by Launch.
type Pool struct {
	NrThreads int
	log       *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	launch  int // barrier_launch: workers still to wake this step
	running int // barrier_running: workers still active this step
	sched   *scheduler.Scheduler
	closed  bool

	shutdown errgroup.Group // fans in every worker goroutine's exit for Close
}

// New starts nrThreads parked worker goroutines. Call Launch to run a step
// and Close to shut the pool down between engine runs.
func New(nrThreads int, log *zap.Logger) *Pool {
	if nrThreads < 1 {
		nrThreads = 1
	}
	p := &Pool{NrThreads: nrThreads, log: log}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < nrThreads; i++ {
		self := i
		p.shutdown.Go(func() error {
			p.loop(self)
			return nil
		})
	}
	return p
}

// Launch runs sched to quiescence: it wakes every parked worker, waits for
// the barrier to close (every worker has observed an empty scheduler), and
// returns once the whole graph has drained. A fatal error from any task
// aborts the whole launch and is returned here.
func (p *Pool) Launch(sched *scheduler.Scheduler) error {
	p.mu.Lock()
	p.sched = sched
	p.launch = p.NrThreads
	p.running = p.NrThreads
	p.cond.Broadcast()
	for p.running != 0 || p.launch != 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
	return sched.Err()
}

// Close signals every worker goroutine to exit and waits for all of them to
// return before giving back control. Safe to call once after the engine
// finishes running.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	_ = p.shutdown.Wait() // loop never returns an error
}

func (p *Pool) loop(self int) {
	// Affinity is set per-OS-thread, so the goroutine must be nailed to one
	// before pinning means anything.
	runtime.LockOSThread()
	pinSelf(self, p.NrThreads, p.log)

	rng := rand.New(rand.NewSource(int64(self) + time.Now().UnixNano()))
	pollBackoff := backoff.NewExponentialBackOff()
	pollBackoff.InitialInterval = 50 * time.Microsecond
	pollBackoff.MaxInterval = 2 * time.Millisecond

	for {
		p.mu.Lock()
		for p.launch == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.launch--
		sched := p.sched
		p.cond.Broadcast()
		p.mu.Unlock()

		pollBackoff.Reset()
		for !sched.Done() {
			id, ok := sched.Queues[self%len(sched.Queues)].Pop()
			if !ok {
				id, ok = sched.Steal(self%len(sched.Queues), rng)
			}
			if !ok {
				// Every queue was empty a moment ago, but the graph has not
				// fully drained: some other worker is mid-Run and about to
				// unlock more work. Back off briefly rather than spin the
				// CPU, then look again.
				time.Sleep(pollBackoff.NextBackOff())
				continue
			}
			if err := sched.Run(id); err != nil {
				if p.log != nil {
					p.log.Error("task failed", zap.Int("worker", self), zap.Error(err))
				}
				sched.Abort(err)
				break
			}
			pollBackoff.Reset()
		}

		p.mu.Lock()
		p.running--
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}
