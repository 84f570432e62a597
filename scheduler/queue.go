// Package scheduler dispatches a task.Graph across worker goroutines: a
// fixed number of priority queues, each a weight-ordered heap, populated as
// tasks' Wait counters reach zero and drained by workers that steal from
// sibling queues when their own is empty.
package scheduler

import (
	"container/heap"
	"sync"

	"github.com/pthm-cable/cosmos/taskref"
)

// entry is one heap element: a task ID ordered by its precomputed Weight
// (higher weight pops first, matching "queues consume in decreasing
// weight").
type entry struct {
	id     taskref.ID
	weight int64
}

// taskHeap is a max-heap on weight, modeled on the
// container/heap-based priority queue pattern used for scheduling
// work in this codebase's reference material.
type taskHeap []entry

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].weight > h[j].weight }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a single lock-protected priority queue. A scheduler owns
// nr_queues of these, one per worker by convention, though any worker may
// steal from any queue.
type Queue struct {
	mu   sync.Mutex
	heap taskHeap
}

// Push adds a task, now runnable, to the queue.
func (q *Queue) Push(id taskref.ID, weight int64) {
	q.mu.Lock()
	heap.Push(&q.heap, entry{id: id, weight: weight})
	q.mu.Unlock()
}

// Pop removes and returns the highest-weight task, or false if the queue is
// empty.
func (q *Queue) Pop() (taskref.ID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return 0, false
	}
	e := heap.Pop(&q.heap).(entry)
	return e.id, true
}

// Len reports the current queue depth, used for the scheduler's queue-depth
// metric and for the steal order's empty-queue skip.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
