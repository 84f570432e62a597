package task

import (
	"fmt"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/taskref"
)

// baseCost estimates a task's own execution cost before downstream weight
// is folded in: n^2 for self/pair-style density work, n for per-particle
// passes, and for communication tasks a byte-footprint estimate of 24 bytes
// per particle in the cell plus a fixed 64.
func baseCost(t *Task, tree *cell.Tree) int64 {
	switch t.Type {
	case TypeSelf, TypeSubSelf:
		n := int64(tree.At(t.CI).Count)
		return n * n
	case TypePair, TypeSubPair:
		n := int64(tree.At(t.CI).Count)
		m := int64(tree.At(t.CJ).Count)
		return n * m
	case TypeGhost, TypeExtraGhost, TypeKick1, TypeKick2, TypeDrift, TypeInit, TypeTimestep, TypeCooling, TypeSourceterms:
		return int64(tree.At(t.CI).Count)
	case TypeSend, TypeRecv:
		return int64(tree.At(t.CI).Count)*24 + 64
	default:
		return 1
	}
}

// CycleError is returned by Rank when the unlock graph is not acyclic: a
// debug-build-only check in the source this implementation runs
// unconditionally, since it is O(V+E) and cheap enough.
type CycleError struct {
	Remaining int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("task: unlock graph has a cycle (%d tasks unreachable by topological order)", e.Remaining)
}

// Rank performs a topological sort over the unlock graph, assigning each
// task a Rank (its position in a valid topological order, ties broken by
// insertion order) and a Weight equal to its own base cost plus the maximum
// weight among the tasks it unlocks. Queues then dispatch in
// weight-descending order so the longest remaining critical path is always
// preferred.
func (g *Graph) Rank(tree *cell.Tree) error {
	n := len(g.Tasks)
	indegree := make([]int32, n)
	for i := range g.Tasks {
		indegree[i] = g.Tasks[i].Wait
	}

	queue := make([]taskref.ID, 0, n)
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, taskref.ID(i))
		}
	}

	order := make([]taskref.ID, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, nxt := range g.Tasks[id].Unlocks {
			indegree[nxt]--
			if indegree[nxt] == 0 {
				queue = append(queue, nxt)
			}
		}
	}

	if len(order) != n {
		return &CycleError{Remaining: n - len(order)}
	}

	for rank, id := range order {
		g.Tasks[id].Rank = int32(rank)
	}

	// Weight is computed over the reverse topological order so every
	// downstream task's weight is already final.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		t := &g.Tasks[id]
		var maxDownstream int64
		for _, nxt := range t.Unlocks {
			if g.Tasks[nxt].Weight > maxDownstream {
				maxDownstream = g.Tasks[nxt].Weight
			}
		}
		t.Weight = baseCost(t, tree) + maxDownstream
	}

	return nil
}
