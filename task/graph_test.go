package task

import (
	"testing"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/ticks"
	"gonum.org/v1/gonum/spatial/r3"
)

// buildLine2 constructs a 2x1x1 top grid (two adjacent cells along X) with
// cdim = {2,1,1}, each a leaf with Count particles, for exercising Build
// without needing a full space package.
func buildLine2(count int) (*cell.Tree, []cell.Idx) {
	tree := cell.NewTree(4)
	a := tree.Alloc()
	b := tree.Alloc()
	ca, cb := tree.At(a), tree.At(b)
	ca.Width = r3.Vec{X: 1, Y: 1, Z: 1}
	cb.Loc = r3.Vec{X: 1, Y: 0, Z: 0}
	cb.Width = r3.Vec{X: 1, Y: 1, Z: 1}
	ca.Count, cb.Count = count, count
	ca.NodeID, cb.NodeID = 0, 0
	ca.Tag, cb.Tag = 0, 1
	return tree, []cell.Idx{a, b}
}

func linearNeighbour(linear, di, dj, dk int) (int, bool) {
	if dj != 0 || dk != 0 {
		return 0, false
	}
	n := linear + di
	if n < 0 || n > 1 {
		return 0, false
	}
	return n, true
}

func TestBuildGraphSoundness(t *testing.T) {
	tree, tops := buildLine2(10)
	g, err := Build(tree, tops, [3]int{2, 1, 1}, Params{}, linearNeighbour)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Tasks) == 0 {
		t.Fatal("Build produced no tasks")
	}

	if err := g.Rank(tree); err != nil {
		t.Fatalf("Rank: %v", err)
	}

	// property 6 (partial, structural check): every task with outgoing
	// unlock edges must have a strictly smaller rank than what it unlocks.
	for i := range g.Tasks {
		for _, nxt := range g.Tasks[i].Unlocks {
			if g.Tasks[i].Rank >= g.Tasks[nxt].Rank {
				t.Fatalf("task %d (rank %d) unlocks task %d (rank %d): not topologically ordered",
					i, g.Tasks[i].Rank, nxt, g.Tasks[nxt].Rank)
			}
		}
	}
}

func TestRankDetectsCycle(t *testing.T) {
	g := &Graph{Tasks: []Task{{}, {}}}
	g.unlock(0, 1)
	g.unlock(1, 0)

	tree, _ := buildLine2(1)
	err := g.Rank(tree)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
}

func TestUnskipIdempotent(t *testing.T) {
	tree, tops := buildLine2(10)
	tree.At(tops[0]).TiEndMin = 0
	tree.At(tops[1]).TiEndMin = 1000

	g, err := Build(tree, tops, [3]int{2, 1, 1}, Params{}, linearNeighbour)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dmin := func(ci, cj cell.Idx) float64 { return 10.0 }

	g.Unskip(tree, ticks.T(0), dmin)
	first := make([]bool, len(g.Tasks))
	for i := range g.Tasks {
		first[i] = g.Tasks[i].Skip
	}

	g.Unskip(tree, ticks.T(0), dmin)
	for i := range g.Tasks {
		if first[i] != g.Tasks[i].Skip {
			t.Fatalf("task %d skip state changed on second unskip pass: %v -> %v", i, first[i], g.Tasks[i].Skip)
		}
	}
}

func TestUnskipActivatesOnlyActiveCells(t *testing.T) {
	tree, tops := buildLine2(10)
	tree.At(tops[0]).TiEndMin = 0    // active at t=0
	tree.At(tops[1]).TiEndMin = 1000 // not active at t=0

	g, err := Build(tree, tops, [3]int{2, 1, 1}, Params{}, linearNeighbour)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dmin := func(ci, cj cell.Idx) float64 { return 10.0 }
	g.Unskip(tree, ticks.T(0), dmin)

	foundActiveSelf := false
	for _, tsk := range g.Tasks {
		if tsk.Type == TypeSelf && tsk.Subtype == SubDensity && tsk.CI == tops[0] && !tsk.Skip {
			foundActiveSelf = true
		}
		if tsk.Type == TypeSelf && tsk.Subtype == SubDensity && tsk.CI == tops[1] && !tsk.Skip {
			t.Fatal("self-density task on the inactive cell should be skipped")
		}
	}
	if !foundActiveSelf {
		t.Fatal("self-density task on the active cell should not be skipped")
	}
}
