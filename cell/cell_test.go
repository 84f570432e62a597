package cell

import (
	"testing"

	"github.com/pthm-cable/cosmos/ticks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func leafCell(tree *Tree, loc, width r3.Vec, start, count int) Idx {
	idx := tree.Alloc()
	c := tree.At(idx)
	c.Loc, c.Width = loc, width
	c.PartStart, c.Count = start, count
	return idx
}

func TestSortStability(t *testing.T) {
	positions := []r3.Vec{
		{X: 0.5}, {X: 0.1}, {X: 0.5}, {X: 0.3}, {X: 0.1},
	}
	tree := NewTree(4)
	idx := leafCell(tree, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 0, len(positions))

	Sort(tree, idx, 1, positions)
	first := append([]SortEntry(nil), tree.At(idx).Sort[0]...)

	tree.At(idx).ClearSorted()
	Sort(tree, idx, 1, positions)
	second := tree.At(idx).Sort[0]

	require.Len(t, second, len(first))
	assert.Equal(t, first, second)

	// ties (indices 0/2 and 1/4 share D) must keep original relative order
	if first[0].Index > first[1].Index && first[0].D == first[1].D {
		t.Fatalf("stable sort violated tie order: %+v", first)
	}
}

func TestSortIdempotentUnderWiderMask(t *testing.T) {
	positions := []r3.Vec{{X: 0.9, Y: 0.1}, {X: 0.2, Y: 0.8}, {X: 0.5, Y: 0.5}}
	tree := NewTree(4)
	idx := leafCell(tree, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 0, len(positions))

	Sort(tree, idx, 1, positions) // axis 0 only
	axis0 := append([]SortEntry(nil), tree.At(idx).Sort[0]...)

	Sort(tree, idx, 1|2, positions) // axis 0 (already sorted) + axis 1
	axis0Again := tree.At(idx).Sort[0]

	if len(axis0) != len(axis0Again) {
		t.Fatalf("axis 0 cache length changed after widening mask")
	}
	for i := range axis0 {
		if axis0[i] != axis0Again[i] {
			t.Fatalf("axis 0 cache mutated by request for axis 1: %+v vs %+v", axis0, axis0Again)
		}
	}
}

func TestActivePredicate(t *testing.T) {
	c := &Cell{TiEndMin: 100}
	if !c.Active(100) {
		t.Fatal("cell with TiEndMin == tNow should be active")
	}
	if !c.Active(150) {
		t.Fatal("cell with TiEndMin < tNow should be active")
	}
	if c.Active(99) {
		t.Fatal("cell with TiEndMin > tNow should not be active")
	}
	_ = ticks.T(0)
}

func TestRebuildNeeded(t *testing.T) {
	ci := &Cell{HMax: 0.1, DxMaxPart: 0.01}
	cj := &Cell{HMax: 0.1, DxMaxPart: 0.01}
	assert.False(t, RebuildNeeded(ci, cj, 1.0), "well-separated cells with small displacement should not need rebuild")
	assert.True(t, RebuildNeeded(ci, cj, 0.1), "close cells exceeding dmin should need rebuild")

	far := &Cell{HMax: 0.01, DxMaxPart: 1.0}
	assert.True(t, RebuildNeeded(far, cj, 100), "a single cell's own over-displacement should force rebuild regardless of separation")

	// HMax uses max, not sum: a lopsided pair must not double-count the
	// smoothing length term.
	lopsided := &Cell{HMax: 10, DxMaxPart: 0}
	tiny := &Cell{HMax: 0, DxMaxPart: 0}
	assert.True(t, RebuildNeeded(lopsided, tiny, 5), "max(HMax) alone should trigger rebuild once it exceeds dmin")
	assert.False(t, RebuildNeeded(lopsided, tiny, 20), "max(HMax), not the sum, must be compared against dmin")
}
