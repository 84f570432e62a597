package cell

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sort fills the permutation cache for every axis set in axisMask that is
// not already marked Sorted on c. positions is the owning Space's full Part
// position array; c.PartStart/Count select this cell's slice. Children are
// sorted first and their entries merged, so a cell's cache always reflects
// its current particle membership regardless of how deep the rebuild split
// it.
//
// The underlying sort is stable: particles tied on projected distance keep
// their relative order, so two calls on an unchanged cell produce identical
// permutations (property 3).
func Sort(tree *Tree, idx Idx, axisMask uint16, positions []r3.Vec) {
	c := tree.At(idx)
	need := axisMask &^ c.Sorted
	if need == 0 {
		return
	}

	if c.Split {
		for _, child := range c.Progeny {
			if child != None {
				Sort(tree, child, need, positions)
			}
		}
		mergeChildren(tree, idx, need, positions)
		c.Sorted |= need
		return
	}

	for k := 0; k < NrAxes; k++ {
		if need&(1<<uint(k)) == 0 {
			continue
		}
		sortLeafAxis(c, k, positions)
	}
	c.Sorted |= need
}

func sortLeafAxis(c *Cell, k int, positions []r3.Vec) {
	entries := make([]SortEntry, c.Count)
	for i := 0; i < c.Count; i++ {
		gi := c.PartStart + i
		entries[i] = SortEntry{
			Index: int32(i),
			D:     Project(k, c.Loc, positions[gi]),
		}
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].D < entries[b].D })
	c.Sort[k] = entries
}

// mergeChildren performs the 2-way (generalized N-way, here simply
// re-deriving from the freshly sorted children) merge of child sort caches
// into the parent's cache for the given axis set. Because a parent's
// particle range is exactly the concatenation of its children's ranges in
// Progeny order, a stable merge by projected distance reproduces what a
// direct leaf-style sort over the whole range would have produced.
func mergeChildren(tree *Tree, idx Idx, axisMask uint16, positions []r3.Vec) {
	c := tree.At(idx)
	for k := 0; k < NrAxes; k++ {
		if axisMask&(1<<uint(k)) == 0 {
			continue
		}
		merged := make([]SortEntry, 0, c.Count)
		for _, child := range c.Progeny {
			if child == None {
				continue
			}
			cc := tree.At(child)
			// Child-local indices are relative to the child's own
			// PartStart; rebase them onto the parent's PartStart so a
			// single cache spans the parent's whole contiguous range.
			base := int32(cc.PartStart - c.PartStart)
			for _, e := range cc.Sort[k] {
				merged = append(merged, SortEntry{Index: e.Index + base, D: e.D})
			}
		}
		sort.SliceStable(merged, func(a, b int) bool { return merged[a].D < merged[b].D })
		c.Sort[k] = merged
	}
}
