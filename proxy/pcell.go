package proxy

import (
	"github.com/pthm-cable/cosmos/cell"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecFromArr(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// PCell is the wire-serializable skeleton of one cell.Tree subtree: enough
// geometry and bookkeeping for the receiving node to grow a shadow copy of
// a neighbour's top cell without pulling in its particle arrays (those
// travel separately, as the exchanged PartState/GPartState/SPartState
// batches particle-level code already knows how to produce).
//
// A packed subtree is a flat, pre-order slice. Children[i] holds the slice
// index of the i'th octant's root, or -1 if that octant is empty; index 0
// of the slice is always the subtree's own root.
type PCell struct {
	Loc, Width [3]float64

	Count  int
	GCount int
	SCount int

	NodeID int
	Tag    int32

	Children [8]int32
}

// PackSubtree flattens the subtree rooted at root into pre-order PCells.
func PackSubtree(tree *cell.Tree, root cell.Idx) []PCell {
	var out []PCell
	var walk func(idx cell.Idx) int32
	walk = func(idx cell.Idx) int32 {
		c := tree.At(idx)
		pos := int32(len(out))
		out = append(out, PCell{
			Loc:      [3]float64{c.Loc.X, c.Loc.Y, c.Loc.Z},
			Width:    [3]float64{c.Width.X, c.Width.Y, c.Width.Z},
			Count:    c.Count,
			GCount:   c.GCount,
			SCount:   c.SCount,
			NodeID:   c.NodeID,
			Tag:      c.Tag,
			Children: [8]int32{-1, -1, -1, -1, -1, -1, -1, -1},
		})
		if c.Split {
			for i, child := range c.Progeny {
				if child == cell.None {
					continue
				}
				// walk grows out by appending; re-index through the slice
				// each time rather than holding a *PCell across the
				// recursive call, the same arena-pointer discipline the
				// local rebuild follows against cell.Tree.Alloc.
				childPos := walk(child)
				out[pos].Children[i] = childPos
			}
		}
		return pos
	}
	walk(root)
	return out
}

// UnpackSubtree grows a fresh subtree inside tree from a packed slice and
// returns the root's index. Every descendant's Super is set to the
// subtree's own root: the sender only ever packs from a top cell, so on
// the receiving side the same top-cell-only hierarchical-task convention
// holds for the shadow copy.
func UnpackSubtree(tree *cell.Tree, pcells []PCell) cell.Idx {
	if len(pcells) == 0 {
		return cell.None
	}

	idxs := make([]cell.Idx, len(pcells))
	for i := range pcells {
		idxs[i] = tree.Alloc()
	}

	root := idxs[0]
	for i, pc := range pcells {
		c := tree.At(idxs[i])
		c.Loc = vecFromArr(pc.Loc)
		c.Width = vecFromArr(pc.Width)
		c.Count, c.GCount, c.SCount = pc.Count, pc.GCount, pc.SCount
		c.NodeID = pc.NodeID
		c.Tag = pc.Tag
		c.Super = root

		split := false
		for k, child := range pc.Children {
			if child < 0 {
				continue
			}
			c.Progeny[k] = idxs[child]
			split = true
		}
		c.Split = split
	}
	return root
}
