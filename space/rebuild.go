package space

import (
	"math"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rebuild recomputes the top-level grid dimension from the current maximum
// smoothing length, wraps periodic coordinates, buckets every particle
// array into its top cell, and recursively subdivides each top cell until
// its leaf count is at or below the configured target. Tasks never survive
// a rebuild; the caller is responsible for discarding the old graph and
// building a fresh one against the returned tree.
func Rebuild(sp *Space) error {
	if sp.cfg.Periodic {
		wrapPositions(sp)
	}

	cellWidth := sp.cfg.CdimSafety * maxSmoothing(sp.Parts)
	minSide := math.Min(sp.BoxSize.X, math.Min(sp.BoxSize.Y, sp.BoxSize.Z))
	if cellWidth <= 0 || cellWidth > minSide {
		cellWidth = minSide / 8
	}
	cdim := computeCdim(sp.BoxSize, cellWidth)
	nTop := cdim[0] * cdim[1] * cdim[2]

	topKey := func(x r3.Vec) int { return topCellLinear(cdim, sp.BoxSize, x) }

	partDest, partOffsets := computeDestinations(len(sp.Parts), 0, len(sp.Parts), nTop, func(i int) int { return topKey(sp.Parts[i].X) })
	SortParts(sp, partDest)

	gpartDest, gpartOffsets := computeDestinations(len(sp.GParts), 0, len(sp.GParts), nTop, func(i int) int { return topKey(sp.GParts[i].X) })
	SortGParts(sp, gpartDest)

	spartDest, spartOffsets := computeDestinations(len(sp.SParts), 0, len(sp.SParts), nTop, func(i int) int { return topKey(sp.SParts[i].X) })
	SortSParts(sp, spartDest)

	sp.Tree.Reset()
	topCells := make([]cell.Idx, nTop)
	cellSize := r3.Vec{
		X: sp.BoxSize.X / float64(cdim[0]),
		Y: sp.BoxSize.Y / float64(cdim[1]),
		Z: sp.BoxSize.Z / float64(cdim[2]),
	}

	for lin := 0; lin < nTop; lin++ {
		idx := sp.Tree.Alloc()
		i, j, k := linearToIJK(cdim, lin)

		c := sp.Tree.At(idx)
		c.Loc = r3.Vec{X: float64(i) * cellSize.X, Y: float64(j) * cellSize.Y, Z: float64(k) * cellSize.Z}
		c.Width = cellSize
		c.PartStart, c.Count = partOffsets[lin], partOffsets[lin+1]-partOffsets[lin]
		c.GPartStart, c.GCount = gpartOffsets[lin], gpartOffsets[lin+1]-gpartOffsets[lin]
		c.SPartStart, c.SCount = spartOffsets[lin], spartOffsets[lin+1]-spartOffsets[lin]
		c.HMax = maxSmoothing(sp.Parts[c.PartStart : c.PartStart+c.Count])
		c.NodeID = sp.NodeID
		// Tag is the top cell's own geometric linear index rather than an
		// allocation-order counter, so two nodes independently rebuilding
		// agree on the same tag for the same (i,j,k) cell without having
		// to exchange a mapping first.
		c.Tag = int32(lin)
		c.Super = idx
		topCells[lin] = idx

		splitCell(sp, idx, idx, 0)
	}

	sp.TopCells = topCells
	sp.Cdim = cdim
	return nil
}

// splitCell recursively subdivides the cell at idx into up to 8 octants
// while its combined particle count exceeds the configured leaf target.
// Every descendant's Super is set to superIdx, the owning top cell, since
// hierarchical per-cell tasks are only ever emitted at the top level.
func splitCell(sp *Space, idx, superIdx cell.Idx, depth int) {
	snap := *sp.Tree.At(idx)
	total := snap.Count + snap.GCount + snap.SCount
	if total <= sp.cfg.TargetLeafPart || depth >= sp.cfg.MaxDepth {
		return
	}

	center := r3.Add(snap.Loc, r3.Scale(0.5, snap.Width))
	octant := func(x r3.Vec) int {
		o := 0
		if x.X >= center.X {
			o |= 1
		}
		if x.Y >= center.Y {
			o |= 2
		}
		if x.Z >= center.Z {
			o |= 4
		}
		return o
	}

	partDest, partOffsets := computeDestinations(len(sp.Parts), snap.PartStart, snap.Count, 8, func(i int) int { return octant(sp.Parts[i].X) })
	gpartDest, gpartOffsets := computeDestinations(len(sp.GParts), snap.GPartStart, snap.GCount, 8, func(i int) int { return octant(sp.GParts[i].X) })
	spartDest, spartOffsets := computeDestinations(len(sp.SParts), snap.SPartStart, snap.SCount, 8, func(i int) int { return octant(sp.SParts[i].X) })

	nonEmpty := 0
	for oct := 0; oct < 8; oct++ {
		if (partOffsets[oct+1] - partOffsets[oct]) + (gpartOffsets[oct+1] - gpartOffsets[oct]) + (spartOffsets[oct+1] - spartOffsets[oct]) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty <= 1 {
		// The split didn't separate anything: every particle landed in the
		// same octant. Recursing would just repeat this at half the box
		// width until MaxDepth, so stop now instead of wasting cells on a
		// split that changes nothing.
		return
	}

	SortParts(sp, partDest)
	SortGParts(sp, gpartDest)
	SortSParts(sp, spartDest)

	childWidth := r3.Scale(0.5, snap.Width)
	var progeny [8]cell.Idx
	for oct := 0; oct < 8; oct++ {
		pCount := partOffsets[oct+1] - partOffsets[oct]
		gCount := gpartOffsets[oct+1] - gpartOffsets[oct]
		sCount := spartOffsets[oct+1] - spartOffsets[oct]
		if pCount+gCount+sCount == 0 {
			progeny[oct] = cell.None
			continue
		}

		childIdx := sp.Tree.Alloc()
		child := sp.Tree.At(childIdx)
		child.Width = childWidth
		child.Loc = octantOrigin(snap.Loc, childWidth, oct)
		child.PartStart, child.Count = snap.PartStart+partOffsets[oct], pCount
		child.GPartStart, child.GCount = snap.GPartStart+gpartOffsets[oct], gCount
		child.SPartStart, child.SCount = snap.SPartStart+spartOffsets[oct], sCount
		child.HMax = maxSmoothing(sp.Parts[child.PartStart : child.PartStart+child.Count])
		child.NodeID = snap.NodeID
		child.Super = superIdx
		progeny[oct] = childIdx
	}

	parent := sp.Tree.At(idx)
	parent.Split = true
	parent.Progeny = progeny

	for _, child := range progeny {
		if child != cell.None {
			splitCell(sp, child, superIdx, depth+1)
		}
	}
}

func octantOrigin(parentLoc, childWidth r3.Vec, oct int) r3.Vec {
	o := parentLoc
	if oct&1 != 0 {
		o.X += childWidth.X
	}
	if oct&2 != 0 {
		o.Y += childWidth.Y
	}
	if oct&4 != 0 {
		o.Z += childWidth.Z
	}
	return o
}

func computeCdim(boxSize r3.Vec, cellWidth float64) [3]int {
	return [3]int{
		atLeastOne(int(boxSize.X / cellWidth)),
		atLeastOne(int(boxSize.Y / cellWidth)),
		atLeastOne(int(boxSize.Z / cellWidth)),
	}
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func topCellLinear(cdim [3]int, boxSize, x r3.Vec) int {
	i := clampIndex(int(x.X/boxSize.X*float64(cdim[0])), cdim[0])
	j := clampIndex(int(x.Y/boxSize.Y*float64(cdim[1])), cdim[1])
	k := clampIndex(int(x.Z/boxSize.Z*float64(cdim[2])), cdim[2])
	return CellIndex(cdim, i, j, k)
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func maxSmoothing(parts []particle.Part) float64 {
	var h float64
	for _, p := range parts {
		if p.H > h {
			h = p.H
		}
	}
	return h
}

func wrapPositions(sp *Space) {
	for i := range sp.Parts {
		sp.Parts[i].X = wrapVec(sp.Parts[i].X, sp.BoxSize)
	}
	for i := range sp.GParts {
		sp.GParts[i].X = wrapVec(sp.GParts[i].X, sp.BoxSize)
	}
	for i := range sp.SParts {
		sp.SParts[i].X = wrapVec(sp.SParts[i].X, sp.BoxSize)
	}
}

func wrapVec(x, box r3.Vec) r3.Vec {
	return r3.Vec{X: wrapCoord(x.X, box.X), Y: wrapCoord(x.Y, box.Y), Z: wrapCoord(x.Z, box.Z)}
}

func wrapCoord(v, box float64) float64 {
	v = math.Mod(v, box)
	if v < 0 {
		v += box
	}
	return v
}
