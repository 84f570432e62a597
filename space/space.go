// Package space owns the simulation box: the contiguous particle arrays and
// the top-level grid plus per-top-cell octree that the task graph and
// scheduler are built against. A rebuild discards and reallocates the whole
// cell tree; particle storage itself only grows when its capacity runs out.
package space

import (
	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/config"
	"github.com/pthm-cable/cosmos/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Space holds one node's local particle storage plus the foreign shadow
// copies pulled in by the proxy layer for cells owned by other nodes.
type Space struct {
	Tree     *cell.Tree
	TopCells []cell.Idx
	Cdim     [3]int

	BoxSize r3.Vec
	cfg     config.SpaceConfig

	Parts  []particle.Part
	XParts []particle.XPart
	GParts []particle.GPart
	SParts []particle.SPart

	// Foreign* hold read-only shadow copies of particles belonging to
	// cells owned by other nodes, refreshed each step by the proxy
	// exchange. The task graph's recv tasks write into these, never into
	// Parts/GParts/SParts.
	ForeignParts  []particle.Part
	ForeignGParts []particle.GPart
	ForeignSParts []particle.SPart

	NodeID  int
	NrNodes int
}

// New returns an empty Space ready for its first Rebuild once particle
// arrays have been populated.
func New(cfg config.SpaceConfig, nodeID, nrNodes int) *Space {
	return &Space{
		Tree:    cell.NewTree(1024),
		BoxSize: r3.Vec{X: cfg.BoxSize[0], Y: cfg.BoxSize[1], Z: cfg.BoxSize[2]},
		cfg:     cfg,
		NodeID:  nodeID,
		NrNodes: nrNodes,
	}
}

// CellIndex computes the dense linear index of top-cell (i,j,k) in a cdim
// grid: i*cdim[1]*cdim[2] + j*cdim[2] + k.
func CellIndex(cdim [3]int, i, j, k int) int {
	return i*cdim[1]*cdim[2] + j*cdim[2] + k
}

// NeighbourFunc returns the neighbour-lookup closure task.Build needs:
// given a top cell's linear index and one of the 26 relative directions, it
// returns the neighbour's linear index and whether it exists (false at a
// non-periodic boundary).
func NeighbourFunc(cdim [3]int, periodic bool) func(linear, di, dj, dk int) (int, bool) {
	return func(linear, di, dj, dk int) (int, bool) {
		i, j, k := linearToIJK(cdim, linear)
		ni, nj, nk := i+di, j+dj, k+dk
		if periodic {
			ni, nj, nk = wrapIndex(ni, cdim[0]), wrapIndex(nj, cdim[1]), wrapIndex(nk, cdim[2])
		} else if ni < 0 || ni >= cdim[0] || nj < 0 || nj >= cdim[1] || nk < 0 || nk >= cdim[2] {
			return 0, false
		}
		return CellIndex(cdim, ni, nj, nk), true
	}
}

func wrapIndex(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func linearToIJK(cdim [3]int, lin int) (i, j, k int) {
	plane := cdim[1] * cdim[2]
	i = lin / plane
	rem := lin % plane
	j = rem / cdim[2]
	k = rem % cdim[2]
	return i, j, k
}
