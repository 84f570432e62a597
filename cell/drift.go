package cell

import "gonum.org/v1/gonum/spatial/r3"

// Drift advances every particle in c's slice by x += v*dt, tracks the
// largest displacement since the last sort/rebuild on DxMaxSort/DxMaxPart,
// and clears the sort cache (a drifted cell's projections are stale).
// positions and velocities are the owning Space's full Part arrays.
func Drift(c *Cell, dt float64, positions, velocities []r3.Vec) {
	var maxDisp float64
	for i := 0; i < c.Count; i++ {
		gi := c.PartStart + i
		disp := r3.Scale(dt, velocities[gi])
		positions[gi] = r3.Add(positions[gi], disp)
		d := r3.Norm(disp)
		if d > maxDisp {
			maxDisp = d
		}
	}
	c.DxMaxPart += maxDisp
	c.DxMaxSort += maxDisp
	c.ClearSorted()
}

// PropagateDrift folds a child's accumulated displacement bound into its
// parent after a drift of the child alone (used when only part of the tree
// is drifted, e.g. active-only drift policies). The parent's bound must
// always be at least the max over its children's bounds.
func PropagateDrift(parent, child *Cell) {
	if child.DxMaxPart > parent.DxMaxPart {
		parent.DxMaxPart = child.DxMaxPart
	}
	if child.HMax > parent.HMax {
		parent.HMax = child.HMax
	}
}
