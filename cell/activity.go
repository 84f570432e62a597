package cell

import "math"

// MaxRelDx bounds how far a particle may drift, relative to its own
// smoothing length, before a rebuild is forced independent of any pair
// comparison (space_maxreldx in the source).
const MaxRelDx = 0.25

// RebuildNeeded implements the rebuild trigger for a pair of cells: true
// when the combined smoothing length and displacement bounds of ci and cj
// have grown large enough to risk missed neighbours at their current
// separation, or when either cell's own displacement has outgrown its
// smoothing length by more than MaxRelDx.
func RebuildNeeded(ci, cj *Cell, dmin float64) bool {
	if math.Max(ci.HMax, cj.HMax)+ci.DxMaxPart+cj.DxMaxPart > dmin {
		return true
	}
	if ci.HMax > 0 && ci.DxMaxPart > MaxRelDx*ci.HMax {
		return true
	}
	if cj.HMax > 0 && cj.DxMaxPart > MaxRelDx*cj.HMax {
		return true
	}
	return false
}
