package cell

import "gonum.org/v1/gonum/spatial/r3"

// Axes holds the 13 canonical relative offsets between adjacent cells in a
// 3-D grid. Of the 26 neighbour directions, each axis here and its negation
// project particles onto the same line, so only one representative per pair
// is kept; flags on a pair task record which of the two orientations
// applies.
var Axes = [NrAxes]r3.Vec{
	{X: 1, Y: 0, Z: 0},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: 1},
	{X: 1, Y: 1, Z: 0},
	{X: 1, Y: -1, Z: 0},
	{X: 1, Y: 0, Z: 1},
	{X: 1, Y: 0, Z: -1},
	{X: 0, Y: 1, Z: 1},
	{X: 0, Y: 1, Z: -1},
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
}

// axisUnit caches the unit-length form of each axis vector so Project does
// not normalize on every call.
var axisUnit [NrAxes]r3.Vec

func init() {
	for i, a := range Axes {
		axisUnit[i] = r3.Scale(1/r3.Norm(a), a)
	}
}

// AxisForOffset finds the canonical axis index matching the relative
// integer offset between two top-level grid cells, and whether the offset
// is the axis's forward or reversed orientation. ok is false if the offset
// is (0,0,0) or not one of the 26 face/edge/corner neighbours.
func AxisForOffset(di, dj, dk int) (axis int, forward bool, ok bool) {
	if di == 0 && dj == 0 && dk == 0 {
		return 0, false, false
	}
	v := r3.Vec{X: float64(di), Y: float64(dj), Z: float64(dk)}
	for i, a := range Axes {
		if v == a {
			return i, true, true
		}
		if v == (r3.Vec{X: -a.X, Y: -a.Y, Z: -a.Z}) {
			return i, false, true
		}
	}
	return 0, false, false
}

// Project returns the scalar projection of x - origin onto axis k's unit
// vector.
func Project(k int, origin, x r3.Vec) float64 {
	return r3.Dot(axisUnit[k], r3.Sub(x, origin))
}

// Dmin returns the minimum separation between two axis-aligned bounding
// boxes described by (loc, loc+width). Cells whose boxes overlap return 0.
func Dmin(aLoc, aWidth, bLoc, bWidth r3.Vec) float64 {
	d := r3.Vec{}
	d.X = axisGap(aLoc.X, aWidth.X, bLoc.X, bWidth.X)
	d.Y = axisGap(aLoc.Y, aWidth.Y, bLoc.Y, bWidth.Y)
	d.Z = axisGap(aLoc.Z, aWidth.Z, bLoc.Z, bWidth.Z)
	return r3.Norm(d)
}

func axisGap(aLo, aW, bLo, bW float64) float64 {
	aHi := aLo + aW
	bHi := bLo + bW
	switch {
	case aHi <= bLo:
		return bLo - aHi
	case bHi <= aLo:
		return aLo - bHi
	default:
		return 0
	}
}
