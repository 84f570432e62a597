// Package cell implements the octree node the rest of the engine schedules
// work against: a Cell owns a non-owning view (start+count) into the
// Space's contiguous particle arrays, a fixed 13-bit sort cache, and the
// hierarchical task references that live at its super cell.
//
// Cells are allocated in a typed arena (Tree) and referenced by Idx rather
// than by pointer, per the arena+index design the source's raw progeny/super
// pointers were reshaped into.
package cell

import (
	"github.com/pthm-cable/cosmos/taskref"
	"github.com/pthm-cable/cosmos/ticks"
	"gonum.org/v1/gonum/spatial/r3"
)

// Idx indexes a cell inside a Tree's arena. None is the sentinel for
// "no such cell" (an absent child, an absent super at the root before the
// first rebuild computes it).
type Idx int32

// None marks an absent cell reference.
const None Idx = -1

// NrAxes is the number of canonical sort axes: the 13 unique relative
// offsets between adjacent cells in a 3-D grid (the other 13 of 26
// neighbour directions are the negation of one of these and so share the
// same projection up to sign).
const NrAxes = 13

// Cell is one octree node.
type Cell struct {
	Loc   r3.Vec // geometric origin
	Width r3.Vec // geometric extent

	Count  int // particle count (Part)
	GCount int // gravity particle count (GPart)
	SCount int // star particle count (SPart)

	// Non-owning views into the Space's contiguous arrays.
	PartStart  int
	GPartStart int
	SPartStart int

	Progeny [8]Idx
	Split   bool

	// Super is the nearest ancestor that owns this cell's hierarchical
	// per-particle tasks (init/ghost/kick/timestep/...).
	Super Idx

	HMax       float64 // largest smoothing length among this cell's particles
	DxMaxPart  float64 // largest particle displacement since the last rebuild
	DxMaxSort  float64 // largest particle displacement since the last sort

	// Sorted has one bit per axis in [0, NrAxes); bit k is set when Sort[k]
	// holds a valid permutation for axis k.
	Sorted uint16
	Sort   [NrAxes][]SortEntry

	TiEndMin  ticks.T
	TiEndMax  ticks.T
	TiOldPart ticks.T
	TiSort    ticks.T

	// Hierarchical per-cell tasks, valid only when this cell is its own
	// Super.
	Drift       taskref.ID
	Init        taskref.ID
	Ghost       taskref.ID
	ExtraGhost  taskref.ID
	Kick1       taskref.ID
	Kick2       taskref.ID
	Timestep    taskref.ID
	Cooling     taskref.ID
	Sourceterms taskref.ID
	// GravDown is reserved but never populated: this build's gravity
	// recursion never emits a symmetric "down" pass, so the hook stays
	// empty until a scheme needs it (see task.TypeGravDown).
	GravDown taskref.ID

	// Link-lists of interaction tasks touching this cell, grown only at
	// graph-construction time and read-only during execution.
	Density     []taskref.ID
	Gradient    []taskref.ID
	Force       []taskref.ID
	Grav        []taskref.ID
	SendXV      []taskref.ID
	SendRho     []taskref.ID
	SendTi      []taskref.ID
	SendGrad    []taskref.ID
	RecvXV      []taskref.ID
	RecvRho     []taskref.ID
	RecvTi      []taskref.ID
	RecvGrad    []taskref.ID

	NodeID int
	Tag    int32
}

// SortEntry is one entry in a cell's per-axis sort cache: the particle's
// local index (relative to PartStart) and its scalar projection onto that
// axis.
type SortEntry struct {
	Index int32
	D     float64
}

// IsLeaf reports whether the cell has no children.
func (c *Cell) IsLeaf() bool { return !c.Split }

// Active reports whether the cell is active at integer time tNow: a cell is
// active iff its earliest end-time mark has already elapsed.
func (c *Cell) Active(tNow ticks.T) bool { return c.TiEndMin <= tNow }

// ClearSorted unmarks every axis, forcing the next Sort call to recompute
// every requested projection. Called after a drift invalidates positions.
func (c *Cell) ClearSorted() { c.Sorted = 0 }

// AxisSorted reports whether axis k's permutation is current.
func (c *Cell) AxisSorted(k int) bool { return c.Sorted&(1<<uint(k)) != 0 }
