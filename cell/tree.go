package cell

import "github.com/pthm-cable/cosmos/taskref"

// Tree is the typed arena backing every Cell in a rebuild: cells are
// allocated densely, children referenced by Idx, and the whole arena is
// discarded and reallocated on the next rebuild rather than mutated
// in place.
type Tree struct {
	Cells []Cell
}

// NewTree returns an empty arena with capacity preallocated, the growth
// margin a rebuild normally wants to avoid reallocating mid-split.
func NewTree(capacity int) *Tree {
	return &Tree{Cells: make([]Cell, 0, capacity)}
}

// Alloc appends a zero-value cell (with no children and no super) and
// returns its index.
func (t *Tree) Alloc() Idx {
	t.Cells = append(t.Cells, Cell{
		Progeny: [8]Idx{None, None, None, None, None, None, None, None},
		Super:   None,
		Drift:   taskref.None, Init: taskref.None, Ghost: taskref.None,
		ExtraGhost: taskref.None, Kick1: taskref.None, Kick2: taskref.None,
		Timestep: taskref.None, Cooling: taskref.None, Sourceterms: taskref.None,
		GravDown: taskref.None,
	})
	return Idx(len(t.Cells) - 1)
}

// At returns a pointer to the cell at idx. Pointers are only valid until
// the next Alloc call reallocates the backing slice.
func (t *Tree) At(idx Idx) *Cell {
	return &t.Cells[idx]
}

// Reset discards every allocated cell, keeping the backing array's capacity
// so the next rebuild does not need to grow it from scratch.
func (t *Tree) Reset() {
	t.Cells = t.Cells[:0]
}

// Walk calls fn for idx and, if the cell is split, recursively for every
// present child, pre-order.
func (t *Tree) Walk(idx Idx, fn func(Idx, *Cell)) {
	c := t.At(idx)
	fn(idx, c)
	if !c.Split {
		return
	}
	for _, child := range c.Progeny {
		if child != None {
			t.Walk(child, fn)
		}
	}
}

// Leaves appends every leaf cell index reachable from idx, pre-order.
func (t *Tree) Leaves(idx Idx, dst []Idx) []Idx {
	c := t.At(idx)
	if !c.Split {
		return append(dst, idx)
	}
	for _, child := range c.Progeny {
		if child != None {
			dst = t.Leaves(child, dst)
		}
	}
	return dst
}
