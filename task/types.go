// Package task builds and ranks the per-step dependency graph: the
// enumeration of self/pair/sub interactions, the hierarchical per-cell
// tasks, the MPI-analogue communication tasks, and the unlock edges between
// them. Task records are data only — dispatch is a table lookup in the
// scheduler package, never a closure stored on the task itself.
package task

import (
	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/taskref"
)

// Type enumerates the kinds of work a task can represent.
type Type uint8

const (
	TypeSelf Type = iota
	TypePair
	TypeSubSelf
	TypeSubPair
	TypeSort
	TypeDrift
	TypeInit
	TypeGhost
	TypeExtraGhost
	TypeKick1
	TypeKick2
	TypeTimestep
	TypeCooling
	TypeSourceterms
	TypeSend
	TypeRecv
	TypeGravUp
	TypeGravMM
	TypeGravGatherM
	TypeGravFFT
	// TypeGravDown is declared but never emitted by Graph.Build: the
	// source's cell->grav_down is reserved but never allocated, and this
	// implementation leaves the same hook unused until a gravity scheme
	// that needs a symmetric "down" pass is implemented.
	TypeGravDown
)

// Subtype further qualifies interaction and communication tasks.
type Subtype uint8

const (
	SubNone Subtype = iota
	SubDensity
	SubGradient
	SubForce
	SubGrav
	SubExternalGrav
	SubXV
	SubRho
	SubGradientMsg
	SubTend
)

// Task is a single node of the dependency graph. Type, Subtype, CI, CJ and
// Flags are fixed at construction, and Weight and Rank are set once by
// Graph.Rank; Wait and Skip are the only two per-step mutable fields (Wait
// by the scheduler, Skip by the unskip pass).
type Task struct {
	Type    Type
	Subtype Subtype

	CI cell.Idx
	CJ cell.Idx // cell.None for self/single-cell tasks

	Flags uint32 // axis bits (sort/pair) or message tag bits (send/recv)

	Skip   bool
	Weight int64
	Rank   int32

	// Wait is the number of not-yet-satisfied predecessors. The scheduler
	// decrements it atomically as predecessors complete and enqueues the
	// task when it reaches zero.
	Wait int32

	Unlocks []taskref.ID
}

// NrUnsortedMessageKinds is the number of wire message kinds per proxy
// (xv, rho, tend, gradient), matching the wire format's per-cell tag space.
const NrUnsortedMessageKinds = 4

// MessageTag builds the wire tag for a cell/kind pair: 4*cell_tag + k.
func MessageTag(cellTag int32, kind int) int32 {
	return 4*cellTag + int32(kind)
}

const (
	MsgXV = iota
	MsgRho
	MsgTend
	MsgGradient
)
