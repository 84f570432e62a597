// Package particle defines the typed particle storage the rest of the
// engine operates on: gas particles and their extended records, gravity
// particles, and star particles, plus the linkage between a gas or star
// particle and its gravity partner.
package particle

import "gonum.org/v1/gonum/spatial/r3"

// ID is a particle's process-wide unique identifier, stable across
// relocation (sort, exchange, reallocation).
type ID uint64

// PartnerKind tags which particle array a gravity record's partner lives in.
type PartnerKind uint8

const (
	PartnerDM PartnerKind = iota
	PartnerGas
	PartnerStar
)

// PartnerRef is the tagged sum type replacing the source's negative-offset
// hack: a gravity particle either has no hydro/star partner (dark matter,
// carrying a stable ID) or owns exactly one gas or star partner identified
// by its current index in the local array. Linkage invariants (property 2)
// are total functions on this type instead of a sign-encoded integer.
type PartnerRef struct {
	kind  PartnerKind
	dmID  ID
	index uint32
}

// DM builds a partner reference for a dark-matter gravity particle.
func DM(id ID) PartnerRef { return PartnerRef{kind: PartnerDM, dmID: id} }

// Gas builds a partner reference pointing at a gas particle by local index.
func Gas(index uint32) PartnerRef { return PartnerRef{kind: PartnerGas, index: index} }

// Star builds a partner reference pointing at a star particle by local index.
func Star(index uint32) PartnerRef { return PartnerRef{kind: PartnerStar, index: index} }

// Kind reports which variant this reference holds.
func (p PartnerRef) Kind() PartnerKind { return p.kind }

// DMID returns the dark-matter ID. Only meaningful when Kind() == PartnerDM.
func (p PartnerRef) DMID() ID { return p.dmID }

// Index returns the local array index of the gas or star partner. Only
// meaningful when Kind() is PartnerGas or PartnerStar.
func (p PartnerRef) Index() uint32 { return p.index }

// WithIndex returns a copy of the reference with its index replaced,
// preserving Kind. Used after a sort/exchange relocates the partner.
func (p PartnerRef) WithIndex(i uint32) PartnerRef {
	p.index = i
	return p
}

// Part is a gas particle: hot-loop fields used by the SPH density and force
// kernels every step.
type Part struct {
	ID ID

	X r3.Vec
	V r3.Vec
	A r3.Vec

	H   float64 // smoothing length
	Rho float64 // density

	U        float64 // internal energy (or entropy, scheme-dependent)
	WCountDh float64 // density-loop accumulator: d(wcount)/dh
	WCount   float64 // density-loop accumulator: kernel weight sum
	RhoDh    float64 // density-loop accumulator: d(rho)/dh

	TimeBin uint8

	// GPart indexes into the owning Space's GParts array; -1 if absent.
	GPart int32
}

// XPart holds slowly-varying gas state kept out of the hot density/force
// loops so Part stays cache-tight.
type XPart struct {
	UFull     float64 // energy at the last full step, for half-kick reconstruction
	EntropyFR float64 // entropy at the start of the force-loop half-step
}

// GPart is a gravity particle shared by every kind of matter: position,
// velocity, acceleration, mass, and a tagged reference to its hydro/star
// partner (or its own DM identity).
type GPart struct {
	X    r3.Vec
	V    r3.Vec
	A    r3.Vec
	Mass float64

	TimeBin uint8

	Partner PartnerRef
}

// SPart is a star particle: analogous to Part but without hydro fields.
type SPart struct {
	ID ID

	X r3.Vec
	V r3.Vec
	A r3.Vec

	TimeBin uint8

	// GPart indexes into the owning Space's GParts array; -1 if absent.
	GPart int32
}
