package space

import (
	"github.com/pthm-cable/cosmos/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// StrayKind names which array a stray particle belongs to.
type StrayKind int

const (
	StrayPart StrayKind = iota
	StrayGPart
	StraySPart
)

// Stray names one particle that, after a drift, now sits inside a top cell
// owned by a different node than the one it is currently stored under.
type Stray struct {
	Kind     StrayKind
	Index    int
	DestNode int
}

// FindStrays scans every particle array against the current top-level grid
// and reports any entry whose position now falls inside a top cell owned
// by a different node. Call after a drift and before the next rebuild; the
// caller hands each entry to the proxy layer for redistribution. Gas- and
// star-partnered gravity particles are not reported separately — they move
// with their hydro/star partner and are redistributed as part of the same
// transfer.
func FindStrays(sp *Space) []Stray {
	var strays []Stray
	for i := range sp.Parts {
		if node := ownerNode(sp, sp.Parts[i].X); node != sp.NodeID {
			strays = append(strays, Stray{Kind: StrayPart, Index: i, DestNode: node})
		}
	}
	for i := range sp.GParts {
		if sp.GParts[i].Partner.Kind() != particle.PartnerDM {
			continue
		}
		if node := ownerNode(sp, sp.GParts[i].X); node != sp.NodeID {
			strays = append(strays, Stray{Kind: StrayGPart, Index: i, DestNode: node})
		}
	}
	for i := range sp.SParts {
		if node := ownerNode(sp, sp.SParts[i].X); node != sp.NodeID {
			strays = append(strays, Stray{Kind: StraySPart, Index: i, DestNode: node})
		}
	}
	return strays
}

func ownerNode(sp *Space, x r3.Vec) int {
	if sp.cfg.Periodic {
		x = wrapVec(x, sp.BoxSize)
	}
	lin := topCellLinear(sp.Cdim, sp.BoxSize, x)
	return sp.Tree.At(sp.TopCells[lin]).NodeID
}
