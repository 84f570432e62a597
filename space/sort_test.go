package space

import (
	"testing"

	"github.com/pthm-cable/cosmos/particle"
)

func TestSortPartsPreservesGasPartnerLinkage(t *testing.T) {
	sp := &Space{
		Parts: []particle.Part{
			{ID: 1, GPart: 0},
			{ID: 2, GPart: 1},
			{ID: 3, GPart: 2},
		},
		GParts: []particle.GPart{
			{Partner: particle.Gas(0)},
			{Partner: particle.Gas(1)},
			{Partner: particle.Gas(2)},
		},
	}

	// Reverse the Parts array.
	dest := []int{2, 1, 0}
	SortParts(sp, dest)

	if sp.Parts[0].ID != 3 || sp.Parts[2].ID != 1 {
		t.Fatalf("Parts not reordered as expected: %+v", sp.Parts)
	}
	for gi, g := range sp.GParts {
		partIdx := g.Partner.Index()
		if sp.Parts[partIdx].GPart != int32(gi) {
			t.Fatalf("gpart %d partner index %d does not round-trip back to gpart %d (got %d)",
				gi, partIdx, gi, sp.Parts[partIdx].GPart)
		}
	}
}

func TestSortGPartsPreservesBackReferences(t *testing.T) {
	sp := &Space{
		Parts: []particle.Part{
			{ID: 1, GPart: 0},
			{ID: 2, GPart: 1},
		},
		SParts: []particle.SPart{
			{ID: 9, GPart: 1},
		},
		GParts: []particle.GPart{
			{Partner: particle.Gas(0)},
			{Partner: particle.Star(0)},
		},
	}

	dest := []int{1, 0} // swap the two gparts
	SortGParts(sp, dest)

	if sp.Parts[0].GPart != 1 || sp.Parts[1].GPart != 0 {
		t.Fatalf("Part.GPart back-references not updated: %+v", sp.Parts)
	}
	if sp.SParts[0].GPart != 0 {
		t.Fatalf("SPart.GPart back-reference not updated: %+v", sp.SParts)
	}
}

func TestSortSPartsPreservesStarPartnerLinkage(t *testing.T) {
	sp := &Space{
		SParts: []particle.SPart{
			{ID: 1}, {ID: 2}, {ID: 3},
		},
		GParts: []particle.GPart{
			{Partner: particle.Star(0)},
			{Partner: particle.Star(2)},
		},
	}

	dest := []int{2, 1, 0}
	SortSParts(sp, dest)

	// gpart 0 originally pointed at SParts[0] (ID 1); gpart 1 at SParts[2] (ID 3).
	if sp.SParts[sp.GParts[0].Partner.Index()].ID != 1 {
		t.Fatalf("expected gpart 0's star partner to still be ID 1, got ID %d", sp.SParts[sp.GParts[0].Partner.Index()].ID)
	}
	if sp.SParts[sp.GParts[1].Partner.Index()].ID != 3 {
		t.Fatalf("expected gpart 1's star partner to still be ID 3, got ID %d", sp.SParts[sp.GParts[1].Partner.Index()].ID)
	}
}
