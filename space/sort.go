package space

import "github.com/pthm-cable/cosmos/particle"

// SortParts reorders sp.Parts so item i lands at dest[i], then rewrites
// every gas-partner gravity reference so it still points at the same
// physical particle under its new index (property 2: partner linkage
// survives any permutation of the arrays it references).
func SortParts(sp *Space, dest []int) {
	sp.Parts = applyPermutation(sp.Parts, dest)
	for i := range sp.GParts {
		if sp.GParts[i].Partner.Kind() == particle.PartnerGas {
			sp.GParts[i].Partner = sp.GParts[i].Partner.WithIndex(uint32(dest[sp.GParts[i].Partner.Index()]))
		}
	}
}

// SortSParts reorders sp.SParts so item i lands at dest[i], fixing up every
// star-partner gravity reference to match.
func SortSParts(sp *Space, dest []int) {
	sp.SParts = applyPermutation(sp.SParts, dest)
	for i := range sp.GParts {
		if sp.GParts[i].Partner.Kind() == particle.PartnerStar {
			sp.GParts[i].Partner = sp.GParts[i].Partner.WithIndex(uint32(dest[sp.GParts[i].Partner.Index()]))
		}
	}
}

// SortGParts reorders sp.GParts so item i lands at dest[i], fixing up every
// Part.GPart and SPart.GPart back-reference to match.
func SortGParts(sp *Space, dest []int) {
	sp.GParts = applyPermutation(sp.GParts, dest)
	for i := range sp.Parts {
		if sp.Parts[i].GPart >= 0 {
			sp.Parts[i].GPart = int32(dest[sp.Parts[i].GPart])
		}
	}
	for i := range sp.SParts {
		if sp.SParts[i].GPart >= 0 {
			sp.SParts[i].GPart = int32(dest[sp.SParts[i].GPart])
		}
	}
}
