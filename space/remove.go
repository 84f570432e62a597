package space

import "github.com/pthm-cable/cosmos/particle"

// RemoveParticles drops every array entry named in removeParts/removeGParts
// /removeSParts (by current index), compacting each array and rewriting
// every surviving cross-reference to match. Callers (the stray-redistribution
// path) are responsible for removing a particle together with its gravity
// partner in the same call; a kept particle referencing a removed partner
// is a caller error, not something this function can repair.
func RemoveParticles(sp *Space, removeParts, removeGParts, removeSParts map[int]bool) {
	partDest := compactionDest(len(sp.Parts), removeParts)
	gpartDest := compactionDest(len(sp.GParts), removeGParts)
	spartDest := compactionDest(len(sp.SParts), removeSParts)

	newParts := make([]particle.Part, 0, len(sp.Parts)-len(removeParts))
	for i, p := range sp.Parts {
		if partDest[i] < 0 {
			continue
		}
		if p.GPart >= 0 {
			p.GPart = int32(gpartDest[p.GPart])
		}
		newParts = append(newParts, p)
	}

	newGParts := make([]particle.GPart, 0, len(sp.GParts)-len(removeGParts))
	for i, g := range sp.GParts {
		if gpartDest[i] < 0 {
			continue
		}
		switch g.Partner.Kind() {
		case particle.PartnerGas:
			g.Partner = g.Partner.WithIndex(uint32(partDest[g.Partner.Index()]))
		case particle.PartnerStar:
			g.Partner = g.Partner.WithIndex(uint32(spartDest[g.Partner.Index()]))
		}
		newGParts = append(newGParts, g)
	}

	newSParts := make([]particle.SPart, 0, len(sp.SParts)-len(removeSParts))
	for i, sPart := range sp.SParts {
		if spartDest[i] < 0 {
			continue
		}
		if sPart.GPart >= 0 {
			sPart.GPart = int32(gpartDest[sPart.GPart])
		}
		newSParts = append(newSParts, sPart)
	}

	sp.Parts, sp.GParts, sp.SParts = newParts, newGParts, newSParts
}

// compactionDest maps index i to its new position once every index in
// removed has been dropped, or -1 if i itself is removed.
func compactionDest(n int, removed map[int]bool) []int {
	dest := make([]int, n)
	next := 0
	for i := 0; i < n; i++ {
		if removed[i] {
			dest[i] = -1
			continue
		}
		dest[i] = next
		next++
	}
	return dest
}
