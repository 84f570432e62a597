package proxy

import (
	"context"
	"encoding/json"

	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/space"
	"github.com/pthm-cable/cosmos/telemetry"
)

// strayBatch is the wire payload for one destination node's share of a
// redistribution pass. It reuses telemetry's snapshot DTOs rather than
// defining parallel ones, since both are "particle plus explicit
// PartnerRef fields" serialized the same way.
type strayBatch struct {
	Parts  []telemetry.PartState  `json:"parts,omitempty"`
	GParts []telemetry.GPartState `json:"gparts,omitempty"`
	SParts []telemetry.SPartState `json:"sparts,omitempty"`
}

// RedistributeStrays ships every stray particle in strays to its
// destination node and removes it from sp's local arrays. A gas or star
// stray brings its gravity partner along in the same batch even though
// space.FindStrays only reports the hydro/star side; a dark-matter stray
// has no partner to carry.
func (m *Manager) RedistributeStrays(ctx context.Context, sp *space.Space, strays []space.Stray) error {
	if len(strays) == 0 {
		return nil
	}

	batches := make(map[int]*strayBatch)
	removeParts := make(map[int]bool)
	removeGParts := make(map[int]bool)
	removeSParts := make(map[int]bool)

	// gpartPos tracks, per destination peer, where an original gpart index
	// landed inside that peer's batch: a Part/SPart's GPart field is
	// rewritten to this batch-relative position before marshaling, since
	// the receiver has no use for (and no way to interpret) this node's
	// own absolute GParts index.
	gpartPos := make(map[int]map[int]int)

	batchFor := func(peer int) *strayBatch {
		b, ok := batches[peer]
		if !ok {
			b = &strayBatch{}
			batches[peer] = b
		}
		return b
	}

	addGPart := func(peer, gi int) int32 {
		posMap, ok := gpartPos[peer]
		if !ok {
			posMap = make(map[int]int)
			gpartPos[peer] = posMap
		}
		if pos, ok := posMap[gi]; ok {
			return int32(pos)
		}
		removeGParts[gi] = true
		b := batchFor(peer)
		pos := len(b.GParts)
		b.GParts = append(b.GParts, telemetry.GPartToState(sp.GParts[gi]))
		posMap[gi] = pos
		return int32(pos)
	}

	for _, s := range strays {
		switch s.Kind {
		case space.StrayPart:
			if removeParts[s.Index] {
				continue
			}
			removeParts[s.Index] = true
			ps := telemetry.PartToState(sp.Parts[s.Index])
			ps.GPart = -1
			if g := sp.Parts[s.Index].GPart; g >= 0 {
				ps.GPart = addGPart(s.DestNode, int(g))
			}
			b := batchFor(s.DestNode)
			b.Parts = append(b.Parts, ps)
		case space.StraySPart:
			if removeSParts[s.Index] {
				continue
			}
			removeSParts[s.Index] = true
			ss := telemetry.SPartToState(sp.SParts[s.Index])
			ss.GPart = -1
			if g := sp.SParts[s.Index].GPart; g >= 0 {
				ss.GPart = addGPart(s.DestNode, int(g))
			}
			b := batchFor(s.DestNode)
			b.SParts = append(b.SParts, ss)
		case space.StrayGPart:
			addGPart(s.DestNode, s.Index)
		}
	}

	for peer, b := range batches {
		payload, err := json.Marshal(b)
		if err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "marshal stray batch", err)
		}
		if err := m.Transport.Send(ctx, m.NodeID, strayTag(peer), payload); err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "send stray batch", err)
		}
	}

	space.RemoveParticles(sp, removeParts, removeGParts, removeSParts)
	return nil
}

// AcceptStrays drains any stray batches peers have sent this node and
// appends them to sp's local arrays, rewriting each arrival's
// GPart back-reference to its new, locally-appended index. A stray can
// arrive from any node, not just a current geometric proxy neighbour (a
// large drift can cross more than one cell), so this checks every peer
// rather than just m.proxies.
func (m *Manager) AcceptStrays(sp *space.Space) error {
	for peer := 0; peer < m.NrNodes; peer++ {
		if peer == m.NodeID {
			continue
		}
		payload, ok := m.Transport.Recv(peer, strayTag(m.NodeID))
		if !ok {
			continue
		}
		var b strayBatch
		if err := json.Unmarshal(payload, &b); err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "unmarshal stray batch", err)
		}

		gpartBase := len(sp.GParts)
		for _, gs := range b.GParts {
			sp.GParts = append(sp.GParts, gs.GPart())
		}
		for _, ps := range b.Parts {
			p := ps.Part()
			if p.GPart >= 0 {
				p.GPart = int32(gpartBase) + p.GPart
			}
			partIdx := len(sp.Parts)
			sp.Parts = append(sp.Parts, p)
			if p.GPart >= 0 {
				sp.GParts[p.GPart].Partner = sp.GParts[p.GPart].Partner.WithIndex(uint32(partIdx))
			}
		}
		for _, ss := range b.SParts {
			s := ss.SPart()
			if s.GPart >= 0 {
				s.GPart = int32(gpartBase) + s.GPart
			}
			spartIdx := len(sp.SParts)
			sp.SParts = append(sp.SParts, s)
			if s.GPart >= 0 {
				sp.GParts[s.GPart].Partner = sp.GParts[s.GPart].Partner.WithIndex(uint32(spartIdx))
			}
		}
	}
	return nil
}
