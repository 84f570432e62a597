package proxy

import (
	"context"
	"encoding/json"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/coreerr"
)

// task.MessageTag reserves the small non-negative integer space
// 4*cellTag+kind for per-cell xv/rho/tend/gradient messages. Cell-metadata
// and stray exchanges are per-rebuild, one message per destination node
// rather than one per cell pair, so they live in the negative range,
// keyed by destination node id so one sender's concurrent messages to
// different peers never collide under Transport's (peer, tag) addressing
// (peer there is always the sender's own id, the same convention the
// scheduler's send/recv tasks follow).
func cellMetaTag(dest int) int32 { return -1000 - int32(dest) }
func strayTag(dest int) int32    { return -2000 - int32(dest) }

// cellMetaPayload bundles every subtree this node ships to one peer in a
// single exchange into one message.
type cellMetaPayload struct {
	Subtrees [][]PCell `json:"subtrees"`
}

// Proxy bundles everything this node exchanges with one peer node: the
// local top cells it ships a shadow copy of, and the foreign top cells
// pulled in return.
type Proxy struct {
	Peer int

	CellsOut []cell.Idx // local top cells sent to Peer
	CellsIn  []cell.Idx // Peer's top cells, as shadow subtrees in ForeignTree
}

// Manager coordinates cross-node cell-metadata exchange and stray-particle
// redistribution for one node. It holds one Proxy per peer the current
// rebuild's top-cell grid actually borders.
type Manager struct {
	NodeID  int
	NrNodes int

	Transport Transport

	// ForeignTree holds shadow copies of every peer's proxied top cell,
	// rebuilt fresh on every ExchangeCellMeta call. Foreign particle data
	// itself lives in the owning Space's Foreign* arrays, not here.
	ForeignTree *cell.Tree

	proxies map[int]*Proxy
}

// NewManager returns a Manager ready for its first ExchangeCellMeta call.
func NewManager(nodeID, nrNodes int, transport Transport) *Manager {
	return &Manager{
		NodeID:      nodeID,
		NrNodes:     nrNodes,
		Transport:   transport,
		ForeignTree: cell.NewTree(256),
		proxies:     make(map[int]*Proxy),
	}
}

// Proxies returns the current peer set, keyed by node id. Valid until the
// next ExchangeCellMeta call.
func (m *Manager) Proxies() map[int]*Proxy { return m.proxies }

// neighbourOffsets26 enumerates every relative offset to a top cell's 26
// geometric neighbours (every combination of {-1,0,1} but the origin).
func neighbourOffsets26() [][3]int {
	offsets := make([][3]int, 0, 26)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for dk := -1; dk <= 1; dk++ {
				if di == 0 && dj == 0 && dk == 0 {
					continue
				}
				offsets = append(offsets, [3]int{di, dj, dk})
			}
		}
	}
	return offsets
}

// ExchangeCellMeta ships, for every local top cell bordering a top cell
// owned by a different node, a packed subtree describing this node's side
// of the boundary, and pulls in the matching subtree from each such peer.
// Call after every rebuild, before the task graph is built against cells
// that may reference a foreign top cell.
//
// Like task.Build's wireProxyTasks, this treats both proxy endpoints as
// views onto one shared cell.Tree and topCells slice: a top cell's NodeID
// is read straight off that shared tree rather than negotiated separately,
// the same single-process simplification the graph builder already makes.
func (m *Manager) ExchangeCellMeta(ctx context.Context, tree *cell.Tree, topCells []cell.Idx, neighbour func(linear, di, dj, dk int) (int, bool)) error {
	m.ForeignTree.Reset()
	for k := range m.proxies {
		delete(m.proxies, k)
	}

	sentTo := make(map[[2]int]bool) // (linear, peer) pairs already packed
	pending := make(map[int]*cellMetaPayload)
	offsets := neighbourOffsets26()

	for linear, idx := range topCells {
		c := tree.At(idx)
		for _, off := range offsets {
			nLinear, ok := neighbour(linear, off[0], off[1], off[2])
			if !ok || nLinear == linear {
				continue
			}
			peer := tree.At(topCells[nLinear]).NodeID
			if peer == c.NodeID {
				continue
			}

			p := m.proxy(peer)
			if sentTo[[2]int{linear, peer}] {
				continue
			}
			sentTo[[2]int{linear, peer}] = true
			p.CellsOut = append(p.CellsOut, idx)

			cp, ok := pending[peer]
			if !ok {
				cp = &cellMetaPayload{}
				pending[peer] = cp
			}
			cp.Subtrees = append(cp.Subtrees, PackSubtree(tree, idx))
		}
	}

	for peer, cp := range pending {
		payload, err := json.Marshal(cp)
		if err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "marshal cell metadata", err)
		}
		if err := m.Transport.Send(ctx, m.NodeID, cellMetaTag(peer), payload); err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "send cell metadata", err)
		}
	}

	for peer, p := range m.proxies {
		payload, ok := m.Transport.Recv(peer, cellMetaTag(m.NodeID))
		if !ok {
			// Not arrived yet; the caller's next rebuild retries, matching
			// the non-blocking recv convention the scheduler's recv tasks
			// already follow.
			continue
		}
		var cp cellMetaPayload
		if err := json.Unmarshal(payload, &cp); err != nil {
			return coreerr.Wrap(coreerr.KindComm, m.NodeID, "proxy", "unmarshal cell metadata", err)
		}
		for _, pcells := range cp.Subtrees {
			root := UnpackSubtree(m.ForeignTree, pcells)
			p.CellsIn = append(p.CellsIn, root)
		}
	}
	return nil
}

func (m *Manager) proxy(peer int) *Proxy {
	p, ok := m.proxies[peer]
	if !ok {
		p = &Proxy{Peer: peer}
		m.proxies[peer] = p
	}
	return p
}
