// Package proxy implements cross-node cell exchange: the proxy bundles
// all communication with one peer node, the pcell tree-skeleton wire
// format, and stray-particle redistribution after a drift.
package proxy

import (
	"context"
	"sync"
)

// Transport abstracts point-to-point message delivery behind a trait so the
// scheduler and graph builder stay testable single-node with an in-memory
// implementation, per the MPI-abstraction design note.
type Transport interface {
	// Send deposits payload under the (peer, tag) address that a matching
	// Recv(peer, tag) reads back, returning once the local send buffer has
	// accepted it (asynchronous — completion is observed via a later Recv,
	// not by this call blocking). Every caller in this module passes its own
	// node id as peer and identifies the message by tag.
	Send(ctx context.Context, peer int, tag int32, payload []byte) error
	// Recv returns the payload for tag from peer if it has arrived, or
	// ok=false if not yet available. A recv task polls this without
	// blocking the calling worker, per the concurrency model's non-blocking
	// recv.
	Recv(peer int, tag int32) (payload []byte, ok bool)
}

// LoopbackTransport is an in-memory Transport for single-node tests: Send
// deposits directly into a map Recv reads back, modeling a peer that is
// actually this same process. Workers across the pool call Send/Recv
// concurrently (one per send/recv task), so the inbox is mutex-guarded.
type LoopbackTransport struct {
	mu    sync.Mutex
	inbox map[loopbackKey][]byte
}

type loopbackKey struct {
	peer int
	tag  int32
}

// NewLoopbackTransport returns a ready-to-use LoopbackTransport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{inbox: make(map[loopbackKey][]byte)}
}

func (t *LoopbackTransport) Send(_ context.Context, peer int, tag int32, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.mu.Lock()
	t.inbox[loopbackKey{peer, tag}] = cp
	t.mu.Unlock()
	return nil
}

func (t *LoopbackTransport) Recv(peer int, tag int32) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	payload, ok := t.inbox[loopbackKey{peer, tag}]
	if ok {
		delete(t.inbox, loopbackKey{peer, tag})
	}
	return payload, ok
}
