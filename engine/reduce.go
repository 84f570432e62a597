package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/space"
	"github.com/pthm-cable/cosmos/ticks"
)

// Engine-local tags live in their own negative range, disjoint from
// proxy's cellMetaTag (-1000-*) and strayTag (-2000-*) ranges, so a
// collective and a cell-metadata exchange in flight at the same time never
// collide under Transport's (peer, tag) addressing.
func gatherTag(dest int) int32    { return -5000 - int32(dest) }
func broadcastTag(dest int) int32 { return -6000 - int32(dest) }

// pollRecv retries Recv until a payload arrives, backing off exponentially
// between attempts from the same 50µs start the worker pool uses between
// empty queue polls, but capped at 10ms rather than the pool's 2ms.
// ctx cancellation or deadline is the only timeout a collective has (per
// the concurrency model's MPI-collective timeout rule) and is always
// fatal.
func pollRecv(ctx context.Context, recv func() ([]byte, bool)) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	for {
		if payload, ok := recv(); ok {
			return payload, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

// allreduceMin gathers every node's local value to node 0, takes the
// minimum, and broadcasts it back out. NrNodes==1 short-circuits to local.
func (e *Engine) allreduceMin(ctx context.Context, local ticks.T) (ticks.T, error) {
	nrNodes := e.proxy.NrNodes
	nodeID := e.proxy.NodeID
	if nrNodes <= 1 {
		return local, nil
	}

	if nodeID == 0 {
		global := local
		for peer := 1; peer < nrNodes; peer++ {
			payload, err := pollRecv(ctx, func() ([]byte, bool) { return e.proxy.Transport.Recv(peer, gatherTag(0)) })
			if err != nil {
				return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep gather", err)
			}
			var v int64
			if err := json.Unmarshal(payload, &v); err != nil {
				return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep unmarshal", err)
			}
			if ticks.T(v) < global {
				global = ticks.T(v)
			}
		}
		payload, err := json.Marshal(int64(global))
		if err != nil {
			return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep marshal", err)
		}
		for peer := 1; peer < nrNodes; peer++ {
			if err := e.proxy.Transport.Send(ctx, nodeID, broadcastTag(peer), payload); err != nil {
				return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep broadcast", err)
			}
		}
		return global, nil
	}

	payload, err := json.Marshal(int64(local))
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep marshal", err)
	}
	if err := e.proxy.Transport.Send(ctx, nodeID, gatherTag(0), payload); err != nil {
		return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep send", err)
	}
	resp, err := pollRecv(ctx, func() ([]byte, bool) { return e.proxy.Transport.Recv(0, broadcastTag(nodeID)) })
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep recv", err)
	}
	var v int64
	if err := json.Unmarshal(resp, &v); err != nil {
		return 0, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "collect_timestep unmarshal", err)
	}
	return ticks.T(v), nil
}

// allgatherSum gathers every node's local []int64 (same length on every
// node, nonzero only at the indices that node owns) to node 0, sums them
// element-wise, and broadcasts the combined array back to every node.
func (e *Engine) allgatherSum(ctx context.Context, local []int64) ([]int64, error) {
	nrNodes := e.proxy.NrNodes
	nodeID := e.proxy.NodeID
	if nrNodes <= 1 {
		return local, nil
	}

	if nodeID == 0 {
		total := make([]int64, len(local))
		copy(total, local)
		for peer := 1; peer < nrNodes; peer++ {
			payload, err := pollRecv(ctx, func() ([]byte, bool) { return e.proxy.Transport.Recv(peer, gatherTag(0)) })
			if err != nil {
				return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather gather", err)
			}
			var v []int64
			if err := json.Unmarshal(payload, &v); err != nil {
				return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather unmarshal", err)
			}
			for i := range total {
				if i < len(v) {
					total[i] += v[i]
				}
			}
		}
		payload, err := json.Marshal(total)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather marshal", err)
		}
		for peer := 1; peer < nrNodes; peer++ {
			if err := e.proxy.Transport.Send(ctx, nodeID, broadcastTag(peer), payload); err != nil {
				return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather broadcast", err)
			}
		}
		return total, nil
	}

	payload, err := json.Marshal(local)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather marshal", err)
	}
	if err := e.proxy.Transport.Send(ctx, nodeID, gatherTag(0), payload); err != nil {
		return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather send", err)
	}
	resp, err := pollRecv(ctx, func() ([]byte, bool) { return e.proxy.Transport.Recv(0, broadcastTag(nodeID)) })
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather recv", err)
	}
	var total []int64
	if err := json.Unmarshal(resp, &total); err != nil {
		return nil, coreerr.Wrap(coreerr.KindComm, nodeID, "engine", "allgather unmarshal", err)
	}
	return total, nil
}

// collectTimestep finds the smallest end-time among this node's top cells
// and all-reduces it to a single value every node agrees is the next
// global tick.
func (e *Engine) collectTimestep(ctx context.Context) (ticks.T, error) {
	local := ticks.T(1<<62 - 1)
	for _, idx := range e.space.TopCells {
		c := e.space.Tree.At(idx)
		if c.NodeID != e.space.NodeID {
			continue
		}
		if c.TiEndMin < local {
			local = c.TiEndMin
		}
	}
	return e.allreduceMin(ctx, local)
}

// checkRebalance sums each node's particle-count load from the top cells
// this node already sees and reports whether the dispersion trigger says a
// repartition is due.
func (e *Engine) checkRebalance(ctx context.Context) (bool, error) {
	if e.repart == nil {
		return false, nil
	}
	weightByNode := make([]int64, e.proxy.NrNodes)
	for _, idx := range e.space.TopCells {
		c := e.space.Tree.At(idx)
		if c.NodeID >= 0 && c.NodeID < len(weightByNode) {
			weightByNode[c.NodeID] += int64(c.Count)
		}
	}
	// Every node already sees every top cell's NodeID and Count from the
	// last rebuild (the graph builder's single-shared-tree simplification
	// also used by proxy.ExchangeCellMeta), so weightByNode is already
	// global: no exchange is needed to evaluate the trigger.
	repart := e.trigger.ShouldRepartition(weightByNode, e.ticksSinceRepart)
	e.ticksSinceRepart++
	return repart, nil
}

// repartitionNow all-gathers a fresh global cell-weight array, asks the
// repartition driver for a new owner assignment, applies it to every top
// cell, and redrives the proxy and stray-exchange machinery against the
// new ownership.
func (e *Engine) repartitionNow(ctx context.Context) error {
	local := make([]int64, len(e.space.TopCells))
	for lin, idx := range e.space.TopCells {
		c := e.space.Tree.At(idx)
		if c.NodeID == e.space.NodeID {
			local[lin] = int64(c.Count)
		}
	}
	cellWeights, err := e.allgatherSum(ctx, local)
	if err != nil {
		return err
	}

	cellToNode, err := e.repart.Run(ctx, cellWeights)
	if err != nil {
		return coreerr.Wrap(coreerr.KindComm, e.space.NodeID, "engine", "repartition", err)
	}
	for lin, idx := range e.space.TopCells {
		if lin < len(cellToNode) {
			e.space.Tree.At(idx).NodeID = cellToNode[lin]
		}
	}
	if e.metrics != nil {
		e.metrics.RepartitionsTotal.Inc()
	}
	e.ticksSinceRepart = 0

	if err := e.proxy.ExchangeCellMeta(ctx, e.space.Tree, e.space.TopCells, e.neighbour); err != nil {
		return err
	}
	strays := space.FindStrays(e.space)
	if err := e.proxy.RedistributeStrays(ctx, e.space, strays); err != nil {
		return err
	}
	if err := e.proxy.AcceptStrays(e.space); err != nil {
		return err
	}
	e.syncContextFromSpace()
	return nil
}
