// Package repartition drives the external graph partitioner: it watches
// per-node task-weight dispersion and, once it crosses the configured
// threshold, calls out to a physics.Repartitioner wrapped in a circuit
// breaker and retry backoff so a flaky or slow partitioner cannot stall the
// step loop indefinitely.
package repartition

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/physics"
)

// Trigger decides when a repartition is worth the cost of running. Dispersion
// is the coefficient of variation of the per-node weight totals: 0 means
// every node carries an identical load.
type Trigger struct {
	Threshold float64 // dispersion above this requests a repartition
	MinTicks  int64   // minimum steps since the last repartition before asking again
}

// ShouldRepartition reports whether weightByNode's load imbalance exceeds
// the configured threshold, given ticksSinceLast steps have elapsed since
// the previous repartition.
func (tr Trigger) ShouldRepartition(weightByNode []int64, ticksSinceLast int64) bool {
	if ticksSinceLast < tr.MinTicks {
		return false
	}
	return dispersion(weightByNode) > tr.Threshold
}

func dispersion(weights []int64) float64 {
	if len(weights) == 0 {
		return 0
	}
	var sum float64
	for _, w := range weights {
		sum += float64(w)
	}
	mean := sum / float64(len(weights))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, w := range weights {
		d := float64(w) - mean
		variance += d * d
	}
	variance /= float64(len(weights))
	return math.Sqrt(variance) / mean
}

// Driver wraps a physics.Repartitioner with a breaker and retry policy so a
// call that times out or errors repeatedly stops being attempted for a
// cooldown window instead of blocking every subsequent step.
type Driver struct {
	impl    physics.Repartitioner
	breaker *gobreaker.CircuitBreaker
	nodeID  int
	nrNodes int
}

// New builds a Driver around impl. name distinguishes this breaker's state
// in the process (useful when a run wires more than one repartitioner).
func New(name string, impl physics.Repartitioner, nodeID, nrNodes int) *Driver {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Driver{
		impl:    impl,
		breaker: gobreaker.NewCircuitBreaker(settings),
		nodeID:  nodeID,
		nrNodes: nrNodes,
	}
}

// Run calls the underlying repartitioner, retrying transient failures with
// exponential backoff (at most 5 retries, and never past ctx's deadline),
// through the circuit breaker so
// a partitioner that is down entirely fails fast instead of retrying into a
// timeout on every step.
func (d *Driver) Run(ctx context.Context, cellWeights []int64) ([]int, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)

	var result []int
	op := func() error {
		out, err := d.breaker.Execute(func() (interface{}, error) {
			return d.impl.Repartition(d.nodeID, d.nrNodes, cellWeights)
		})
		if err != nil {
			return err
		}
		result = out.([]int)
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, coreerr.Wrap(coreerr.KindComm, d.nodeID, "repartition", "partitioner call failed", err)
	}
	return result, nil
}
