// Package metrics wraps the engine's Prometheus instrumentation in a
// non-global Registry value, so a test or a multi-node-in-process harness
// can run more than one engine without fighting over prometheus's default
// registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters, gauges and histograms the step loop and
// scheduler update, all registered against a private prometheus.Registry
// rather than the package-level default one.
type Registry struct {
	reg *prometheus.Registry

	StepsTotal       prometheus.Counter
	TasksRun         prometheus.Counter
	TasksSkipped     prometheus.Counter
	RebuildsTotal    prometheus.Counter
	RepartitionsTotal prometheus.Counter
	ActiveCells      prometheus.Gauge
	TiCurrent        prometheus.Gauge
	StepDuration     prometheus.Histogram
	QueueDepth       *prometheus.GaugeVec
}

// New builds a Registry with every metric registered. nodeID is attached as
// a constant label so metrics scraped from several node processes in one
// Prometheus instance stay distinguishable.
func New(nodeID int) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"node": strconv.Itoa(nodeID)}

	r := &Registry{
		reg: reg,
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosmos",
			Name:        "steps_total",
			Help:        "Number of completed simulation steps.",
			ConstLabels: labels,
		}),
		TasksRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosmos",
			Name:        "tasks_run_total",
			Help:        "Number of tasks dispatched to completion.",
			ConstLabels: labels,
		}),
		TasksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosmos",
			Name:        "tasks_skipped_total",
			Help:        "Number of tasks left skipped by an activation pass.",
			ConstLabels: labels,
		}),
		RebuildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosmos",
			Name:        "rebuilds_total",
			Help:        "Number of full tree rebuilds triggered.",
			ConstLabels: labels,
		}),
		RepartitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosmos",
			Name:        "repartitions_total",
			Help:        "Number of times the external partitioner was invoked.",
			ConstLabels: labels,
		}),
		ActiveCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cosmos",
			Name:        "active_cells",
			Help:        "Number of cells active at the current tick.",
			ConstLabels: labels,
		}),
		TiCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cosmos",
			Name:        "ti_current",
			Help:        "Current integer simulation tick.",
			ConstLabels: labels,
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "cosmos",
			Name:        "step_duration_seconds",
			Help:        "Wall-clock duration of a full step-loop iteration.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "cosmos",
			Name:        "queue_depth",
			Help:        "Number of ready tasks waiting in a scheduler queue.",
			ConstLabels: labels,
		}, []string{"queue"}),
	}

	reg.MustRegister(r.StepsTotal, r.TasksRun, r.TasksSkipped, r.RebuildsTotal,
		r.RepartitionsTotal, r.ActiveCells, r.TiCurrent, r.StepDuration, r.QueueDepth)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
