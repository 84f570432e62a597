package telemetry

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// EnergyStats holds the energy-conservation sample the engine writes at its
// configured statistics interval, one row per sample.
type EnergyStats struct {
	Tick            int64   `csv:"tick"`
	SimTime         float64 `csv:"sim_time"`
	KineticEnergy   float64 `csv:"kinetic_energy"`
	PotentialEnergy float64 `csv:"potential_energy"`
	InternalEnergy  float64 `csv:"internal_energy"`
	TotalEnergy     float64 `csv:"total_energy"`
	TotalMass       float64 `csv:"total_mass"`
	MomentumX       float64 `csv:"momentum_x"`
	MomentumY       float64 `csv:"momentum_y"`
	MomentumZ       float64 `csv:"momentum_z"`
}

// TimestepStats holds the per-step bookkeeping row the engine writes to the
// configured timestep file.
type TimestepStats struct {
	Tick              int64   `csv:"tick"`
	SimTime           float64 `csv:"sim_time"`
	ActiveCells       int     `csv:"active_cells"`
	ActiveParts       int     `csv:"active_parts"`
	MinTimeBin        uint8   `csv:"min_time_bin"`
	MaxTimeBin        uint8   `csv:"max_time_bin"`
	TasksRun          int64   `csv:"tasks_run"`
	TasksSkipped      int64   `csv:"tasks_skipped"`
	RebuildsTotal     int64   `csv:"rebuilds_total"`
	RepartitionsTotal int64   `csv:"repartitions_total"`
	StepDurationUS    int64   `csv:"step_duration_us"`
}

// Percentile returns the p-th percentile (p in [0,1]) of a pre-sorted
// slice, linearly interpolating between the two nearest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// DistributionStats summarizes a scalar quantity sampled across particles,
// e.g. smoothing length or density for a neighbour-density report.
type DistributionStats struct {
	Mean, Std, P10, P50, P90 float64
}

// ComputeDistributionStats computes mean, standard deviation and the
// 10th/50th/90th percentiles of values. It does not mutate values.
func ComputeDistributionStats(values []float64) DistributionStats {
	n := len(values)
	if n == 0 {
		return DistributionStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sqDiffSum float64
	for _, v := range values {
		d := v - mean
		sqDiffSum += d * d
	}
	std := math.Sqrt(sqDiffSum / float64(n))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return DistributionStats{
		Mean: mean,
		Std:  std,
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
}

// LogFields renders EnergyStats as zap fields.
func (s EnergyStats) LogFields() []zap.Field {
	return []zap.Field{
		zap.Int64("tick", s.Tick),
		zap.Float64("sim_time", s.SimTime),
		zap.Float64("kinetic_energy", s.KineticEnergy),
		zap.Float64("potential_energy", s.PotentialEnergy),
		zap.Float64("internal_energy", s.InternalEnergy),
		zap.Float64("total_energy", s.TotalEnergy),
		zap.Float64("total_mass", s.TotalMass),
	}
}

// LogFields renders TimestepStats as zap fields.
func (s TimestepStats) LogFields() []zap.Field {
	return []zap.Field{
		zap.Int64("tick", s.Tick),
		zap.Float64("sim_time", s.SimTime),
		zap.Int("active_cells", s.ActiveCells),
		zap.Int("active_parts", s.ActiveParts),
		zap.Uint8("min_time_bin", s.MinTimeBin),
		zap.Uint8("max_time_bin", s.MaxTimeBin),
		zap.Int64("tasks_run", s.TasksRun),
		zap.Int64("tasks_skipped", s.TasksSkipped),
		zap.Int64("rebuilds_total", s.RebuildsTotal),
		zap.Int64("repartitions_total", s.RepartitionsTotal),
		zap.Int64("step_duration_us", s.StepDurationUS),
	}
}
