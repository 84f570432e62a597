package telemetry

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Phase names for the engine step loop.
const (
	PhaseCollectTimestep = "collect_timestep"
	PhaseRebalanceCheck  = "rebalance_check"
	PhaseSnapshot        = "snapshot"
	PhaseDrift           = "drift"
	PhaseRedistribute    = "redistribute"
	PhaseRebuild         = "rebuild"
	PhaseUnskip          = "unskip"
	PhaseLaunch          = "launch"
	PhaseStatistics      = "statistics"
)

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks step timing over a rolling window, the same way the
// engine's own statistics output samples over a window of steps.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new engine step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing phase, closing out whichever phase was running.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics over the window.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration
	PhaseAvg        map[string]time.Duration
	PhasePct        map[string]float64
	StepsPerSecond  float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalStep time.Duration
	var minStep, maxStep time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalStep += s.StepDuration
		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgStep := totalStep / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgStep > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgStep) * 100
		}
	}

	var stepsPerSec float64
	if avgStep > 0 {
		stepsPerSec = float64(time.Second) / float64(avgStep)
	}

	return PerfStats{
		AvgStepDuration: avgStep,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  stepsPerSec,
	}
}

// LogFields renders PerfStats as zap fields for structured logging,
// including only phases that took a measurable share of the step.
func (s PerfStats) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		zap.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		zap.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		zap.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for _, phase := range []string{
		PhaseCollectTimestep, PhaseRebalanceCheck, PhaseSnapshot, PhaseDrift,
		PhaseRedistribute, PhaseRebuild, PhaseUnskip, PhaseLaunch, PhaseStatistics,
	} {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			fields = append(fields, zap.Float64(phase+"_pct", pct))
		}
	}
	return fields
}

// MarshalLogObject implements zapcore.ObjectMarshaler so PerfStats can be
// passed to zap.Object directly.
func (s PerfStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("avg_step_us", s.AvgStepDuration.Microseconds())
	enc.AddInt64("min_step_us", s.MinStepDuration.Microseconds())
	enc.AddInt64("max_step_us", s.MaxStepDuration.Microseconds())
	enc.AddFloat64("steps_per_sec", s.StepsPerSecond)
	for phase, pct := range s.PhasePct {
		enc.AddFloat64(phase+"_pct", pct)
	}
	return nil
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd        int64   `csv:"window_end"`
	AvgStepUS        int64   `csv:"avg_step_us"`
	MinStepUS        int64   `csv:"min_step_us"`
	MaxStepUS        int64   `csv:"max_step_us"`
	StepsPerSec      float64 `csv:"steps_per_sec"`
	CollectPct       float64 `csv:"collect_timestep_pct"`
	RebalanceCheckPct float64 `csv:"rebalance_check_pct"`
	SnapshotPct      float64 `csv:"snapshot_pct"`
	DriftPct         float64 `csv:"drift_pct"`
	RedistributePct  float64 `csv:"redistribute_pct"`
	RebuildPct       float64 `csv:"rebuild_pct"`
	UnskipPct        float64 `csv:"unskip_pct"`
	LaunchPct        float64 `csv:"launch_pct"`
	StatisticsPct    float64 `csv:"statistics_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct keyed by the tick
// at which the window closed.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:         windowEnd,
		AvgStepUS:         s.AvgStepDuration.Microseconds(),
		MinStepUS:         s.MinStepDuration.Microseconds(),
		MaxStepUS:         s.MaxStepDuration.Microseconds(),
		StepsPerSec:       s.StepsPerSecond,
		CollectPct:        s.PhasePct[PhaseCollectTimestep],
		RebalanceCheckPct: s.PhasePct[PhaseRebalanceCheck],
		SnapshotPct:       s.PhasePct[PhaseSnapshot],
		DriftPct:          s.PhasePct[PhaseDrift],
		RedistributePct:   s.PhasePct[PhaseRedistribute],
		RebuildPct:        s.PhasePct[PhaseRebuild],
		UnskipPct:         s.PhasePct[PhaseUnskip],
		LaunchPct:         s.PhasePct[PhaseLaunch],
		StatisticsPct:     s.PhasePct[PhaseStatistics],
	}
}
