package engine

import (
	"time"

	"github.com/pthm-cable/cosmos/coreerr"
	"github.com/pthm-cable/cosmos/telemetry"
	"github.com/pthm-cable/cosmos/ticks"
	"go.uber.org/zap"
)

// dumpSnapshot serializes every local particle array and writes it under
// the configured output directory. Foreign (proxied) particle data never
// belongs in a node's own snapshot, so only sp.Parts/XParts/GParts/SParts
// are walked here.
func (e *Engine) dumpSnapshot() error {
	if e.output == nil {
		return nil
	}
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Tick:    int64(e.TiCurrent),
		SimTime: e.clock.ToFloat(e.TiCurrent),
	}
	snap.Parts = make([]telemetry.PartState, len(e.space.Parts))
	for i, p := range e.space.Parts {
		snap.Parts[i] = telemetry.PartToState(p)
	}
	snap.XParts = make([]telemetry.XPartState, len(e.space.XParts))
	for i, x := range e.space.XParts {
		snap.XParts[i] = telemetry.XPartToState(x)
	}
	snap.GParts = make([]telemetry.GPartState, len(e.space.GParts))
	for i, g := range e.space.GParts {
		snap.GParts[i] = telemetry.GPartToState(g)
	}
	snap.SParts = make([]telemetry.SPartState, len(e.space.SParts))
	for i, s := range e.space.SParts {
		snap.SParts[i] = telemetry.SPartToState(s)
	}

	basename := "snapshot"
	if e.cfg != nil && e.cfg.Snapshots.Basename != "" {
		basename = e.cfg.Snapshots.Basename
	}
	path, err := telemetry.SaveSnapshot(snap, e.output.Dir(), basename)
	if err != nil {
		return coreerr.Wrap(coreerr.KindAllocation, e.space.NodeID, "engine", "dump snapshot", err)
	}
	if e.log != nil {
		e.log.Info("wrote snapshot", zap.String("path", path), zap.Int64("tick", int64(e.TiCurrent)))
	}
	return nil
}

// scheduleNextSnapshot advances nextSnapshotTick by one configured
// snapshot interval, converted through the clock's time base into ticks
// and clamped to at least one so a zero-length interval cannot spin the
// step loop into dumping every step.
func (e *Engine) scheduleNextSnapshot() {
	if e.cfg == nil {
		return
	}
	base := e.clock.TimeBase()
	delta := ticks.T(1)
	if base > 0 {
		delta = ticks.T(e.cfg.Snapshots.DeltaTime / base)
	}
	if delta < 1 {
		delta = 1
	}
	e.nextSnapshotTick += delta
}

// recordStatistics flushes a timestep-statistics row once the collector's
// configured window has elapsed, and writes it alongside an energy row
// computed from whatever globally-conserved quantities are actually
// available without a physics.Observer hook.
func (e *Engine) recordStatistics() {
	if e.collector == nil || !e.collector.ShouldFlush(e.TiCurrent) {
		return
	}

	activeCells, activeParts := 0, 0
	var minBin, maxBin uint8 = 255, 0
	for _, idx := range e.space.TopCells {
		c := e.space.Tree.At(idx)
		if c.NodeID != e.space.NodeID {
			continue
		}
		if c.Active(e.TiCurrent) {
			activeCells++
			activeParts += c.Count
		}
	}
	for _, p := range e.space.Parts {
		if p.TimeBin < minBin {
			minBin = p.TimeBin
		}
		if p.TimeBin > maxBin {
			maxBin = p.TimeBin
		}
	}
	if activeCells == 0 {
		minBin, maxBin = 0, 0
	}

	stepDur := time.Duration(0)
	if e.perf != nil {
		stats := e.perf.Stats()
		stepDur = stats.AvgStepDuration
	}

	row := e.collector.Flush(e.TiCurrent, activeCells, activeParts, minBin, maxBin, stepDur)
	if e.output != nil {
		_ = e.output.WriteTimestep(row)
		_ = e.output.WriteEnergy(e.computeEnergyStats())
	}
}

// computeEnergyStats aggregates the quantities the engine can compute
// directly from GParts (the only array carrying mass): kinetic energy,
// total mass and momentum. physics.Observer exposes per-particle density
// but no global potential or internal energy hook, so those two fields
// are left at zero rather than faked.
func (e *Engine) computeEnergyStats() telemetry.EnergyStats {
	var ke, mass, px, py, pz float64
	for _, g := range e.space.GParts {
		v2 := g.V.X*g.V.X + g.V.Y*g.V.Y + g.V.Z*g.V.Z
		ke += 0.5 * g.Mass * v2
		mass += g.Mass
		px += g.Mass * g.V.X
		py += g.Mass * g.V.Y
		pz += g.Mass * g.V.Z
	}
	return telemetry.EnergyStats{
		Tick:          int64(e.TiCurrent),
		SimTime:       e.clock.ToFloat(e.TiCurrent),
		KineticEnergy: ke,
		TotalEnergy:   ke,
		TotalMass:     mass,
		MomentumX:     px,
		MomentumY:     py,
		MomentumZ:     pz,
	}
}
