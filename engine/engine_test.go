package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/config"
	"github.com/pthm-cable/cosmos/metrics"
	"github.com/pthm-cable/cosmos/particle"
	"github.com/pthm-cable/cosmos/proxy"
	"github.com/pthm-cable/cosmos/repartition"
	"github.com/pthm-cable/cosmos/space"
	"github.com/pthm-cable/cosmos/task"
	"github.com/pthm-cable/cosmos/telemetry"
	"github.com/pthm-cable/cosmos/ticks"
	"github.com/pthm-cable/cosmos/worker"
)

// stubRunner is a do-nothing physics.Runner except for Timestep, which
// pushes every cell's end-time advance ticks ahead so a multi-step smoke test
// actually advances instead of relaunching the same activation forever.
type stubRunner struct{ advance ticks.T }

func (r *stubRunner) DoSelfDensity(tree *cell.Tree, ci cell.Idx)            {}
func (r *stubRunner) DoSelfForce(tree *cell.Tree, ci cell.Idx)              {}
func (r *stubRunner) DoSelfGrav(tree *cell.Tree, ci cell.Idx)               {}
func (r *stubRunner) DoPairDensity(t *cell.Tree, ci, cj cell.Idx, f uint32) {}
func (r *stubRunner) DoPairForce(t *cell.Tree, ci, cj cell.Idx, f uint32)   {}
func (r *stubRunner) DoPairGrav(t *cell.Tree, ci, cj cell.Idx, f uint32)    {}
func (r *stubRunner) Init(t *cell.Tree, ci cell.Idx)                        {}
func (r *stubRunner) Ghost(t *cell.Tree, ci cell.Idx)                       {}
func (r *stubRunner) ExtraGhost(t *cell.Tree, ci cell.Idx)                  {}
func (r *stubRunner) Kick1(t *cell.Tree, ci cell.Idx, dt float64)           {}
func (r *stubRunner) Kick2(t *cell.Tree, ci cell.Idx, dt float64)           {}
func (r *stubRunner) Timestep(t *cell.Tree, ci cell.Idx) {
	c := t.At(ci)
	c.TiEndMin += r.advance
	c.TiEndMax += r.advance
}
func (r *stubRunner) Cooling(t *cell.Tree, ci cell.Idx)     {}
func (r *stubRunner) Sourceterms(t *cell.Tree, ci cell.Idx) {}
func (r *stubRunner) GravMM(t *cell.Tree, ci cell.Idx)      {}
func (r *stubRunner) GravGatherM(t *cell.Tree)              {}
func (r *stubRunner) GravFFT(t *cell.Tree)                  {}

func testSpaceConfig() config.SpaceConfig {
	return config.SpaceConfig{
		BoxSize:        [3]float64{1, 1, 1},
		Periodic:       true,
		TargetLeafPart: 4,
		CdimSafety:     2.0,
		MaxDepth:       6,
		PartsSizeGrow:  1.2,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	sp := space.New(testSpaceConfig(), 0, 1)
	sp.Parts = []particle.Part{
		{ID: 1, X: r3.Vec{X: 0.2, Y: 0.2, Z: 0.2}, V: r3.Vec{X: 0.01}, H: 0.05, GPart: -1},
		{ID: 2, X: r3.Vec{X: 0.6, Y: 0.6, Z: 0.6}, V: r3.Vec{X: -0.01}, H: 0.05, GPart: -1},
	}
	sp.GParts = []particle.GPart{
		{X: sp.Parts[0].X, V: sp.Parts[0].V, Mass: 1, Partner: particle.Gas(0)},
		{X: sp.Parts[1].X, V: sp.Parts[1].V, Mass: 1, Partner: particle.Gas(1)},
	}

	clock, err := ticks.NewClock(0, 1, 1<<20)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}

	cfg := &config.Config{
		TimeIntegration: config.TimeIntegrationConfig{TimeBegin: 0, TimeEnd: 1, MaxNrTimesteps: 1 << 20},
		Snapshots:       config.SnapshotsConfig{TimeFirst: 10, DeltaTime: 10, Basename: "test"},
		Derived:         config.DerivedConfig{NrQueues: 2},
	}

	transport := proxy.NewLoopbackTransport()
	mgr := proxy.NewManager(0, 1, transport)
	pool := worker.New(2, zap.NewNop())
	t.Cleanup(pool.Close)

	e, err := New(context.Background(), Params{
		Space:      sp,
		Proxy:      mgr,
		Pool:       pool,
		Runner:     &stubRunner{advance: 64},
		Trigger:    repartition.Trigger{Threshold: 0.3, MinTicks: 10},
		Clock:      clock,
		Cfg:        cfg,
		Metrics:    metrics.New(0),
		Log:        zap.NewNop(),
		Collector:  telemetry.NewCollector(clock, 0),
		Perf:       telemetry.NewPerfCollector(8),
		TaskParams: task.Params{LocalNodeID: 0},
		Periodic:   true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEngineRunSingleNodeAdvancesTime(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.TiCurrent == 0 {
		t.Fatal("expected TiCurrent to advance past zero after 3 steps")
	}
	if len(e.space.Parts) != 2 {
		t.Fatalf("expected particle count unchanged on a single node, got %d", len(e.space.Parts))
	}
}

func TestEngineRunWithoutRepartitionDriver(t *testing.T) {
	e := newTestEngine(t)
	e.repart = nil
	if err := e.Run(context.Background(), 2); err != nil {
		t.Fatalf("Run without a repartition driver: %v", err)
	}
}
