// Command cosmos is the engine's reference CLI: it seeds a uniform
// glass-like particle grid, drives the engine through a fixed number of
// steps, and reports basic statistics. The physics kernels themselves are
// an external collaborator (see physics.Runner); this binary ships only a
// minimal demonstration runner so the step loop, task graph and scheduler
// can be exercised end to end without a real SPH/gravity implementation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cosmos/config"
	"github.com/pthm-cable/cosmos/engine"
	"github.com/pthm-cable/cosmos/metrics"
	"github.com/pthm-cable/cosmos/particle"
	"github.com/pthm-cable/cosmos/physics"
	"github.com/pthm-cable/cosmos/proxy"
	"github.com/pthm-cable/cosmos/repartition"
	"github.com/pthm-cable/cosmos/space"
	"github.com/pthm-cable/cosmos/task"
	"github.com/pthm-cable/cosmos/telemetry"
	"github.com/pthm-cable/cosmos/ticks"
	"github.com/pthm-cable/cosmos/worker"
)

type cliFlags struct {
	particlesPerAxis int
	runs             int
	smoothingLength  float64
	rho              float64
	size             float64
	perturbation     float64
	verbosity        int
	hPert            float64
	outputTag        string
	configPath       string
	metricsAddr      string
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("cosmos", flag.ContinueOnError)
	f := cliFlags{}
	fs.IntVar(&f.particlesPerAxis, "n", 16, "particles per axis")
	fs.IntVar(&f.runs, "r", 10, "number of engine steps to run")
	fs.Float64Var(&f.smoothingLength, "h", 0.05, "smoothing length")
	fs.Float64Var(&f.rho, "m", 1.0, "target density")
	fs.Float64Var(&f.size, "s", 1.0, "box size")
	fs.Float64Var(&f.perturbation, "d", 0.0, "position perturbation fraction")
	fs.IntVar(&f.verbosity, "v", 1, "log verbosity 0-3")
	fs.Float64Var(&f.hPert, "p", 0.0, "smoothing length perturbation fraction")
	fs.StringVar(&f.outputTag, "f", "", "output tag, used to name the run's output directory")
	fs.StringVar(&f.configPath, "config", "", "config YAML file (empty = embedded defaults)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus exposition listen address (empty = disabled)")
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if f.particlesPerAxis <= 0 {
		return cliFlags{}, fmt.Errorf("-n must be positive, got %d", f.particlesPerAxis)
	}
	if f.runs <= 0 {
		return cliFlags{}, fmt.Errorf("-r must be positive, got %d", f.runs)
	}
	if f.verbosity < 0 || f.verbosity > 3 {
		return cliFlags{}, fmt.Errorf("-v must be in [0,3], got %d", f.verbosity)
	}
	return f, nil
}

func newLogger(verbosity int) (*zap.Logger, error) {
	levels := []zapcore.Level{zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.InfoLevel, zapcore.DebugLevel}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(levels[verbosity])
	return zapCfg.Build()
}

// seedGrid lays particlesPerAxis^3 gas particles on a jittered lattice
// filling a cube of side size, each with one gravity-particle partner, the
// minimal initial condition a step loop needs to exercise every task type.
func seedGrid(f cliFlags, rng *rand.Rand) *space.Space {
	cfg := config.SpaceConfig{
		BoxSize:        [3]float64{f.size, f.size, f.size},
		Periodic:       true,
		TargetLeafPart: 32,
		CdimSafety:     2.0,
		MaxDepth:       12,
		PartsSizeGrow:  1.2,
	}
	sp := space.New(cfg, 0, 1)

	n := f.particlesPerAxis
	spacing := f.size / float64(n)
	sp.Parts = make([]particle.Part, 0, n*n*n)
	sp.GParts = make([]particle.GPart, 0, n*n*n)
	sp.XParts = make([]particle.XPart, 0, n*n*n)

	id := uint64(1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				jitter := func() float64 { return (rng.Float64()*2 - 1) * f.perturbation * spacing }
				x := r3.Vec{
					X: wrapCoord((float64(i)+0.5)*spacing+jitter(), f.size),
					Y: wrapCoord((float64(j)+0.5)*spacing+jitter(), f.size),
					Z: wrapCoord((float64(k)+0.5)*spacing+jitter(), f.size),
				}
				h := f.smoothingLength * (1 + (rng.Float64()*2-1)*f.hPert)

				gi := int32(len(sp.GParts))
				sp.GParts = append(sp.GParts, particle.GPart{
					X:       x,
					Mass:    f.rho * spacing * spacing * spacing,
					Partner: particle.Gas(uint32(len(sp.Parts))),
				})
				sp.Parts = append(sp.Parts, particle.Part{
					ID:    id,
					X:     x,
					H:     h,
					Rho:   f.rho,
					GPart: gi,
				})
				sp.XParts = append(sp.XParts, particle.XPart{})
				id++
			}
		}
	}
	return sp
}

func wrapCoord(x, size float64) float64 {
	for x < 0 {
		x += size
	}
	for x >= size {
		x -= size
	}
	return x
}

// identityRepartitioner leaves every cell's owner unchanged. It exists so
// the repartition driver (circuit breaker, retry backoff) is exercised by
// this single-node demo without a real multi-node partitioning algorithm
// plugged in.
type identityRepartitioner struct{}

func (identityRepartitioner) Repartition(myNode, nrNodes int, cellWeights []int64) ([]int, error) {
	return make([]int, len(cellWeights)), nil
}

var _ physics.Repartitioner = identityRepartitioner{}

func run(f cliFlags) error {
	log, err := newLogger(f.verbosity)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	runID := uuid.New().String()
	log = log.With(zap.String("run_id", runID))

	reg := metrics.New(cfg.Cluster.NodeID)

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: f.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	rng := rand.New(rand.NewSource(42))
	sp := seedGrid(f, rng)
	if err := space.Rebuild(sp); err != nil {
		return fmt.Errorf("initial rebuild: %w", err)
	}

	clock, err := ticks.NewClock(cfg.TimeIntegration.TimeBegin, cfg.TimeIntegration.TimeEnd, ticks.T(cfg.TimeIntegration.MaxNrTimesteps))
	if err != nil {
		return fmt.Errorf("building clock: %w", err)
	}

	var outDir string
	if f.outputTag != "" {
		outDir = filepath.Join("runs", f.outputTag+"-"+runID[:8])
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	output, err := telemetry.NewOutputManager(outDir, cfg.Statistics)
	if err != nil {
		return fmt.Errorf("building output manager: %w", err)
	}
	if output != nil {
		if err := output.WriteConfig(cfg); err != nil {
			return fmt.Errorf("writing effective config: %w", err)
		}
	}

	transport := proxy.NewLoopbackTransport()
	mgr := proxy.NewManager(0, 1, transport)
	pool := worker.New(cfg.Scheduler.NrThreads, log)
	defer pool.Close()

	repart := repartition.New("identity", identityRepartitioner{}, 0, 1)
	trigger := repartition.Trigger{
		Threshold: cfg.Repartition.DispersionThreshold,
		MinTicks:  cfg.Repartition.MinTicks,
	}

	eng, err := engine.New(context.Background(), engine.Params{
		Space:      sp,
		Proxy:      mgr,
		Pool:       pool,
		Runner:     &demoRunner{},
		Repart:     repart,
		Trigger:    trigger,
		Clock:      clock,
		Cfg:        cfg,
		Metrics:    reg,
		Log:        log,
		Collector:  telemetry.NewCollector(clock, cfg.Statistics.DeltaTime),
		Perf:       telemetry.NewPerfCollector(64),
		Output:     output,
		TaskParams: task.Params{LocalNodeID: 0},
		Periodic:   cfg.Space.Periodic,
	})
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	log.Info("starting run",
		zap.Int("particles", len(sp.Parts)),
		zap.Int("runs", f.runs),
		zap.String("output_dir", outDir),
	)

	if err := eng.Run(context.Background(), f.runs); err != nil {
		return fmt.Errorf("engine run: %w", err)
	}

	log.Info("run complete", zap.Int64("ti_current", int64(eng.TiCurrent)))
	return output.Close()
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "cosmos:", err)
		os.Exit(1)
	}
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "cosmos: fatal:", err)
		os.Exit(2)
	}
}
