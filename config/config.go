// Package config provides configuration loading and access for the engine.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every parameter the engine's components look up by name at
// startup. It is read once per process; nothing in the core mutates it
// after Load returns.
type Config struct {
	TimeIntegration TimeIntegrationConfig `yaml:"time_integration"`
	Snapshots       SnapshotsConfig       `yaml:"snapshots"`
	Scheduler       SchedulerConfig       `yaml:"scheduler"`
	Statistics      StatisticsConfig      `yaml:"statistics"`
	Space           SpaceConfig           `yaml:"space"`
	Cluster         ClusterConfig         `yaml:"cluster"`
	Transport       TransportConfig       `yaml:"transport"`
	Repartition     RepartitionConfig     `yaml:"repartition"`
	Metrics         MetricsConfig         `yaml:"metrics"`
	Logging         LoggingConfig         `yaml:"logging"`

	// Derived holds values computed once after loading rather than looked
	// up repeatedly.
	Derived DerivedConfig `yaml:"-"`
}

// TimeIntegrationConfig controls the integer timeline.
type TimeIntegrationConfig struct {
	TimeBegin       float64 `yaml:"time_begin"`
	TimeEnd         float64 `yaml:"time_end"`
	DtMin           float64 `yaml:"dt_min"`
	DtMax           float64 `yaml:"dt_max"`
	MaxNrTimesteps  int64   `yaml:"max_nr_timesteps"`
}

// SnapshotsConfig controls when and how the engine asks the physics
// collaborator to persist state.
type SnapshotsConfig struct {
	TimeFirst   float64 `yaml:"time_first"`
	DeltaTime   float64 `yaml:"delta_time"`
	Basename    string  `yaml:"basename"`
	Compression string  `yaml:"compression"`
}

// SchedulerConfig controls the task scheduler's queue topology.
type SchedulerConfig struct {
	NrQueues   int `yaml:"nr_queues"` // 0 means "default to nr_threads"
	NrThreads  int `yaml:"nr_threads"`
}

// StatisticsConfig controls periodic energy/timestep reporting.
type StatisticsConfig struct {
	DeltaTime        float64 `yaml:"delta_time"`
	EnergyFileName    string  `yaml:"energy_file_name"`
	TimestepFileName string  `yaml:"timestep_file_name"`
}

// SpaceConfig controls the top-level grid and octree refinement that
// space_rebuild derives the cell tree from.
type SpaceConfig struct {
	BoxSize        [3]float64 `yaml:"box_size"`
	Periodic       bool       `yaml:"periodic"`
	TargetLeafPart int        `yaml:"target_leaf_part"` // leaf split stops once a cell's count is at or below this
	CdimSafety     float64    `yaml:"cdim_safety"`       // top-cell width >= cdim_safety * h_max
	MaxDepth       int        `yaml:"max_depth"`         // octree recursion guard
	PartsSizeGrow  float64    `yaml:"parts_size_grow"`   // reallocation headroom factor
}

// ClusterConfig describes this process's position in the node group.
type ClusterConfig struct {
	NodeID  int `yaml:"node_id"`
	NrNodes int `yaml:"nr_nodes"`
}

// TransportConfig controls the cross-node proxy exchange.
type TransportConfig struct {
	Kind        string `yaml:"kind"` // "loopback" or "network"
	RecvTimeout string `yaml:"recv_timeout"`
}

// RepartitionConfig controls the external-partitioner trigger.
type RepartitionConfig struct {
	DispersionThreshold float64 `yaml:"dispersion_threshold"`
	MinTicks            int64  `yaml:"min_ticks"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "console" or "json"
	Production bool   `yaml:"production"`
}

// DerivedConfig holds values computed once from the loaded config rather
// than recomputed at every call site.
type DerivedConfig struct {
	NrQueues int // Scheduler.NrQueues, defaulted to NrThreads when zero
}

// global holds the loaded configuration for callers that prefer the
// package-level accessor over threading a *Config through explicitly.
var global *Config

// Init loads configuration from path (embedded defaults if path is empty)
// and makes it available through Cfg. Must be called before Cfg.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load reads a YAML file over the embedded defaults; fields absent from
// path are left at their default value. If path is empty only the
// defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TimeIntegration.TimeEnd <= c.TimeIntegration.TimeBegin {
		return fmt.Errorf("time_integration: time_end (%v) must be greater than time_begin (%v)",
			c.TimeIntegration.TimeEnd, c.TimeIntegration.TimeBegin)
	}
	if c.TimeIntegration.MaxNrTimesteps <= 0 {
		return fmt.Errorf("time_integration: max_nr_timesteps must be positive, got %d", c.TimeIntegration.MaxNrTimesteps)
	}
	if c.Scheduler.NrThreads <= 0 {
		return fmt.Errorf("scheduler: nr_threads must be positive, got %d", c.Scheduler.NrThreads)
	}
	if c.Space.TargetLeafPart <= 0 {
		return fmt.Errorf("space: target_leaf_part must be positive, got %d", c.Space.TargetLeafPart)
	}
	if c.Space.BoxSize[0] <= 0 || c.Space.BoxSize[1] <= 0 || c.Space.BoxSize[2] <= 0 {
		return fmt.Errorf("space: box_size components must be positive, got %v", c.Space.BoxSize)
	}
	if c.Cluster.NrNodes <= 0 {
		return fmt.Errorf("cluster: nr_nodes must be positive, got %d", c.Cluster.NrNodes)
	}
	if c.Cluster.NodeID < 0 || c.Cluster.NodeID >= c.Cluster.NrNodes {
		return fmt.Errorf("cluster: node_id %d out of range [0, %d)", c.Cluster.NodeID, c.Cluster.NrNodes)
	}
	return nil
}

// WriteYAML marshals the config back to path, used to record the effective
// configuration for a run alongside its snapshots.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) computeDerived() {
	if c.Scheduler.NrQueues > 0 {
		c.Derived.NrQueues = c.Scheduler.NrQueues
	} else {
		c.Derived.NrQueues = c.Scheduler.NrThreads
	}
}
