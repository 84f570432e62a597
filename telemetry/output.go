package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/cosmos/config"
)

// OutputManager writes the engine's statistics output: an energy file and
// a timestep file, named by config, plus the effective
// configuration alongside them so a run directory is self-describing.
type OutputManager struct {
	dir        string
	energyFile *os.File
	tstepFile  *os.File

	energyHeaderWritten bool
	tstepHeaderWritten  bool
}

// NewOutputManager creates the output directory and opens the two
// statistics files named in stats. Returns nil, nil if dir is empty
// (output disabled).
func NewOutputManager(dir string, stats config.StatisticsConfig) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	energyPath := filepath.Join(dir, stats.EnergyFileName)
	f, err := os.Create(energyPath)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", stats.EnergyFileName, err)
	}
	om.energyFile = f

	tstepPath := filepath.Join(dir, stats.TimestepFileName)
	f, err = os.Create(tstepPath)
	if err != nil {
		om.energyFile.Close()
		return nil, fmt.Errorf("creating %s: %w", stats.TimestepFileName, err)
	}
	om.tstepFile = f

	return om, nil
}

// WriteConfig saves the effective configuration as YAML alongside the run's
// statistics output.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteEnergy appends one energy-conservation sample.
func (om *OutputManager) WriteEnergy(row EnergyStats) error {
	if om == nil {
		return nil
	}
	records := []EnergyStats{row}
	if !om.energyHeaderWritten {
		if err := gocsv.Marshal(records, om.energyFile); err != nil {
			return fmt.Errorf("writing energy stats: %w", err)
		}
		om.energyHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.energyFile); err != nil {
		return fmt.Errorf("writing energy stats: %w", err)
	}
	return nil
}

// WriteTimestep appends one per-window timestep bookkeeping row.
func (om *OutputManager) WriteTimestep(row TimestepStats) error {
	if om == nil {
		return nil
	}
	records := []TimestepStats{row}
	if !om.tstepHeaderWritten {
		if err := gocsv.Marshal(records, om.tstepFile); err != nil {
			return fmt.Errorf("writing timestep stats: %w", err)
		}
		om.tstepHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.tstepFile); err != nil {
		return fmt.Errorf("writing timestep stats: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes both output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	if om.energyFile != nil {
		if err := om.energyFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if om.tstepFile != nil {
		if err := om.tstepFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
