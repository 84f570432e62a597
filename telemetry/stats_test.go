package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDistributionStats(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	got := ComputeDistributionStats(values)

	if math.Abs(got.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", got.Mean)
	}
	if math.Abs(got.P10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", got.P10)
	}
	if math.Abs(got.P50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", got.P50)
	}
	if math.Abs(got.P90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", got.P90)
	}
	if got.Std <= 0 {
		t.Error("expected a positive standard deviation for a spread-out sample")
	}
}

func TestComputeDistributionStatsEmpty(t *testing.T) {
	got := ComputeDistributionStats(nil)
	if got != (DistributionStats{}) {
		t.Errorf("empty input should return the zero value, got %+v", got)
	}
}

func TestEnergyStatsLogFieldsIncludesTotals(t *testing.T) {
	s := EnergyStats{Tick: 42, TotalEnergy: 1.5, TotalMass: 10}
	fields := s.LogFields()
	if len(fields) < 2 {
		t.Fatalf("expected LogFields to produce multiple fields, got %d", len(fields))
	}
}

func TestTimestepStatsLogFieldsIncludesActivity(t *testing.T) {
	s := TimestepStats{Tick: 7, ActiveCells: 3, ActiveParts: 128}
	fields := s.LogFields()
	if len(fields) < 2 {
		t.Fatalf("expected LogFields to produce multiple fields, got %d", len(fields))
	}
}
