// Package ticks implements the engine's integer timeline: every scheduling
// decision compares 64-bit integer ticks exactly, and floating-point time is
// derived from ticks only for output and for the physics collaborator.
package ticks

import "fmt"

// T is an absolute or relative integer tick count on the domain
// [0, MaxNrTimesteps].
type T int64

// Bin is a logarithmic time bin: a particle on bin b has step length
// 1 << b ticks.
type Bin uint8

// StepSize returns 1 << b, the number of ticks a particle on this bin
// advances per kick.
func (b Bin) StepSize() T { return T(1) << uint(b) }

// Clock converts between the integer timeline and float simulation time.
// timeBase = (tEnd - tBegin) / maxNrTimesteps, matching the mapping the
// domain is linearly scaled by.
type Clock struct {
	TBegin         float64
	TEnd           float64
	MaxNrTimesteps T
	timeBase       float64
}

// NewClock builds a Clock and precomputes timeBase. maxNrTimesteps must be
// strictly positive.
func NewClock(tBegin, tEnd float64, maxNrTimesteps T) (Clock, error) {
	if maxNrTimesteps <= 0 {
		return Clock{}, fmt.Errorf("ticks: max_nr_timesteps must be positive, got %d", maxNrTimesteps)
	}
	if tEnd <= tBegin {
		return Clock{}, fmt.Errorf("ticks: time_end (%v) must exceed time_begin (%v)", tEnd, tBegin)
	}
	c := Clock{TBegin: tBegin, TEnd: tEnd, MaxNrTimesteps: maxNrTimesteps}
	c.timeBase = (tEnd - tBegin) / float64(maxNrTimesteps)
	return c, nil
}

// TimeBase returns (t_end - t_begin) / max_nr_timesteps.
func (c Clock) TimeBase() float64 { return c.timeBase }

// ToFloat maps an integer tick to simulation time.
func (c Clock) ToFloat(t T) float64 {
	return c.TBegin + float64(t)*c.timeBase
}

// ToTick maps a simulation time to an integer tick on the grid, truncating
// any fractional tick toward zero.
func (c Clock) ToTick(x float64) T {
	return T((x - c.TBegin) / c.timeBase)
}

// Dt returns the elapsed float time between two ticks, the quantity the
// drift and kick kernels receive as dt.
func (c Clock) Dt(from, to T) float64 {
	return float64(to-from) * c.timeBase
}

// MaxBin returns the largest bin whose step size does not exceed the full
// timeline, used to clamp a freshly computed time bin.
func (c Clock) MaxBin() Bin {
	b := Bin(0)
	for T(1)<<uint(b+1) <= c.MaxNrTimesteps {
		b++
	}
	return b
}
