package ticks

import "testing"

func TestTimeBaseRoundTrip(t *testing.T) {
	c, err := NewClock(0, 1, 1<<28)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	got := c.TimeBase() * float64(c.MaxNrTimesteps)
	want := c.TEnd - c.TBegin
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("timeBase*maxNrTimesteps = %v, want %v", got, want)
	}
}

func TestToFloatToTickRoundTrip(t *testing.T) {
	c, err := NewClock(0, 1, 1<<28)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	for _, tick := range []T{0, 1, 1234567, c.MaxNrTimesteps} {
		x := c.ToFloat(tick)
		got := c.ToTick(x)
		if got != tick {
			t.Fatalf("ToTick(ToFloat(%d)) = %d, want %d", tick, got, tick)
		}
	}
}

func TestBinStepSize(t *testing.T) {
	if StepSize := Bin(0).StepSize(); StepSize != 1 {
		t.Fatalf("bin 0 step size = %d, want 1", StepSize)
	}
	if StepSize := Bin(5).StepSize(); StepSize != 32 {
		t.Fatalf("bin 5 step size = %d, want 32", StepSize)
	}
}

func TestNewClockRejectsBadRange(t *testing.T) {
	if _, err := NewClock(1, 1, 10); err == nil {
		t.Fatal("expected error for tEnd == tBegin")
	}
	if _, err := NewClock(0, 1, 0); err == nil {
		t.Fatal("expected error for zero max_nr_timesteps")
	}
}
