package telemetry

import (
	"testing"
	"time"

	"github.com/pthm-cable/cosmos/ticks"
)

func TestCollectorFlushResetsPerWindowCounters(t *testing.T) {
	clock, err := ticks.NewClock(0, 1, 1024)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	c := NewCollector(clock, 0.1)

	c.RecordTaskRun()
	c.RecordTaskRun()
	c.RecordTaskSkipped()
	c.RecordRebuild()

	end := c.WindowTicks()
	if !c.ShouldFlush(end) {
		t.Fatal("expected ShouldFlush to be true once windowTicks has elapsed")
	}

	row := c.Flush(end, 3, 128, 0, 5, 250*time.Microsecond)
	if row.TasksRun != 2 || row.TasksSkipped != 1 || row.RebuildsTotal != 1 {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.ActiveCells != 3 || row.ActiveParts != 128 {
		t.Fatalf("unexpected cell/particle counts in %+v", row)
	}

	// Per-window counters reset; cumulative ones do not.
	c.RecordTaskRun()
	row2 := c.Flush(end+end, 1, 1, 0, 0, time.Microsecond)
	if row2.TasksRun != 1 {
		t.Fatalf("TasksRun should reset between windows, got %d", row2.TasksRun)
	}
	if row2.RebuildsTotal != 1 {
		t.Fatalf("RebuildsTotal is cumulative and should still read 1, got %d", row2.RebuildsTotal)
	}
}

func TestCollectorShouldFlushFalseBeforeWindowElapses(t *testing.T) {
	clock, _ := ticks.NewClock(0, 1, 1024)
	c := NewCollector(clock, 0.5)
	if c.ShouldFlush(1) {
		t.Fatal("should not flush after a single tick with a half-timeline window")
	}
}
