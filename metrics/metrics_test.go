package metrics

import "testing"

func TestNewRegistersEveryMetricExactlyOnce(t *testing.T) {
	r := New(3)

	r.StepsTotal.Inc()
	r.TasksRun.Inc()
	r.ActiveCells.Set(42)
	r.QueueDepth.WithLabelValues("q0").Set(5)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cosmos_steps_total",
		"cosmos_tasks_run_total",
		"cosmos_active_cells",
		"cosmos_queue_depth",
		"cosmos_step_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("missing metric family %q", want)
		}
	}
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	a := New(0)
	b := New(1)
	a.StepsTotal.Inc()
	b.StepsTotal.Inc()
	b.StepsTotal.Inc()

	fa, _ := a.Gatherer().Gather()
	fb, _ := b.Gatherer().Gather()
	if len(fa) == 0 || len(fb) == 0 {
		t.Fatal("expected both private registries to gather independently")
	}
}
