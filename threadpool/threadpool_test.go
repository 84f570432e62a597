package threadpool

import (
	"sync/atomic"
	"testing"
)

func TestMapCoversEveryElementExactlyOnce(t *testing.T) {
	const n = 10007
	var hit [n]int32

	Map(n, 17, 8, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&hit[i], 1)
		}
	})

	for i, v := range hit {
		if v != 1 {
			t.Fatalf("element %d visited %d times, want 1", i, v)
		}
	}
}

func TestMapEmptyRange(t *testing.T) {
	called := false
	Map(0, 4, 4, func(lo, hi int) { called = true })
	if called {
		t.Fatal("Map should not invoke fn for an empty range")
	}
}
