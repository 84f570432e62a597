package space

import (
	"testing"

	"github.com/pthm-cable/cosmos/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestFindStraysReportsParticlesUnderForeignTopCells(t *testing.T) {
	sp := New(testConfig(), 0, 2)
	sp.Parts = scatterParts(64, 7)
	if err := Rebuild(sp); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// Hand half the top cells to node 1.
	for i, idx := range sp.TopCells {
		if i%2 == 0 {
			sp.Tree.At(idx).NodeID = 1
		}
	}

	strays := FindStrays(sp)
	if len(strays) == 0 {
		t.Fatal("expected at least one stray once half the grid belongs to another node")
	}
	for _, s := range strays {
		if s.Kind != StrayPart {
			t.Fatalf("unexpected stray kind %v with no gparts/sparts present", s.Kind)
		}
		if s.DestNode != 1 {
			t.Fatalf("stray destination = %d, want 1", s.DestNode)
		}
	}
}

func TestFindStraysIgnoresPartneredGravityParticles(t *testing.T) {
	sp := New(testConfig(), 0, 2)
	sp.Parts = []particle.Part{{ID: 1, X: r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}, GPart: 0}}
	sp.GParts = []particle.GPart{{X: sp.Parts[0].X, Partner: particle.Gas(0)}}
	if err := Rebuild(sp); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	for _, idx := range sp.TopCells {
		sp.Tree.At(idx).NodeID = 1
	}

	strays := FindStrays(sp)
	var gpartStrays int
	for _, s := range strays {
		if s.Kind == StrayGPart {
			gpartStrays++
		}
	}
	if gpartStrays != 0 {
		t.Fatalf("gas-partnered gravity particles should not be reported as their own stray, got %d", gpartStrays)
	}
}
