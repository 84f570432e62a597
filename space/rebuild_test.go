package space

import (
	"math/rand"
	"testing"

	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/config"
	"github.com/pthm-cable/cosmos/particle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testConfig() config.SpaceConfig {
	return config.SpaceConfig{
		BoxSize:        [3]float64{1, 1, 1},
		Periodic:       true,
		TargetLeafPart: 8,
		CdimSafety:     2.0,
		MaxDepth:       8,
		PartsSizeGrow:  1.2,
	}
}

func scatterParts(n int, seed int64) []particle.Part {
	r := rand.New(rand.NewSource(seed))
	parts := make([]particle.Part, n)
	for i := range parts {
		parts[i] = particle.Part{
			ID: particle.ID(i),
			X:  r3.Vec{X: r.Float64(), Y: r.Float64(), Z: r.Float64()},
			H:  0.02,
		}
	}
	return parts
}

func TestRebuildEveryParticleInsideExactlyOneLeaf(t *testing.T) {
	sp := New(testConfig(), 0, 1)
	sp.Parts = scatterParts(500, 1)

	require.NoError(t, Rebuild(sp))

	covered := make([]bool, len(sp.Parts))
	var leaves []cell.Idx
	for _, top := range sp.TopCells {
		leaves = sp.Tree.Leaves(top, leaves)
	}
	for _, idx := range leaves {
		c := sp.Tree.At(idx)
		for i := c.PartStart; i < c.PartStart+c.Count; i++ {
			if covered[i] {
				t.Fatalf("particle at index %d covered by more than one leaf", i)
			}
			covered[i] = true
			x := sp.Parts[i].X
			if x.X < c.Loc.X || x.X > c.Loc.X+c.Width.X ||
				x.Y < c.Loc.Y || x.Y > c.Loc.Y+c.Width.Y ||
				x.Z < c.Loc.Z || x.Z > c.Loc.Z+c.Width.Z {
				t.Fatalf("particle %d at %+v lies outside its assigned leaf [%+v, %+v]", i, x, c.Loc, c.Width)
			}
		}
	}
	for i, ok := range covered {
		if !ok {
			t.Fatalf("particle %d not covered by any leaf", i)
		}
	}
}

func TestRebuildRespectsLeafTarget(t *testing.T) {
	sp := New(testConfig(), 0, 1)
	sp.Parts = scatterParts(2000, 2)

	if err := Rebuild(sp); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var leaves []int
	for _, top := range sp.TopCells {
		for _, idx := range sp.Tree.Leaves(top, nil) {
			c := sp.Tree.At(idx)
			leaves = append(leaves, c.Count+c.GCount+c.SCount)
		}
	}
	for _, n := range leaves {
		if n > sp.cfg.TargetLeafPart*4 {
			// Generous slack: a leaf can exceed the target only when
			// MaxDepth stops further splitting or particles coincide.
			t.Fatalf("leaf holds %d particles, well beyond target %d", n, sp.cfg.TargetLeafPart)
		}
	}
}

func TestRebuildPreservesPartnerLinkageAcrossReordering(t *testing.T) {
	sp := New(testConfig(), 0, 1)
	sp.Parts = scatterParts(300, 3)
	sp.GParts = make([]particle.GPart, len(sp.Parts))
	for i := range sp.Parts {
		sp.Parts[i].GPart = int32(i)
		sp.GParts[i] = particle.GPart{X: sp.Parts[i].X, Partner: particle.Gas(uint32(i))}
	}

	if err := Rebuild(sp); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	for pi, p := range sp.Parts {
		g := sp.GParts[p.GPart]
		if g.Partner.Kind() != particle.PartnerGas || int(g.Partner.Index()) != pi {
			t.Fatalf("particle %d's gpart %d does not link back to it (got partner index %d)", pi, p.GPart, g.Partner.Index())
		}
	}
}

func TestCellIndexAndNeighbourFuncRoundTrip(t *testing.T) {
	cdim := [3]int{4, 4, 4}
	neighbour := NeighbourFunc(cdim, true)

	lin := CellIndex(cdim, 3, 0, 0)
	got, ok := neighbour(lin, 1, 0, 0)
	if !ok {
		t.Fatal("periodic neighbour lookup should never report absent")
	}
	if want := CellIndex(cdim, 0, 0, 0); got != want {
		t.Fatalf("wraparound neighbour = %d, want %d", got, want)
	}

	nonPeriodic := NeighbourFunc(cdim, false)
	if _, ok := nonPeriodic(lin, 1, 0, 0); ok {
		t.Fatal("non-periodic neighbour lookup past the boundary should report absent")
	}
}

func TestRebuildPopulatesHMaxFromParticleSmoothingLengths(t *testing.T) {
	sp := New(testConfig(), 0, 1)
	sp.Parts = scatterParts(500, 4)
	for i := range sp.Parts {
		sp.Parts[i].H = 0.01 + 0.001*float64(i%5)
	}

	require.NoError(t, Rebuild(sp))

	var leaves []cell.Idx
	for _, top := range sp.TopCells {
		leaves = sp.Tree.Leaves(top, leaves)
	}
	require.NotEmpty(t, leaves)
	for _, idx := range leaves {
		c := sp.Tree.At(idx)
		if c.Count == 0 {
			continue
		}
		var want float64
		for i := c.PartStart; i < c.PartStart+c.Count; i++ {
			if sp.Parts[i].H > want {
				want = sp.Parts[i].H
			}
		}
		assert.Equal(t, want, c.HMax, "leaf HMax must equal the max smoothing length over its own particles")
		assert.Greater(t, c.HMax, 0.0)
	}
}
