package task

import (
	"github.com/pthm-cable/cosmos/cell"
	"github.com/pthm-cable/cosmos/ticks"
)

// UnskipResult reports what the activation pass observed, separate from its
// side effect on Task.Skip so callers can react to a rebuild requirement
// without re-scanning the graph.
type UnskipResult struct {
	RebuildNeeded bool
}

// Unskip runs the per-step activation pass: every task starts Skip = true,
// then a single pass activates self/ghost/kick/drift/init/timestep tasks on
// an active cell, and pair tasks where either participating cell is active.
// Sort tasks always activate regardless of their own top cell's activity,
// since an active pair's cells can sit deeper than the top cell's own
// TiEndMin reaches and a skipped sort would otherwise let it run unsorted.
//
// Running Unskip twice with no intervening state change activates exactly
// the same set: the pass only reads TiEndMin and Task.Type/CI/CJ, never
// prior Skip state.
func (g *Graph) Unskip(tree *cell.Tree, tNow ticks.T, dmin func(ci, cj cell.Idx) float64) UnskipResult {
	for i := range g.Tasks {
		g.Tasks[i].Skip = true
	}

	var result UnskipResult

	for i := range g.Tasks {
		t := &g.Tasks[i]
		switch t.Type {
		case TypeSelf, TypeSubSelf, TypeGhost, TypeExtraGhost, TypeKick1, TypeKick2,
			TypeDrift, TypeInit, TypeTimestep, TypeCooling, TypeSourceterms, TypeGravMM:
			if tree.At(t.CI).Active(tNow) {
				t.Skip = false
			}
		case TypePair, TypeSubPair:
			ci, cj := tree.At(t.CI), tree.At(t.CJ)
			if ci.Active(tNow) || cj.Active(tNow) {
				t.Skip = false
				if d := dmin(t.CI, t.CJ); cell.RebuildNeeded(ci, cj, d) {
					result.RebuildNeeded = true
				}
			}
		case TypeSend, TypeRecv:
			ci, cj := tree.At(t.CI), tree.At(t.CJ)
			if ci.Active(tNow) || cj.Active(tNow) {
				t.Skip = false
			}
		case TypeSort:
			// A sort task's own top cell need not itself be active even
			// when a pair depending on it is (the pair's cells can sit
			// deeper in the tree than the top cell's own TiEndMin tracks),
			// and a skipped predecessor is left out of its dependents' Wait
			// entirely. Always activating it guarantees an active pair never
			// runs before its cells are sorted; cell.Sort is a no-op once a
			// cell's requested axes are already Sorted.
			t.Skip = false
		default:
			// grav_gather_m/grav_fft/grav_up carry no cell-activity check
			// of their own and are activated on every pass; each grav_mm
			// they unlock is still gated by its own cell in the branch
			// above.
			t.Skip = false
		}
	}

	return result
}
