package engine

import "gonum.org/v1/gonum/spatial/r3"

// syncContextFromSpace rebuilds the flat position/velocity mirrors the
// scheduler's Context dispatches drift and sort tasks against, copying
// straight from the authoritative particle.Part array. Call after any
// change that reorders or resizes sp.Parts: a rebuild, or a global drift
// that is about to be followed by one.
func (e *Engine) syncContextFromSpace() {
	n := len(e.space.Parts)
	if cap(e.positions) < n {
		e.positions = make([]r3.Vec, n)
		e.velocities = make([]r3.Vec, n)
	} else {
		e.positions = e.positions[:n]
		e.velocities = e.velocities[:n]
	}
	for i, p := range e.space.Parts {
		e.positions[i] = p.X
		e.velocities[i] = p.V
	}
}

// syncSpaceFromContext writes the flat mirrors back into sp.Parts after a
// launch has drained: TypeDrift tasks mutate Positions/Velocities in
// place and never touch particle.Part directly, so this is the only point
// where those tasks' results become visible to the rest of the engine.
func (e *Engine) syncSpaceFromContext() {
	for i := range e.space.Parts {
		e.space.Parts[i].X = e.positions[i]
		e.space.Parts[i].V = e.velocities[i]
	}
}
