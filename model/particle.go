package model

// Particle is the full per-particle record kept in the process-local flat
// store. The first three components of each vector are position, the last
// three velocity. Identity is positional index in the store; indices are
// only valid until the next relocation pass.
type Particle struct {
	// State is the authoritative position and velocity.
	State [6]float64
	// Eval is the staged evaluation point used between Runge-Kutta stages.
	Eval [6]float64
	// Accum is the weighted sum of stage derivatives applied on the final stage.
	Accum [6]float64
}

// Position returns the position components of the authoritative state.
func (p *Particle) Position() [3]float64 {
	return [3]float64{p.State[0], p.State[1], p.State[2]}
}

// Velocity returns the velocity components of the authoritative state.
func (p *Particle) Velocity() [3]float64 {
	return [3]float64{p.State[3], p.State[4], p.State[5]}
}

// Planet is a fixed point mass attracting every particle.
type Planet struct {
	Pos  [3]float64
	Mass float64
}

// LeafData is the payload attached to every mesh leaf. End is a cumulative
// particle count over the Morton-ordered local leaves (an offset marker into
// the flat store, not a live count). Remain and Receive are transient
// relocation counters; they are meaningful only inside a relocation pass.
type LeafData struct {
	// Density holds the quadrature of the seeding density over the leaf.
	// It is only used while the initial mesh is built.
	Density float64

	// End is the store offset one past the last particle of this leaf.
	End int64

	// Remain counts particles expected to stay in this leaf after the
	// current relocation pass.
	Remain int
	// Receive counts particles expected to arrive from other ranks.
	Receive int
}
