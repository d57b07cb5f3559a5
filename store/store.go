// Package store holds the flat, process-local particle array. Particles are
// addressed by positional index; indices stay valid only until the store is
// rebuilt at the end of a relocation pass.
package store

import "github.com/signalsfoundry/particle-mesh-simulator/model"

// ParticleStore owns the local particles. It is mutated only by the owning
// rank's goroutine and is deliberately not synchronized.
type ParticleStore struct {
	particles []model.Particle
}

// New returns an empty store.
func New() *ParticleStore {
	return &ParticleStore{}
}

// Len returns the number of particles.
func (s *ParticleStore) Len() int { return len(s.particles) }

// At returns the particle at index i for in-place mutation.
func (s *ParticleStore) At(i int) *model.Particle { return &s.particles[i] }

// PushCount appends n zero-valued particles and returns the appended slice
// for initialization.
func (s *ParticleStore) PushCount(n int) []model.Particle {
	base := len(s.particles)
	s.particles = append(s.particles, make([]model.Particle, n)...)
	return s.particles[base:]
}

// All exposes the backing slice. The slice is invalidated by PushCount and
// Replace.
func (s *ParticleStore) All() []model.Particle { return s.particles }

// Replace swaps in a freshly assembled particle sequence; the regather step
// of a relocation pass uses it to drop departed and lost particles and to
// splice in arrivals in leaf order.
func (s *ParticleStore) Replace(particles []model.Particle) {
	s.particles = particles
}
