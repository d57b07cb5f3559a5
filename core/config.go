// Package core runs the distributed particle-mesh simulation: it bootstraps
// an adaptive mesh from the seeding density, populates it with particles, and
// advances them through Runge-Kutta stages with per-stage relocation,
// mesh adaptation and repartitioning.
package core

import (
	"fmt"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/forest"
)

// Config carries the simulation parameters shared by every rank.
type Config struct {
	// Dim is the spatial dimension, 2 or 3.
	Dim int
	// MinLevel is the uniform refinement level of the initial mesh.
	MinLevel int
	// MaxLevel caps adaptive refinement.
	MaxLevel int
	// Order selects the Runge-Kutta scheme, 1 through 4.
	Order int
	// GlobalParticles is the targeted global particle count.
	GlobalParticles float64
	// ElemParticles is the targeted number of particles per leaf; it drives
	// both refinement and coarsening.
	ElemParticles float64
	// Deltat is the nominal time step size.
	Deltat float64
	// FinalTime ends the simulation.
	FinalTime float64
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.Dim != 2 && c.Dim != 3 {
		return fmt.Errorf("dimension must be 2 or 3, got %d", c.Dim)
	}
	if c.MinLevel < 0 || c.MinLevel > forest.MaxLevel {
		return fmt.Errorf("minlevel must be between 0 and %d, got %d", forest.MaxLevel, c.MinLevel)
	}
	if c.MaxLevel < c.MinLevel || c.MaxLevel > forest.MaxLevel {
		return fmt.Errorf("maxlevel must be between minlevel and %d, got %d", forest.MaxLevel, c.MaxLevel)
	}
	if c.Order < 1 || c.Order > 4 {
		return fmt.Errorf("Runge-Kutta order must be between 1 and 4, got %d", c.Order)
	}
	if c.GlobalParticles <= 0 {
		return fmt.Errorf("global particle count must be positive, got %g", c.GlobalParticles)
	}
	if c.ElemParticles <= 0 {
		return fmt.Errorf("particles per element must be positive, got %g", c.ElemParticles)
	}
	if c.Deltat <= 0 {
		return fmt.Errorf("time step must be positive, got %g", c.Deltat)
	}
	if c.FinalTime <= 0 {
		return fmt.Errorf("final time must be positive, got %g", c.FinalTime)
	}
	return nil
}
