package core

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

// Scenario describes the physical setup: the attracting planets and the
// Gaussian density the particles are seeded from.
type Scenario struct {
	Planets []PlanetSpec `json:"planets"`
	Density GaussianSpec `json:"density"`
}

// PlanetSpec is one fixed point mass. Its position keeps all three
// coordinates even in two dimensions; distances are always computed in 3D
// space.
type PlanetSpec struct {
	Pos  [3]float64 `json:"pos"`
	Mass float64    `json:"mass"`
}

// GaussianSpec parameterizes the seeding density.
type GaussianSpec struct {
	Sigma  float64    `json:"sigma"`
	Center [3]float64 `json:"center"`
}

// DefaultScenario returns the built-in two-planet setup.
func DefaultScenario(dim int) Scenario {
	center := [3]float64{.3, .4, 0}
	if dim == 3 {
		center[2] = .5
	}
	return Scenario{
		Planets: []PlanetSpec{
			{Pos: [3]float64{.48, .48, .56}, Mass: .1},
			{Pos: [3]float64{.58, .43, .59}, Mass: .2},
		},
		Density: GaussianSpec{Sigma: .1, Center: center},
	}
}

// LoadScenario reads a scenario from a JSON file. In two dimensions the
// density center is projected onto the z=0 plane.
func LoadScenario(path string, dim int) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if dim == 2 {
		sc.Density.Center[2] = 0
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Validate checks the scenario for physical plausibility.
func (s Scenario) Validate() error {
	if len(s.Planets) == 0 {
		return fmt.Errorf("at least one planet required")
	}
	for i, p := range s.Planets {
		if p.Mass <= 0 {
			return fmt.Errorf("planet %d mass must be positive, got %g", i, p.Mass)
		}
	}
	if s.Density.Sigma <= 0 {
		return fmt.Errorf("density sigma must be positive, got %g", s.Density.Sigma)
	}
	return nil
}

func (s Scenario) planetModels() []model.Planet {
	out := make([]model.Planet, len(s.Planets))
	for i, p := range s.Planets {
		out[i] = model.Planet{Pos: p.Pos, Mass: p.Mass}
	}
	return out
}
