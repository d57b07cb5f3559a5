package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultScenarioPinsCenter(t *testing.T) {
	sc3 := DefaultScenario(3)
	if sc3.Density.Center != [3]float64{.3, .4, .5} {
		t.Fatalf("3D center = %v", sc3.Density.Center)
	}
	sc2 := DefaultScenario(2)
	if sc2.Density.Center != [3]float64{.3, .4, 0} {
		t.Fatalf("2D center = %v", sc2.Density.Center)
	}
	if len(sc3.Planets) != 2 || sc3.Planets[0].Mass != .1 || sc3.Planets[1].Mass != .2 {
		t.Fatalf("unexpected planet setup: %+v", sc3.Planets)
	}
	if err := sc3.Validate(); err != nil {
		t.Fatalf("default scenario invalid: %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	data := `{
		"planets": [{"pos": [0.5, 0.5, 0.5], "mass": 0.3}],
		"density": {"sigma": 0.2, "center": [0.1, 0.2, 0.3]}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := LoadScenario(path, 3)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(sc.Planets) != 1 || sc.Planets[0].Mass != .3 {
		t.Fatalf("planets = %+v", sc.Planets)
	}
	if sc.Density.Sigma != .2 || sc.Density.Center != [3]float64{.1, .2, .3} {
		t.Fatalf("density = %+v", sc.Density)
	}

	sc2, err := LoadScenario(path, 2)
	if err != nil {
		t.Fatalf("LoadScenario 2D: %v", err)
	}
	if sc2.Density.Center[2] != 0 {
		t.Fatalf("2D load kept center z = %v", sc2.Density.Center[2])
	}
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadScenario(filepath.Join(dir, "missing.json"), 3); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"planets": [], "density": {"sigma": 0.1}}`), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	if _, err := LoadScenario(bad, 3); err == nil {
		t.Fatal("expected error for empty planet list")
	}
}

func TestConfigValidate(t *testing.T) {
	good := Config{
		Dim: 3, MinLevel: 2, MaxLevel: 6, Order: 2,
		GlobalParticles: 1e3, ElemParticles: 3,
		Deltat: .1, FinalTime: 1,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []func(*Config){
		func(c *Config) { c.Dim = 4 },
		func(c *Config) { c.MinLevel = -1 },
		func(c *Config) { c.MaxLevel = 1 },
		func(c *Config) { c.Order = 5 },
		func(c *Config) { c.GlobalParticles = 0 },
		func(c *Config) { c.ElemParticles = -1 },
		func(c *Config) { c.Deltat = 0 },
		func(c *Config) { c.FinalTime = 0 },
	}
	for i, mutate := range cases {
		c := good
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: invalid config accepted: %+v", i, c)
		}
	}
}
