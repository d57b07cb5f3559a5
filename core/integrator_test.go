package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

func TestRKStageConstantVelocityExactForAllOrders(t *testing.T) {
	h := 0.1
	for order := 1; order <= 4; order++ {
		s := &Sim{cfg: Config{Dim: 3, Order: order}}
		p := &model.Particle{State: [6]float64{.2, .3, .4, .1, -.2, .05}}
		for s.stage = 0; s.stage < order; s.stage++ {
			s.rkStage(p, h)
		}
		want := [3]float64{.2 + h*.1, .3 + h*(-.2), .4 + h*.05}
		for i := 0; i < 3; i++ {
			if math.Abs(p.State[i]-want[i]) > 1e-12 {
				t.Fatalf("order %d: position[%d] = %v, want %v", order, i, p.State[i], want[i])
			}
			if math.Abs(p.State[3+i]-[3]float64{.1, -.2, .05}[i]) > 1e-12 {
				t.Fatalf("order %d: velocity[%d] changed to %v", order, i, p.State[3+i])
			}
		}
	}
}

func TestRHSAttractsTowardPlanet(t *testing.T) {
	s := &Sim{
		cfg:     Config{Dim: 3, Order: 1},
		planets: []model.Planet{{Pos: [3]float64{.8, .5, .5}, Mass: .2}},
	}
	rk := s.rhs([6]float64{.4, .5, .5, 0, 0, 0})
	r := .4
	want := .2 / (r * r)
	if math.Abs(rk[3]-want) > 1e-12 {
		t.Fatalf("x acceleration = %v, want %v", rk[3], want)
	}
	if rk[4] != 0 || rk[5] != 0 {
		t.Fatalf("off-axis acceleration = %v, %v, want 0", rk[4], rk[5])
	}
	if rk[0] != 0 || rk[1] != 0 || rk[2] != 0 {
		t.Fatalf("position derivative = %v for particle at rest", rk[:3])
	}
}

func TestRHSKeepsPlaneIn2D(t *testing.T) {
	s := &Sim{
		cfg:     Config{Dim: 2, Order: 1},
		planets: []model.Planet{{Pos: [3]float64{.48, .48, .56}, Mass: .1}},
	}
	rk := s.rhs([6]float64{.3, .4, 0, .1, .2, 0})
	if rk[2] != 0 || rk[5] != 0 {
		t.Fatalf("z components %v, %v leave the plane", rk[2], rk[5])
	}
	if rk[0] != .1 || rk[1] != .2 {
		t.Fatalf("position derivative %v, %v, want velocity", rk[0], rk[1])
	}
}

func TestRKStageThirdOrderQuadrature(t *testing.T) {
	// dx/dt = v with constant gravity from a very distant heavy planet is
	// nearly linear in time; orders 2 and up must agree to high accuracy.
	far := []model.Planet{{Pos: [3]float64{1e3, 0, 0}, Mass: 1e3}}
	h := 0.1
	results := make([][6]float64, 0, 3)
	for order := 2; order <= 4; order++ {
		s := &Sim{cfg: Config{Dim: 3, Order: order}, planets: far}
		p := &model.Particle{State: [6]float64{.5, .5, .5, .01, 0, 0}}
		for s.stage = 0; s.stage < order; s.stage++ {
			s.rkStage(p, h)
		}
		results = append(results, p.State)
	}
	for i := 1; i < len(results); i++ {
		for j := 0; j < 6; j++ {
			if math.Abs(results[i][j]-results[0][j]) > 1e-9 {
				t.Fatalf("order %d component %d = %v, order 2 got %v", i+2, j, results[i][j], results[0][j])
			}
		}
	}
}
