package core

import (
	"math"

	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

// rkTableaux holds the Butcher coefficients of the explicit Runge-Kutta
// schemes of order 1 through 4. b weighs the evaluation points of the
// intermediate stages, g the stage derivatives accumulated into the update.
var rkTableaux = [4]struct {
	b, g []float64
}{
	{nil, []float64{1}},
	{[]float64{1}, []float64{.5, .5}},
	{[]float64{1. / 3, 2. / 3}, []float64{.25, 0, .75}},
	{[]float64{.5, .5, 1}, []float64{1. / 6, 1. / 3, 1. / 3, 1. / 6}},
}

// rhs evaluates the equations of motion at the given state: the position
// derivative is the velocity, the velocity derivative the summed gravity of
// the planets. Distances are always computed in 3D space.
func (s *Sim) rhs(xv [6]float64) [6]float64 {
	var rk [6]float64
	for i := 0; i < s.cfg.Dim; i++ {
		rk[i] = xv[3+i]
	}
	for _, pl := range s.planets {
		d := 0.
		var diff [3]float64
		for i := 0; i < 3; i++ {
			diff[i] = pl.Pos[i] - xv[i]
			d += diff[i] * diff[i]
		}
		d = pl.Mass * math.Pow(d, -1.5)
		for i := 0; i < s.cfg.Dim; i++ {
			rk[3+i] += d * diff[i]
		}
	}
	return rk
}

// rkStage advances one particle through the current stage of a step of size
// h. Intermediate stages write the next evaluation point into Eval and fold
// the weighted derivative into Accum; the final stage applies the summed
// update to State.
func (s *Sim) rkStage(p *model.Particle, h float64) {
	stage, order := s.stage, s.cfg.Order
	tab := rkTableaux[order-1]

	var rk [6]float64
	if stage == 0 {
		rk = s.rhs(p.State)
	} else {
		rk = s.rhs(p.Eval)
	}

	if stage+1 < order {
		d := h * tab.b[stage]
		for i := 0; i < 6; i++ {
			p.Eval[i] = p.State[i] + d*rk[i]
		}
	}

	d := tab.g[stage]
	switch {
	case stage == 0 && order > 1:
		for i := 0; i < 6; i++ {
			p.Accum[i] = d * rk[i]
		}
	case stage == 0:
		for i := 0; i < 6; i++ {
			p.State[i] += h * d * rk[i]
		}
	case stage+1 < order:
		for i := 0; i < 6; i++ {
			p.Accum[i] += d * rk[i]
		}
	default:
		for i := 0; i < 6; i++ {
			p.State[i] += h * (p.Accum[i] + d*rk[i])
		}
	}
}

// integrateStage runs the current stage for every local particle.
func (s *Sim) integrateStage(h float64) {
	for i := 0; i < s.store.Len(); i++ {
		s.rkStage(s.store.At(i), h)
	}
}
