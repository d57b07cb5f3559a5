package core

import "math"

// DensityFunc is a seeding density over the unit domain. It needs no
// normalization; seeding works with the ratio of per-leaf integrals to the
// global integral.
type DensityFunc func(x, y, z float64) float64

// GaussianDensity builds an isotropic Gaussian density of width sigma around
// center, normalized for the given dimension.
func GaussianDensity(dim int, sigma float64, center [3]float64) DensityFunc {
	gnorm := math.Pow(2*math.Pi*sigma*sigma, -.5*float64(dim))
	invs2 := 1 / (sigma * sigma)
	return func(x, y, z float64) float64 {
		dx := x - center[0]
		dy := y - center[1]
		dz := z - center[2]
		return gnorm * math.Exp(-.5*(dx*dx+dy*dy+dz*dz)*invs2)
	}
}

// simpson holds the weights of composite Simpson quadrature on three
// equispaced nodes.
var simpson = [3]float64{1. / 6, 2. / 3, 1. / 6}

// integrateDensity evaluates the density integral over one leaf with a
// tensorized Simpson rule on the leaf's lower corner lo and extent d.
func (s *Sim) integrateDensity(lo, d [3]float64) float64 {
	sum := 0.
	kmax := 1
	if s.cfg.Dim == 3 {
		kmax = 3
	}
	for k := 0; k < kmax; k++ {
		wk := 1.
		if s.cfg.Dim == 3 {
			wk = simpson[k] * d[2]
		}
		for j := 0; j < 3; j++ {
			wkj := wk * simpson[j] * d[1]
			for i := 0; i < 3; i++ {
				wkji := wkj * simpson[i] * d[0]
				sum += wkji * s.density(
					lo[0]+.5*float64(i)*d[0],
					lo[1]+.5*float64(j)*d[1],
					lo[2]+.5*float64(k)*d[2],
				)
			}
		}
	}
	return sum
}
