package core

import (
	"math"
	"testing"
)

func TestIntegrateDensityUniform3D(t *testing.T) {
	s := &Sim{
		cfg:     Config{Dim: 3},
		density: func(x, y, z float64) float64 { return 2.5 },
	}
	d := [3]float64{.25, .25, .25}
	got := s.integrateDensity([3]float64{.25, .5, 0}, d)
	want := 2.5 * d[0] * d[1] * d[2]
	if math.Abs(got-want) > 1e-14 {
		t.Fatalf("uniform 3D integral = %v, want %v", got, want)
	}
}

func TestIntegrateDensityUniform2D(t *testing.T) {
	s := &Sim{
		cfg:     Config{Dim: 2},
		density: func(x, y, z float64) float64 { return 4 },
	}
	d := [3]float64{.5, .25, 0}
	got := s.integrateDensity([3]float64{0, .75, 0}, d)
	want := 4 * d[0] * d[1]
	if math.Abs(got-want) > 1e-14 {
		t.Fatalf("uniform 2D integral = %v, want %v", got, want)
	}
}

func TestGaussianDensityPeakAndSymmetry(t *testing.T) {
	center := [3]float64{.3, .4, .5}
	f := GaussianDensity(3, .1, center)

	peak := f(center[0], center[1], center[2])
	want := math.Pow(2*math.Pi*.01, -1.5)
	if math.Abs(peak-want) > 1e-12 {
		t.Fatalf("peak = %v, want %v", peak, want)
	}

	a := f(center[0]+.05, center[1], center[2])
	b := f(center[0]-.05, center[1], center[2])
	if math.Abs(a-b) > 1e-14 {
		t.Fatalf("asymmetric around center: %v vs %v", a, b)
	}
	if a >= peak {
		t.Fatalf("off-center value %v not below peak %v", a, peak)
	}
}

func TestCornerSeedDistinguishesCorners(t *testing.T) {
	a := cornerSeed([3]float64{.25, .5, 0})
	b := cornerSeed([3]float64{.5, .25, 0})
	c := cornerSeed([3]float64{.25, .5, 0})
	if a == b {
		t.Fatalf("corner seeds collide: %d", a)
	}
	if a != c {
		t.Fatalf("corner seed not deterministic: %d vs %d", a, c)
	}
}
