package core

import (
	"context"
	"math"
	"math/rand"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/forest"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

// Bootstrap builds the initial mesh: a uniform forest at MinLevel refined
// cycle by cycle until no leaf is expected to hold more than ElemParticles
// particles, repartitioning after every cycle. The per-leaf density
// integrals of the final cycle stay in the leaf payloads for seeding.
func (s *Sim) Bootstrap(ctx context.Context) {
	s.fst = forest.New[model.LeafData](s.comm, s.cfg.Dim, s.cfg.MinLevel)
	maxCycles := s.cfg.MaxLevel - s.cfg.MinLevel

	for cycle := 0; ; cycle++ {
		localSum, maxDensity, maxLevel := 0., 0., 0.
		leaves := s.fst.Leaves()
		for i := range leaves {
			lo, _, d := s.fst.Bounds(&leaves[i])
			dens := s.integrateDensity(lo, d)
			leaves[i].Data.Density = dens
			localSum += dens
			maxDensity = math.Max(maxDensity, dens)
			maxLevel = math.Max(maxLevel, float64(leaves[i].Level))
		}

		sum := []float64{localSum}
		s.comm.AllreduceSum(sum)
		s.globalDensity = sum[0]

		peak := []float64{maxDensity, maxLevel}
		s.comm.AllreduceMax(peak)
		peakCount := math.Round(peak[0] * s.cfg.GlobalParticles / s.globalDensity)
		s.log.Info(ctx, "density cycle",
			logging.Int("cycle", cycle),
			logging.Float64("global_density", s.globalDensity),
			logging.Float64("peak_particles", peakCount),
			logging.Float64("peak_level", peak[1]),
		)

		if cycle >= maxCycles || peakCount <= s.cfg.ElemParticles {
			break
		}

		before := s.fst.GlobalCount()
		s.fst.Refine(s.cfg.MaxLevel, func(q *forest.Quadrant[model.LeafData]) bool {
			expected := math.Round(q.Data.Density * s.cfg.GlobalParticles / s.globalDensity)
			return expected > s.cfg.ElemParticles
		}, nil)
		if s.fst.GlobalCount() == before {
			// The peak count check above guarantees at least one split.
			panic("core: bootstrap refinement stalled")
		}
		s.fst.Partition()
	}
}

// SeedParticles draws the initial particles leaf by leaf: each leaf receives
// its share of the global count proportional to its density integral, with
// positions drawn uniformly inside the leaf from a generator seeded by the
// leaf's lower corner. Seeding is therefore reproducible regardless of how
// the mesh is partitioned.
func (s *Sim) SeedParticles(ctx context.Context) {
	var lpnum int64
	leaves := s.fst.Leaves()
	for i := range leaves {
		lo, _, d := s.fst.Bounds(&leaves[i])
		n := int(math.Round(leaves[i].Data.Density / s.globalDensity * s.cfg.GlobalParticles))
		parts := s.store.PushCount(n)
		rng := rand.New(rand.NewSource(cornerSeed(lo)))
		for p := range parts {
			for j := 0; j < s.cfg.Dim; j++ {
				parts[p].State[j] = lo[j] + rng.Float64()*d[j]
			}
		}
		lpnum += int64(n)
		leaves[i].Data.End = lpnum
		leaves[i].Data.Remain = 0
		leaves[i].Data.Receive = 0
	}

	counts := []int64{lpnum}
	s.comm.AllreduceSumInt64(counts)
	s.globalNum = counts[0]
	s.globalLost = 0
	s.log.Info(ctx, "seeded particles",
		logging.Int("local", s.store.Len()),
		logging.Int64("global", s.globalNum),
		logging.Float64("target", s.cfg.GlobalParticles),
	)
}

// cornerSeed derives a deterministic seed from a leaf's lower corner, using
// ten bits per coordinate.
func cornerSeed(lo [3]float64) int64 {
	u := uint32(lo[2]*(1<<10))<<20 +
		uint32(lo[1]*(1<<10))<<10 +
		uint32(lo[0]*(1<<10))
	return int64(u)
}
