package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/forest"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/observability"
	"github.com/signalsfoundry/particle-mesh-simulator/model"
	"github.com/signalsfoundry/particle-mesh-simulator/store"
	"github.com/signalsfoundry/particle-mesh-simulator/timectrl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sim is one rank's view of the simulation. All ranks construct it with the
// same configuration and drive it in lock step through Run.
type Sim struct {
	cfg     Config
	comm    *comm.Comm
	log     logging.Logger
	metrics *observability.SimCollector

	planets []model.Planet
	density DensityFunc

	fst   *forest.Forest[model.LeafData]
	store *store.ParticleStore

	// globalDensity is the integral of the seeding density over the domain.
	globalDensity float64
	// globalNum is the current global particle count, globalLost the
	// cumulative number of particles that left the domain.
	globalNum  int64
	globalLost int64

	// stage is the current Runge-Kutta stage, 0 <= stage < cfg.Order.
	stage int

	// found classifies every particle after locate: foundLost, a remote
	// rank, or size+leafIdx for a local leaf.
	found []int
	// iremain lists the store indices of particles staying local, grouped
	// by leaf in Morton order.
	iremain []int
	// arrivals is the flat coordinate buffer of particles received from
	// other ranks, three doubles each.
	arrivals []float64
}

// New validates the configuration and prepares a rank's simulation state.
func New(cfg Config, sc Scenario, c *comm.Comm, log logging.Logger, metrics *observability.SimCollector) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Sim{
		cfg:     cfg,
		comm:    c,
		log:     logging.ForRank(log, c.Rank()),
		metrics: metrics,
		planets: sc.planetModels(),
		density: GaussianDensity(cfg.Dim, sc.Density.Sigma, sc.Density.Center),
		store:   store.New(),
	}, nil
}

// GlobalParticles returns the current global particle count.
func (s *Sim) GlobalParticles() int64 { return s.globalNum }

// GlobalLost returns the cumulative global count of particles that left the
// domain.
func (s *Sim) GlobalLost() int64 { return s.globalLost }

// Run executes the whole simulation on this rank: mesh bootstrap, particle
// seeding, and the step loop. Every rank of the cluster must call Run with
// identical parameters.
func (s *Sim) Run(ctx context.Context) error {
	rank := s.comm.Rank()
	tracer := otel.Tracer("particle-mesh-simulator/core")
	ctx, span := tracer.Start(ctx, "simulation",
		trace.WithAttributes(attribute.Int("rank", rank)))
	defer span.End()

	s.Bootstrap(ctx)
	s.SeedParticles(ctx)

	clock := timectrl.NewStepClock(s.cfg.Deltat, s.cfg.FinalTime)
	clock.AddListener(func(st timectrl.Step) {
		s.metrics.SetRankState(rank, s.store.Len(), s.fst.NumLocal(), st.End)
	})

	for {
		step, ok := clock.Next()
		if !ok {
			break
		}
		stepCtx, stepSpan := tracer.Start(ctx, "step", trace.WithAttributes(
			attribute.Int("step", step.Index),
			attribute.Float64("time", step.Time),
			attribute.Float64("dt", step.Dt),
		))
		s.log.Info(stepCtx, "time step",
			logging.Int("step", step.Index),
			logging.Float64("time", step.Time),
			logging.Float64("dt", step.Dt),
		)
		for s.stage = 0; s.stage < s.cfg.Order; s.stage++ {
			begin := time.Now()
			s.integrateStage(step.Dt)
			s.locate()
			remain, sent, lost := s.route(stepCtx)
			s.adapt()
			s.regather()
			s.rebalance()
			s.metrics.RecordStage(rank, remain, sent, lost, time.Since(begin))
		}
		stepSpan.End()
		clock.Complete(step)
	}

	s.log.Info(ctx, "simulation finished",
		logging.Int("steps", clock.Steps()),
		logging.Float64("time", clock.Now()),
		logging.Int64("particles", s.globalNum),
		logging.Int64("lost", s.globalLost),
	)
	return nil
}
