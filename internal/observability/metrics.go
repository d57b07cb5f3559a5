package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the particle simulation and
// provides a ready-made /metrics handler.
type SimCollector struct {
	gatherer prometheus.Gatherer

	ParticlesRemaining *prometheus.CounterVec
	ParticlesSent      *prometheus.CounterVec
	ParticlesLost      *prometheus.CounterVec

	LocalParticles *prometheus.GaugeVec
	LocalLeaves    *prometheus.GaugeVec
	SimTime        *prometheus.GaugeVec

	StageDurations prometheus.Histogram
}

// NewSimCollector registers simulation Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	remaining := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_particles_remaining_total",
		Help: "Cumulative count of particles that stayed on their owning rank after a stage, labeled by rank.",
	}, []string{"rank"})
	remaining, err := registerCounterVec(reg, remaining, "sim_particles_remaining_total")
	if err != nil {
		return nil, err
	}

	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_particles_sent_total",
		Help: "Cumulative count of particles shipped to another rank after a stage, labeled by sending rank.",
	}, []string{"rank"})
	sent, err = registerCounterVec(reg, sent, "sim_particles_sent_total")
	if err != nil {
		return nil, err
	}

	lost := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_particles_lost_total",
		Help: "Cumulative count of particles that left the unit domain, labeled by rank.",
	}, []string{"rank"})
	lost, err = registerCounterVec(reg, lost, "sim_particles_lost_total")
	if err != nil {
		return nil, err
	}

	localParticles := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_local_particles",
		Help: "Current number of particles stored on a rank.",
	}, []string{"rank"})
	localParticles, err = registerGaugeVec(reg, localParticles, "sim_local_particles")
	if err != nil {
		return nil, err
	}

	localLeaves := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_local_leaves",
		Help: "Current number of mesh leaves owned by a rank.",
	}, []string{"rank"})
	localLeaves, err = registerGaugeVec(reg, localLeaves, "sim_local_leaves")
	if err != nil {
		return nil, err
	}

	simTime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_time_seconds",
		Help: "Simulation time reached by a rank.",
	}, []string{"rank"})
	simTime, err = registerGaugeVec(reg, simTime, "sim_time_seconds")
	if err != nil {
		return nil, err
	}

	stages := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_stage_duration_seconds",
		Help:    "Wall-clock duration of one Runge-Kutta stage in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
	stages, err = registerHistogram(reg, stages, "sim_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		ParticlesRemaining: remaining,
		ParticlesSent:      sent,
		ParticlesLost:      lost,
		LocalParticles:     localParticles,
		LocalLeaves:        localLeaves,
		SimTime:            simTime,
		StageDurations:     stages,
	}, nil
}

// RecordStage folds the relocation balance of one finished stage into the
// counters and histogram. It is safe to call on a nil collector.
func (c *SimCollector) RecordStage(rank int, remain, sent, lost int, elapsed time.Duration) {
	if c == nil {
		return
	}
	label := fmt.Sprintf("%d", rank)
	if c.ParticlesRemaining != nil {
		c.ParticlesRemaining.WithLabelValues(label).Add(float64(remain))
	}
	if c.ParticlesSent != nil {
		c.ParticlesSent.WithLabelValues(label).Add(float64(sent))
	}
	if c.ParticlesLost != nil {
		c.ParticlesLost.WithLabelValues(label).Add(float64(lost))
	}
	if c.StageDurations != nil {
		c.StageDurations.Observe(elapsed.Seconds())
	}
}

// SetRankState updates the per-rank gauges after a step completes.
func (c *SimCollector) SetRankState(rank int, particles, leaves int, simTime float64) {
	if c == nil {
		return
	}
	label := fmt.Sprintf("%d", rank)
	if c.LocalParticles != nil {
		c.LocalParticles.WithLabelValues(label).Set(float64(particles))
	}
	if c.LocalLeaves != nil {
		c.LocalLeaves.WithLabelValues(label).Set(float64(leaves))
	}
	if c.SimTime != nil {
		c.SimTime.WithLabelValues(label).Set(simTime)
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
