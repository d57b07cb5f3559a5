package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/signalsfoundry/particle-mesh-simulator/core"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/observability"
)

func main() {
	ranks := flag.Int("ranks", 2, "Number of cooperating ranks")
	dim := flag.Int("dim", 3, "Spatial dimension, 2 or 3")
	minLevel := flag.Int("minlevel", 2, "Uniform refinement level of the initial mesh")
	maxLevel := flag.Int("maxlevel", 8, "Highest refinement level")
	order := flag.Int("rkorder", 1, "Order of the Runge-Kutta method")
	particles := flag.Float64("particles", 1e3, "Global number of particles")
	perElem := flag.Float64("pperelem", 3, "Targeted number of particles per element")
	deltat := flag.Float64("deltat", 1e-1, "Time step size")
	finalTime := flag.Float64("finaltime", 1, "Final time of the simulation")
	scenarioPath := flag.String("scenario", "", "Path to a JSON scenario file; empty uses the built-in two-planet setup")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	cfg := core.Config{
		Dim:             *dim,
		MinLevel:        *minLevel,
		MaxLevel:        *maxLevel,
		Order:           *order,
		GlobalParticles: *particles,
		ElemParticles:   *perElem,
		Deltat:          *deltat,
		FinalTime:       *finalTime,
	}

	scenario := core.DefaultScenario(*dim)
	if *scenarioPath != "" {
		scenario, err = core.LoadScenario(*scenarioPath, *dim)
		if err != nil {
			log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
			os.Exit(1)
		}
	}

	log.Info(ctx, "starting simulation",
		logging.Int("ranks", *ranks),
		logging.Int("dim", cfg.Dim),
		logging.Int("rkorder", cfg.Order),
		logging.Float64("particles", cfg.GlobalParticles),
	)

	err = comm.RunCluster(*ranks, func(c *comm.Comm) error {
		sim, err := core.New(cfg, scenario, c, log, collector)
		if err != nil {
			return err
		}
		return sim.Run(ctx)
	})
	if err != nil {
		log.Error(ctx, "simulation failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	observability.ShutdownWithTimeout(shutdownCtx, shutdownTracing, log)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
