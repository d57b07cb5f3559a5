package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordStageUpdatesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.RecordStage(2, 90, 8, 2, 3*time.Millisecond)
	collector.RecordStage(2, 80, 15, 5, 4*time.Millisecond)

	if got := testutil.ToFloat64(collector.ParticlesRemaining.WithLabelValues("2")); got != 170 {
		t.Fatalf("sim_particles_remaining_total = %v, want 170", got)
	}
	if got := testutil.ToFloat64(collector.ParticlesSent.WithLabelValues("2")); got != 23 {
		t.Fatalf("sim_particles_sent_total = %v, want 23", got)
	}
	if got := testutil.ToFloat64(collector.ParticlesLost.WithLabelValues("2")); got != 7 {
		t.Fatalf("sim_particles_lost_total = %v, want 7", got)
	}
	if count := histogramSampleCount(t, reg, "sim_stage_duration_seconds"); count != 2 {
		t.Fatalf("sim_stage_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestSetRankStateUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.SetRankState(0, 1200, 64, 0.25)
	collector.SetRankState(0, 1180, 70, 0.5)

	if got := testutil.ToFloat64(collector.LocalParticles.WithLabelValues("0")); got != 1180 {
		t.Fatalf("sim_local_particles = %v, want 1180", got)
	}
	if got := testutil.ToFloat64(collector.LocalLeaves.WithLabelValues("0")); got != 70 {
		t.Fatalf("sim_local_leaves = %v, want 70", got)
	}
	if got := testutil.ToFloat64(collector.SimTime.WithLabelValues("0")); got != 0.5 {
		t.Fatalf("sim_time_seconds = %v, want 0.5", got)
	}
}

func TestNewSimCollectorReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector on populated registry: %v", err)
	}
	if first.ParticlesSent != second.ParticlesSent {
		t.Fatalf("expected second collector to reuse registered counter vec")
	}
	if first.StageDurations != second.StageDurations {
		t.Fatalf("expected second collector to reuse registered histogram")
	}
}

func TestMetricsHandlerExposesSimulationSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.RecordStage(1, 50, 3, 1, time.Millisecond)
	collector.SetRankState(1, 53, 16, 0.1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_particles_remaining_total",
		"sim_particles_sent_total",
		"sim_particles_lost_total",
		"sim_local_particles",
		"sim_local_leaves",
		"sim_time_seconds",
		"sim_stage_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestCountersCarryRankLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.RecordStage(3, 10, 2, 0, time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != "sim_particles_sent_total" {
			continue
		}
		for _, m := range mf.Metric {
			if !matchLabels(m.GetLabel(), map[string]string{"rank": "3"}) {
				t.Fatalf("sim_particles_sent_total labels = %v, want rank=3", m.GetLabel())
			}
		}
		return
	}
	t.Fatalf("sim_particles_sent_total not gathered")
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
