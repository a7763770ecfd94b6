package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fixtures/internal/ir"
)

// Metrics holds the resolver's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	executions *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the resolver collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixtures_cache_hits_total",
				Help: "Fixture lookups served from the cache",
			},
			[]string{"entity_type"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixtures_cache_misses_total",
				Help: "Fixture lookups that required materialization",
			},
			[]string{"entity_type"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixtures_executions_total",
				Help: "Generation expressions executed and cached",
			},
			[]string{"entity_type"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixtures_failures_total",
				Help: "Failed fixture lookups by error code",
			},
			[]string{"code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fixtures_generation_duration_seconds",
				Help:    "Time spent rendering and executing generation expressions",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"entity_type"},
		),
	}

	collectors := []prometheus.Collector{m.hits, m.misses, m.executions, m.failures, m.duration}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) hit(key ir.FixtureKey) {
	if m != nil {
		m.hits.WithLabelValues(key.EntityType).Inc()
	}
}

func (m *Metrics) miss(key ir.FixtureKey) {
	if m != nil {
		m.misses.WithLabelValues(key.EntityType).Inc()
	}
}

func (m *Metrics) executed(key ir.FixtureKey, elapsed time.Duration) {
	if m != nil {
		m.executions.WithLabelValues(key.EntityType).Inc()
		m.duration.WithLabelValues(key.EntityType).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) failed(err error) {
	if m == nil {
		return
	}
	code := string(ir.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	m.failures.WithLabelValues(code).Inc()
}
