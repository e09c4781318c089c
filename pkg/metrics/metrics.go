// Package metrics exposes generation metrics in the Prometheus format.
//
// Collectors are registered on a private registry rather than the global
// default so that several servers (and tests) can coexist in one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/pump"
)

const namespace = "streampump"

// Metrics collects per-generation measurements. It implements pump.Observer.
type Metrics struct {
	registry *prometheus.Registry

	generations *prometheus.CounterVec
	retries     *prometheus.CounterVec
	particles   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var _ pump.Observer = (*Metrics)(nil)

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of generations by termination cause",
		},
		[]string{"dialect", "cause"},
	)

	m.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of upstream connection retries",
		},
		[]string{"dialect"},
	)

	m.particles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "particles_total",
			Help:      "Total number of parsed particles by operation",
		},
		[]string{"dialect", "op"},
	)

	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation duration in seconds, from request to termination",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"dialect"},
	)

	m.registry.MustRegister(
		m.generations,
		m.retries,
		m.particles,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveParticle counts one parsed particle.
func (m *Metrics) ObserveParticle(dialect string, op dispatch.Op) {
	m.particles.WithLabelValues(dialect, string(op)).Inc()
}

// ObserveRetry counts one scheduled retry.
func (m *Metrics) ObserveRetry(dialect string) {
	m.retries.WithLabelValues(dialect).Inc()
}

// ObserveGeneration records a finished generation.
func (m *Metrics) ObserveGeneration(result *pump.Result) {
	m.generations.WithLabelValues(result.Dialect, result.Cause).Inc()
	m.duration.WithLabelValues(result.Dialect).Observe(result.Duration.Seconds())
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
