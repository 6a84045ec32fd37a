// Package metrics exposes run progress to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the run metrics on a private registry, so several runs in
// one process never collide.
type Collector struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	active      prometheus.Gauge
	registry    *prometheus.Registry
}

// NewCollector creates and registers the run metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orca_transitions_total",
				Help: "Total number of executed transitions",
			},
			[]string{"action", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orca_transition_duration_seconds",
				Help:    "Directory call latency per transition in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"action"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orca_actors_active",
				Help: "Number of actors currently running",
			},
		),
		registry: registry,
	}

	registry.MustRegister(c.transitions)
	registry.MustRegister(c.duration)
	registry.MustRegister(c.active)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return c
}

// ObserveTransition records one executed transition.
func (c *Collector) ObserveTransition(action, result string, d time.Duration) {
	c.transitions.WithLabelValues(action, result).Inc()
	c.duration.WithLabelValues(action).Observe(d.Seconds())
}

// ActorStarted increments the active actor gauge.
func (c *Collector) ActorStarted() {
	c.active.Inc()
}

// ActorStopped decrements the active actor gauge.
func (c *Collector) ActorStopped() {
	c.active.Dec()
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus metrics handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
