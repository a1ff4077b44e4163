// Package metrics defines the Prometheus collectors the server exports on
// /metrics.
//
// Collectors are registered on an explicit registry rather than the global
// default so tests can build as many Metrics values as they like without
// "duplicate metrics collector registration" panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gifteo"

// Metrics groups every collector the application updates.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRequests counts finished requests.
	// Labels: method, route (chi pattern, not the raw path), status.
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration observes request latency in seconds.
	HTTPDuration *prometheus.HistogramVec

	// Notifications counts reminder emails.
	// Labels: job (personal, global), outcome (sent, failed, skipped).
	Notifications *prometheus.CounterVec
	// JobRuns counts scheduler job executions.
	// Labels: job, outcome (ok, error, overlap).
	JobRuns *prometheus.CounterVec

	// Scrapes counts product-metadata extractions.
	// Labels: outcome (ok, error).
	Scrapes *prometheus.CounterVec

	// Claims counts claim attempts. Labels: outcome.
	Claims *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Reminder emails by job and outcome.",
		}, []string{"job", "outcome"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "job_runs_total",
			Help:      "Scheduler job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		Scrapes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "extractions_total",
			Help:      "Product-metadata extractions by outcome.",
		}, []string{"outcome"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "items",
			Name:      "claims_total",
			Help:      "Item claim attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
