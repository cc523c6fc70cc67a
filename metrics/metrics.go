// Package metrics records link-check counters in a private Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	AttemptsTotal   *prometheus.CounterVec
	LinksTotal      *prometheus.CounterVec
	PostsTotal      *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	InFlight        prometheus.Gauge
}

// New registers all collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrot_attempts_total",
			Help: "Network attempts made, by outcome category.",
		}, []string{"category"}),
		LinksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrot_links_total",
			Help: "Links checked to completion, by final category.",
		}, []string{"category"}),
		PostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrot_posts_fetched_total",
			Help: "Post pages fetched for link extraction, by outcome.",
		}, []string{"outcome"}),
		AttemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkrot_attempt_duration_seconds",
			Help:    "Duration of single network attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkrot_inflight_requests",
			Help: "Network attempts currently in flight.",
		}),
	}
	m.Registry.MustRegister(m.AttemptsTotal, m.LinksTotal, m.PostsTotal, m.AttemptDuration, m.InFlight)
	return m
}

// ObserveAttempt records one finished network attempt.
func (m *Metrics) ObserveAttempt(category string, took time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(category).Inc()
	m.AttemptDuration.Observe(took.Seconds())
}

// ObserveLink records the final category of a checked link.
func (m *Metrics) ObserveLink(category string) {
	if m == nil {
		return
	}
	m.LinksTotal.WithLabelValues(category).Inc()
}

// ObservePost records a post page fetch outcome ("ok" or "failed").
func (m *Metrics) ObservePost(outcome string) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(outcome).Inc()
}

// IncInFlight marks an attempt as started.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// DecInFlight marks an attempt as finished.
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// WriteFile writes the registry in the Prometheus text format, suitable for
// the node_exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
