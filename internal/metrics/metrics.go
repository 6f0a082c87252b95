// Package metrics holds the batch counters. They are registered on a private
// registry and exported at the end of a run in the Prometheus text format, for
// a node-exporter textfile collector or for inspection.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "codeowners_scan"

// Metrics is safe for concurrent use. A nil *Metrics discards observations.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	retries        *prometheus.CounterVec
	rateLimitWaits *prometheus.CounterVec
	records        *prometheus.CounterVec
	skipped        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_retries_total",
			Help:      "Retries of transient GitHub API failures by operation.",
		}, []string{"op"}),
		rateLimitWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Rate-limit signals that made workers wait, by kind (primary, secondary).",
		}, []string{"kind"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Output records written by status (present, absent, error).",
		}, []string{"status"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repositories_skipped_total",
			Help:      "Repositories skipped because the output already holds their record.",
		}),
	}
	reg.MustRegister(m.requests, m.retries, m.rateLimitWaits, m.records, m.skipped)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveRateLimitWait(kind string) {
	if m == nil {
		return
	}
	m.rateLimitWaits.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRecord(status string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

// WriteFile writes the current values to path atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
