// Package metrics exposes Prometheus collectors for the confirmation
// coordinator. It observes coordinator transitions and owns the registry
// served by the gateway's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/toolgate/toolgate/internal/confirm"
)

// Metrics implements confirm.Observer and records request/settlement
// counters, the pending gauge, and settlement latency.
type Metrics struct {
	registry *prometheus.Registry

	requests prometheus.Counter
	settled  *prometheus.CounterVec
	pending  prometheus.Gauge
	wait     prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "confirm",
			Name:      "requests_total",
			Help:      "Confirmation requests that created a pending entry.",
		}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "confirm",
			Name:      "settled_total",
			Help:      "Settled confirmations by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "confirm",
			Name:      "pending",
			Help:      "Confirmations currently awaiting a decision.",
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "confirm",
			Name:      "wait_seconds",
			Help:      "Time between request and settlement.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
	m.registry.MustRegister(m.requests, m.settled, m.pending, m.wait)
	return m
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConfirmationRequested implements confirm.Observer.
func (m *Metrics) ConfirmationRequested(_ confirm.Pending) {
	m.requests.Inc()
	m.pending.Inc()
}

// ConfirmationSettled implements confirm.Observer.
func (m *Metrics) ConfirmationSettled(p confirm.Pending, result confirm.Result) {
	m.pending.Dec()
	m.settled.WithLabelValues(string(result)).Inc()
	m.wait.Observe(time.Since(p.RequestedAt).Seconds())
}
