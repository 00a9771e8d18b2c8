// Package metrics exposes Prometheus collectors for lifecycle transitions, sweeps and audit delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	transitions   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	sweepCases    *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	auditDropped  prometheus.Counter
	auditFailed   prometheus.Counter
	tokenDenied   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "case_transitions_total",
			Help:      "Committed case mutations by audited action.",
		}, []string{"action"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "case_version_conflicts_total",
			Help:      "Optimistic concurrency conflicts by operation.",
		}, []string{"op"}),
		sweepCases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "sweep",
			Name:      "cases_total",
			Help:      "Cases visited by sweeper passes by outcome.",
		}, []string{"pass", "result"}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweeper pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"pass"}),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because the buffer was full.",
		}),
		auditFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "audit",
			Name:      "sink_failures_total",
			Help:      "Audit events the sink failed to append.",
		}),
		tokenDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docflow",
			Name:      "token_lookups_denied_total",
			Help:      "Submitter token lookups refused by reason.",
		}, []string{"reason"}),
	}
}

// Transition counts a committed mutation.
func (m *Metrics) Transition(action string) {
	if m == nil {
		return
	}
	m.transitions.With(prometheus.Labels{"action": action}).Inc()
}

// Conflict counts a version conflict seen by op.
func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.With(prometheus.Labels{"op": op}).Inc()
}

// SweepResult adds n cases with the given outcome (changed, unchanged, failed) to pass.
func (m *Metrics) SweepResult(pass, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweepCases.With(prometheus.Labels{"pass": pass, "result": result}).Add(float64(n))
}

// SweepDuration observes how long a pass took.
func (m *Metrics) SweepDuration(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.With(prometheus.Labels{"pass": pass}).Observe(d.Seconds())
}

// AuditDropped counts an event lost to a full buffer.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// AuditSinkFailure counts an event the sink refused.
func (m *Metrics) AuditSinkFailure() {
	if m == nil {
		return
	}
	m.auditFailed.Inc()
}

// TokenDenied counts a refused submitter lookup.
func (m *Metrics) TokenDenied(reason string) {
	if m == nil {
		return
	}
	m.tokenDenied.With(prometheus.Labels{"reason": reason}).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
