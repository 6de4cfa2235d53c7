// Package observability exposes Prometheus metrics for split sessions.
//
// Metrics live on their own registry so tests and multiple servers in one
// process never collide on the global default registerer.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tablesplit"

// Result labels
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds the collectors recorded by the split service
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted      prometheus.Counter
	SessionsActive       prometheus.Gauge
	SessionsExpired      prometheus.Counter
	LedgerOps            *prometheus.CounterVec
	Finalizations        *prometheus.CounterVec
	CommitDuration       prometheus.Histogram
	EventPublishFailures prometheus.Counter
}

// NewMetrics creates and registers all collectors, including the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Split sessions opened.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Split sessions currently held in memory.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Split sessions dropped by the idle cleanup loop.",
		}),
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger mutations by operation and result.",
		}, []string{"op", "result"}),
		Finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Finalize attempts by result.",
		}, []string{"result"}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent committing a split to storage.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Split events that could not be published.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.SessionsActive,
		m.SessionsExpired,
		m.LedgerOps,
		m.Finalizations,
		m.CommitDuration,
		m.EventPublishFailures,
	)
	return m
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLedgerOp counts one ledger mutation. A nil receiver is a no-op.
func (m *Metrics) ObserveLedgerOp(op string, err error) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(op, resultOf(err)).Inc()
}

// ObserveFinalize counts one finalize attempt
func (m *Metrics) ObserveFinalize(result string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(result).Inc()
}

// ObserveCommit records how long a storage commit took
func (m *Metrics) ObserveCommit(start time.Time) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(time.Since(start).Seconds())
}

// SessionStarted records a new session
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded records a session leaving memory; expired marks idle cleanup
func (m *Metrics) SessionEnded(expired bool) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	if expired {
		m.SessionsExpired.Inc()
	}
}

// PublishFailed counts a failed event publish
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.EventPublishFailures.Inc()
}

func resultOf(err error) string {
	if err == nil {
		return ResultOK
	}
	return ResultRejected
}
