package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Generation metrics
	GenerationsTotal     *prometheus.CounterVec
	MaterializationTotal *prometheus.CounterVec

	// Ledger metrics
	LedgerOpsTotal       *prometheus.CounterVec
	ReconciliationsTotal *prometheus.CounterVec
	RefundFailuresTotal  prometheus.Counter
}

// New creates a new Metrics instance registered on reg.
// A nil reg registers on the default prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "artboard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Provider metrics
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total number of generation provider calls",
			},
			[]string{"provider", "operation", "outcome"}, // operation: start, poll
		),
		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Generation provider call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),

		// Generation metrics
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "jobs_total",
				Help:      "Generation jobs by final status and error kind",
			},
			[]string{"provider", "status", "error_kind"},
		),
		MaterializationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "materializations_total",
				Help:      "Provider outputs copied into durable storage",
			},
			[]string{"outcome"}, // stored, failed, discarded
		),

		// Ledger metrics
		LedgerOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credits",
				Name:      "ops_total",
				Help:      "Credit ledger balance mutations",
			},
			[]string{"op"}, // debit, refund, reset, demote, grant
		),
		ReconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credits",
				Name:      "reconciliations_total",
				Help:      "Billing system reconciliations by result",
			},
			[]string{"result"}, // renewed, demoted, error
		),
		RefundFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credits",
				Name:      "refund_failures_total",
				Help:      "Refunds owed after a failed job that could not be written",
			},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderCall records one call to a generation provider.
func (m *Metrics) RecordProviderCall(provider, operation, outcome string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordGeneration records a job reaching a reported state.
func (m *Metrics) RecordGeneration(provider, status, errorKind string) {
	m.GenerationsTotal.WithLabelValues(provider, status, errorKind).Inc()
}

// RecordMaterialization records a materialization outcome.
func (m *Metrics) RecordMaterialization(outcome string) {
	m.MaterializationTotal.WithLabelValues(outcome).Inc()
}

// RecordLedgerOp records a balance mutation.
func (m *Metrics) RecordLedgerOp(op string) {
	m.LedgerOpsTotal.WithLabelValues(op).Inc()
}

// RecordReconciliation records a billing reconciliation result.
func (m *Metrics) RecordReconciliation(result string) {
	m.ReconciliationsTotal.WithLabelValues(result).Inc()
}

// RecordRefundFailure raises the financial drift alarm counter.
func (m *Metrics) RecordRefundFailure() {
	m.RefundFailuresTotal.Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
