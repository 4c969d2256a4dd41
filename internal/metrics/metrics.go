package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of the ledger service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	validationRejections *prometheus.CounterVec
	transactionsCreated  *prometheus.CounterVec
	balanceQueries       *prometheus.CounterVec

	outboxPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		validationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_validation_rejections_total",
				Help: "Validation failures of candidate transactions, by rule",
			},
			[]string{"rule"},
		),
		transactionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_created_total",
				Help: "Transactions accepted and stored, by type",
			},
			[]string{"type"},
		),
		balanceQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_queries_total",
				Help: "Balance lookups, by where the answer came from",
			},
			[]string{"source"},
		),
		outboxPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_outbox_events_published_total",
				Help: "Outbox events relayed to kafka, by status",
			},
			[]string{"status"},
		),
	}
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

func (m *Metrics) RecordValidationRejection(rule string) {
	if m == nil {
		return
	}
	m.validationRejections.WithLabelValues(rule).Inc()
}

func (m *Metrics) RecordTransactionCreated(txType string) {
	if m == nil {
		return
	}
	m.transactionsCreated.WithLabelValues(txType).Inc()
}

// RecordBalanceQuery records whether a balance was served from "cache" or "store".
func (m *Metrics) RecordBalanceQuery(source string) {
	if m == nil {
		return
	}
	m.balanceQueries.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordOutboxPublish(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.outboxPublished.WithLabelValues(status).Inc()
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
