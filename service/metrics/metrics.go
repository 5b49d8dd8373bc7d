package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Engine metrics
	submissionAttemptsTotal *prometheus.CounterVec
	tradesTotal             *prometheus.CounterVec
	tradeDuration           *prometheus.HistogramVec
	feeSettlementsTotal     *prometheus.CounterVec
	withdrawalsTotal        *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"method"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retries by method and reason",
			},
			[]string{"method", "reason"},
		),
		submissionAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_submission_attempts_total",
				Help: "Total number of transaction submission attempts by outcome",
			},
			[]string{"outcome"},
		),
		tradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_trades_total",
				Help: "Total number of trades by action and status",
			},
			[]string{"action", "status"},
		),
		tradeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_trade_duration_seconds",
				Help:    "End-to-end duration of trade operations in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		feeSettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_fee_settlements_total",
				Help: "Total number of fee settlement transactions by status",
			},
			[]string{"status"},
		),
		withdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_withdrawals_total",
				Help: "Total number of withdrawals by status",
			},
			[]string{"status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method, and status",
			},
			[]string{"handler", "method", "status"},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published by subject prefix and status",
			},
			[]string{"subject", "status"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordRateLimitHit records a 429 response from the RPC node.
func (m *Metrics) RecordRateLimitHit(method string) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitHits.WithLabelValues(method).Inc()
}

// RecordRPCRetry records a retried RPC call.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordSubmissionAttempt records one submission attempt outcome
// (success, duplicate, transient, terminal, exhausted).
func (m *Metrics) RecordSubmissionAttempt(outcome string) {
	if m == nil {
		return
	}
	m.submissionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTrade records a completed trade operation.
func (m *Metrics) RecordTrade(action, status string, duration float64) {
	if m == nil {
		return
	}
	m.tradesTotal.WithLabelValues(action, status).Inc()
	m.tradeDuration.WithLabelValues(action).Observe(duration)
}

// RecordFeeSettlement records a fee settlement outcome (settled, failed, skipped).
func (m *Metrics) RecordFeeSettlement(status string) {
	if m == nil {
		return
	}
	m.feeSettlementsTotal.WithLabelValues(status).Inc()
}

// RecordWithdrawal records a withdrawal outcome.
func (m *Metrics) RecordWithdrawal(status string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusClass(statusCode)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(duration)
}

// RecordNATSPublish records a NATS publish attempt.
func (m *Metrics) RecordNATSPublish(subject, status string) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
