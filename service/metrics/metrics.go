package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Horizon API metrics
	horizonCallsTotal   *prometheus.CounterVec
	horizonCallDuration *prometheus.HistogramVec

	// Faucet metrics
	faucetRequestsTotal *prometheus.CounterVec

	// Payment metrics
	paymentsSubmittedTotal *prometheus.CounterVec
	paymentSubmitDuration  *prometheus.HistogramVec
	balanceRefreshesTotal  *prometheus.CounterVec

	// Wallet agent metrics
	walletAgentCallsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		horizonCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_calls_total",
				Help: "Total number of Horizon API calls by operation and status",
			},
			[]string{"operation", "status", "endpoint"},
		),
		horizonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_call_duration_seconds",
				Help:    "Duration of Horizon API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation", "endpoint"},
		),

		faucetRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "faucet_requests_total",
				Help: "Total number of friendbot funding requests by outcome",
			},
			[]string{"outcome"},
		),

		paymentsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_submitted_total",
				Help: "Total number of payment send attempts by outcome and operation",
			},
			[]string{"outcome", "operation"},
		),
		paymentSubmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_submit_duration_seconds",
				Help:    "End-to-end duration of the payment send procedure in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		balanceRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_refreshes_total",
				Help: "Total number of balance refreshes by status",
			},
			[]string{"status"},
		),

		walletAgentCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_agent_calls_total",
				Help: "Total number of wallet agent calls by operation and status",
			},
			[]string{"operation", "status"},
		),

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
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"stream"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"stream", "event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Horizon metric helpers

// RecordHorizonCall records a Horizon API call with duration.
func (m *Metrics) RecordHorizonCall(operation, status, endpoint string, duration float64) {
	m.horizonCallsTotal.WithLabelValues(operation, status, endpoint).Inc()
	m.horizonCallDuration.WithLabelValues(operation, endpoint).Observe(duration)
}

// RecordFaucetRequest records a friendbot request outcome
// (success, already_funded, or error).
func (m *Metrics) RecordFaucetRequest(outcome string) {
	m.faucetRequestsTotal.WithLabelValues(outcome).Inc()
}

// Payment metric helpers

// RecordPaymentSubmitted records a completed payment send attempt.
// The operation label is "payment" or "create_account".
func (m *Metrics) RecordPaymentSubmitted(outcome, operation string, duration float64) {
	m.paymentsSubmittedTotal.WithLabelValues(outcome, operation).Inc()
	m.paymentSubmitDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordBalanceRefresh records a balance refresh attempt.
func (m *Metrics) RecordBalanceRefresh(status string) {
	m.balanceRefreshesTotal.WithLabelValues(status).Inc()
}

// RecordWalletAgentCall records a wallet agent call.
func (m *Metrics) RecordWalletAgentCall(operation, status string) {
	m.walletAgentCallsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(stream string, delta float64) {
	m.sseActiveConnections.WithLabelValues(stream).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(stream, eventType string) {
	m.sseEventsSent.WithLabelValues(stream, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
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
