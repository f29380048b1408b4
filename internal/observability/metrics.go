// Package observability provides Prometheus metrics, OpenTelemetry tracing
// and slog setup for the environment server.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes recorded by QueryFinished.
const (
	OutcomeAnswered = "answered"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors exported on /metrics.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
type Metrics struct {
	// BatchCounter counts GetObservations batches.
	// Labels: error_code (NO_ERROR|NO_QUERIES|EMPTY_QUESTION|SCRAPE_FAILED|CANCELED)
	BatchCounter *prometheus.CounterVec

	// QueryCounter counts individual queries.
	// Labels: outcome (answered|failed|rejected)
	QueryCounter *prometheus.CounterVec

	// AnswerDuration measures Answerer latency in seconds.
	// Labels: backend
	AnswerDuration *prometheus.HistogramVec

	// QueriesInFlight is the number of Answerer calls currently running.
	QueriesInFlight prometheus.Gauge

	// BatchSize observes the number of queries per batch.
	BatchSize prometheus.Histogram

	// RPCCounter counts gRPC and HTTP requests handled by the front ends.
	// Labels: transport (grpc|http), method, code
	RPCCounter *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaenv_batches_total",
				Help: "Total number of observation batches by result code",
			},
			[]string{"error_code"},
		),

		QueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaenv_queries_total",
				Help: "Total number of queries by outcome",
			},
			[]string{"outcome"},
		),

		AnswerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qaenv_answer_duration_seconds",
				Help:    "Duration of answer backend calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),

		QueriesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qaenv_queries_in_flight",
				Help: "Current number of answer backend calls in progress",
			},
		),

		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qaenv_batch_size",
				Help:    "Number of queries per batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
		),

		RPCCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaenv_requests_total",
				Help: "Total number of front-end requests by transport, method and status code",
			},
			[]string{"transport", "method", "code"},
		),
	}
}

// BatchFinished records the result code of one batch.
func (m *Metrics) BatchFinished(code string) {
	if m == nil {
		return
	}
	m.BatchCounter.WithLabelValues(code).Inc()
}

// BatchStarted records the size of an accepted batch.
func (m *Metrics) BatchStarted(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// QueryStarted marks one Answerer call in flight and returns a function that
// records its outcome and latency.
func (m *Metrics) QueryStarted(backend string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.QueriesInFlight.Inc()
	return func(outcome string) {
		m.QueriesInFlight.Dec()
		m.AnswerDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		m.QueryCounter.WithLabelValues(outcome).Inc()
	}
}

// QueryRejected counts queries rejected before dispatch.
func (m *Metrics) QueryRejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.QueryCounter.WithLabelValues(OutcomeRejected).Add(float64(n))
}

// RequestHandled counts one front-end request.
func (m *Metrics) RequestHandled(transport, method, code string) {
	if m == nil {
		return
	}
	m.RPCCounter.WithLabelValues(transport, method, code).Inc()
}
