package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "daredevil"

// Metrics holds the Prometheus collectors for the response pipeline.
//
// Each instance carries its own registry, so Handler() serves exactly
// these collectors plus the standard Go runtime metrics. All operations
// are thread-safe via Prometheus's internal locking.
type Metrics struct {
	registry *prometheus.Registry

	// QueriesTotal counts queries entering the pipeline.
	// Labels: source (telegram, http, websocket, tui)
	QueriesTotal *prometheus.CounterVec

	// ResponsesTotal counts responses by resolution method.
	// Labels: method (rag, rag_web, web, llm_only, clarification, fallback variants)
	ResponsesTotal *prometheus.CounterVec

	// FallbacksTotal counts degraded responses by the stage that failed.
	FallbacksTotal *prometheus.CounterVec

	// RateLimitedTotal counts queries rejected by the per-session limiter.
	RateLimitedTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage, status (success, error)
	StageDurationSeconds *prometheus.HistogramVec

	// RequestDurationSeconds measures end-to-end pipeline latency.
	RequestDurationSeconds prometheus.Histogram

	// BreakerOpen is 1 while a service's circuit is open, 0 otherwise.
	BreakerOpen *prometheus.GaugeVec
}

// NewMetrics creates and registers the pipeline collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queries_total",
				Help:      "Total queries entering the pipeline by source",
			},
			[]string{"source"},
		),

		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "responses_total",
				Help:      "Total responses by resolution method",
			},
			[]string{"method"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallbacks_total",
				Help:      "Total degraded responses by failing stage",
			},
			[]string{"stage"},
		),

		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_total",
				Help:      "Total queries rejected by the per-session rate limiter",
			},
			[]string{"source"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"stage", "status"},
		),

		RequestDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end pipeline latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45},
			},
		),

		BreakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "breaker_open",
				Help:      "Whether a service circuit breaker is open (1) or closed (0)",
			},
			[]string{"service"},
		),
	}
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery records a query entering the pipeline.
func (m *Metrics) RecordQuery(source string) {
	m.QueriesTotal.WithLabelValues(source).Inc()
}

// RecordResponse records a completed response and its total latency.
func (m *Metrics) RecordResponse(method string, seconds float64) {
	m.ResponsesTotal.WithLabelValues(method).Inc()
	m.RequestDurationSeconds.Observe(seconds)
}

// RecordStage records one pipeline stage's outcome and latency.
func (m *Metrics) RecordStage(stage string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StageDurationSeconds.WithLabelValues(stage, status).Observe(seconds)
}

// RecordFallback records a degraded response.
func (m *Metrics) RecordFallback(stage string) {
	m.FallbacksTotal.WithLabelValues(stage).Inc()
}

// RecordRateLimited records a limiter rejection.
func (m *Metrics) RecordRateLimited(source string) {
	m.RateLimitedTotal.WithLabelValues(source).Inc()
}

// SetBreakerOpen updates the breaker gauge for a service.
func (m *Metrics) SetBreakerOpen(service string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.BreakerOpen.WithLabelValues(service).Set(v)
}
