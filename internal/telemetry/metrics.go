// Package telemetry provides observability primitives for the wizard edge
// gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	BackendDuration  *prometheus.HistogramVec
	BackendErrors    *prometheus.CounterVec
	Escalations      prometheus.Counter
	DispatchTotal    *prometheus.CounterVec
	RateLimitRejects *prometheus.CounterVec
	TokensProcessed  *prometheus.CounterVec
	CloudCostUSD     prometheus.Counter
	SyncRecords      *prometheus.CounterVec
	UsageQueueLength prometheus.Gauge
	BreakerOpen      *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "wizard",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wizard",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "wizard",
			Name:                            "backend_duration_seconds",
			Help:                            "Completion backend call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"backend", "model"}),

		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "backend_errors_total",
			Help:      "Total completion backend errors.",
		}, []string{"backend", "code"}),

		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "escalations_total",
			Help:      "Total local-to-cloud escalations.",
		}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "dispatch_total",
			Help:      "Total command dispatches by winning route.",
		}, []string{"route"}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"tier"}),

		TokensProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "tokens_processed_total",
			Help:      "Total tokens processed.",
		}, []string{"backend", "type"}),

		CloudCostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "cloud_cost_usd_total",
			Help:      "Total estimated cloud spend in USD.",
		}),

		SyncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizard",
			Name:      "sync_records_total",
			Help:      "Total records pulled from sync providers.",
		}, []string{"provider", "status"}),

		UsageQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wizard",
			Name:      "usage_queue_length",
			Help:      "Current number of queued usage records.",
		}),

		BreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wizard",
			Name:      "breaker_open",
			Help:      "1 when the backend circuit breaker is open.",
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.BackendDuration,
		m.BackendErrors,
		m.Escalations,
		m.DispatchTotal,
		m.RateLimitRejects,
		m.TokensProcessed,
		m.CloudCostUSD,
		m.SyncRecords,
		m.UsageQueueLength,
		m.BreakerOpen,
	)

	return m
}
