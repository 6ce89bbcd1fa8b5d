package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Perimeter metrics
var (
	// Gate metrics
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perimeter_gate_decisions_total",
			Help: "Total number of gate decisions by outcome",
		},
		[]string{"decision"}, // allow, bypass, redirect, disabled
	)

	GatewaySubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perimeter_gateway_submissions_total",
			Help: "Total number of gateway form submissions by result",
		},
		[]string{"result"},
	)

	UsageRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perimeter_usage_records_total",
			Help: "Total number of token usage records written",
		},
		[]string{"source"}, // form, header, query
	)

	// Token lookup metrics
	TokenLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perimeter_token_lookups_total",
			Help: "Total number of token lookups by where they were answered",
		},
		[]string{"source"}, // cache, store, miss
	)

	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perimeter_cache_errors_total",
			Help: "Total number of token cache operation failures",
		},
		[]string{"operation"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perimeter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
