// Package observability exposes Prometheus metrics and health endpoints
// for the chat service.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tifa_ask_requests_total",
			Help: "Total number of chat requests by response status",
		},
		[]string{"status"},
	)

	askRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tifa_ask_request_duration_seconds",
			Help:    "Chat request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	admissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tifa_admission_rejections_total",
			Help: "Total number of admission-control rejections by reason",
		},
		[]string{"reason"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tifa_cache_lookups_total",
			Help: "Total number of reply cache lookups by result",
		},
		[]string{"result"},
	)

	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tifa_model_calls_total",
			Help: "Total number of upstream model calls by outcome",
		},
		[]string{"outcome"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tifa_alerts_total",
			Help: "Total number of security alerts raised by event type",
		},
		[]string{"event"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all metrics with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			askRequestsTotal,
			askRequestDuration,
			admissionRejectionsTotal,
			cacheLookupsTotal,
			modelCallsTotal,
			alertsTotal,
		)
	})
}

// RecordRequest records a completed chat request.
func RecordRequest(status string, seconds float64) {
	askRequestsTotal.WithLabelValues(status).Inc()
	askRequestDuration.Observe(seconds)
}

// RecordRejection records an admission-control rejection.
func RecordRejection(reason string) {
	admissionRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a cache lookup result ("hit", "miss", or
// "canonical").
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordModelCall records an upstream call outcome ("ok" or "error").
func RecordModelCall(outcome string) {
	modelCallsTotal.WithLabelValues(outcome).Inc()
}

// RecordAlert records a raised security alert.
func RecordAlert(event string) {
	alertsTotal.WithLabelValues(event).Inc()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
