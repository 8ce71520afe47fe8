package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to the FHIR service.
	FHIRRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhir_api_requests_total",
			Help: "Total number of FHIR API requests made (by resource, method and status).",
		},
		[]string{"resource", "method", "status"},
	)

	// Measures duration of outbound FHIR calls.
	FHIRRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fhir_api_request_duration_seconds",
			Help:    "Duration of FHIR API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"resource", "method"},
	)

	// Tracks token exchanges against the identity provider.
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_exchanges_total",
			Help: "Total number of client-credentials token exchanges (by outcome).",
		},
		[]string{"outcome"},
	)

	TokenExchangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "token_exchange_duration_seconds",
			Help:    "Duration of token exchanges in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)

	AuditPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_publish_errors_total",
			Help: "Number of audit event publish failures.",
		},
		[]string{"subject"},
	)
)

// ObserveDuration records the time since start on the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case prometheus.Histogram:
		metric.Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncFHIRRequest(resource, method, status string) {
	FHIRRequestsTotal.WithLabelValues(resource, method, status).Inc()
}

func IncTokenExchange(outcome string) {
	TokenExchangesTotal.WithLabelValues(outcome).Inc()
}
