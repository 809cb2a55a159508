// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// estimatesTotal counts estimates by status
	estimatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyprice_estimates_total",
		Help: "Total estimates by status",
	}, []string{"status"})

	// inferenceDuration tracks inference latency
	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuzzyprice_inference_duration_seconds",
		Help:    "Fuzzy inference duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
	})

	// cacheLookups counts estimate cache lookups by result
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyprice_cache_lookups_total",
		Help: "Estimate cache lookups by result",
	}, []string{"result"})

	// modelReloads counts model loads by outcome
	modelReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyprice_model_reloads_total",
		Help: "Model loads by outcome",
	}, []string{"outcome"})

	// asyncMessages counts messages handled by the async worker
	asyncMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyprice_async_messages_total",
		Help: "Async estimate messages by result",
	}, []string{"result"})
)

// ObserveEstimate records one estimate and, when it ran inference, its duration.
func ObserveEstimate(status string, inference time.Duration) {
	estimatesTotal.WithLabelValues(status).Inc()
	if inference > 0 {
		inferenceDuration.Observe(inference.Seconds())
	}
}

// CacheLookup records a cache hit or miss.
func CacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// ModelReload records a model load attempt.
func ModelReload(err error) {
	if err != nil {
		modelReloads.WithLabelValues("error").Inc()
		return
	}
	modelReloads.WithLabelValues("ok").Inc()
}

// AsyncMessage records one async message; result is "completed", "failed" or "dropped".
func AsyncMessage(result string) {
	asyncMessages.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
