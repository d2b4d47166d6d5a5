// Package metrics holds the Prometheus collectors for the query pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_query_attempts_total",
			Help: "Natural-language query attempts by final status and query type.",
		},
		[]string{"status", "query_type"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_query_duration_ms",
			Help:    "End-to-end query pipeline latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000},
		},
		[]string{"status"},
	)
	translationConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_translation_confidence",
			Help:    "Computed confidence of translated queries.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"query_type"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_llm_requests_total",
			Help: "Translation LLM requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	heldForConfirmationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ekaya_query_held_for_confirmation_total",
			Help: "Translations not executed because confidence was below the threshold.",
		},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_generated_query_rejections_total",
			Help: "Generated queries or API calls refused by the read-only guard.",
		},
		[]string{"query_type"},
	)
)

func init() {
	prometheus.MustRegister(
		queryAttemptsTotal,
		queryDurationMs,
		translationConfidence,
		llmRequestsTotal,
		heldForConfirmationTotal,
		guardRejectionsTotal,
	)
}

// ObserveQuery records one finished pipeline run.
func ObserveQuery(status, queryType string, elapsed time.Duration) {
	if queryType == "" {
		queryType = "NONE"
	}
	queryAttemptsTotal.WithLabelValues(status, queryType).Inc()
	queryDurationMs.WithLabelValues(status).Observe(float64(elapsed.Milliseconds()))
}

func ObserveConfidence(queryType string, confidence float64) {
	translationConfidence.WithLabelValues(queryType).Observe(confidence)
}

// ObserveLLMRequest records a completion call; outcome is "success" or an llm error type.
func ObserveLLMRequest(provider, outcome string) {
	llmRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func IncrementHeldForConfirmation() {
	heldForConfirmationTotal.Inc()
}

func IncrementGuardRejection(queryType string) {
	guardRejectionsTotal.WithLabelValues(queryType).Inc()
}
