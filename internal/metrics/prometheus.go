// Package metrics provides Prometheus metrics for the BESS advisor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Extraction metrics
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_extractions_total",
			Help: "Datasheet extractions by outcome",
		},
		[]string{"status"},
	)

	FieldsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bess_extraction_fields_matched",
			Help:    "Number of specification fields matched per datasheet",
			Buckets: []float64{0, 2, 4, 6, 8, 10, 14, 18, 24},
		},
	)

	EnhancementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_ai_enhancements_total",
			Help: "AI-assisted extraction attempts by outcome",
		},
		[]string{"status"},
	)

	// Recommendation metrics
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_recommendations_total",
			Help: "Recommendation requests by outcome",
		},
		[]string{"status"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bess_recommendation_duration_seconds",
			Help:    "Time taken to score and rank the catalog",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	CandidatesEvaluated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bess_recommendation_candidates",
			Help:    "Catalog rows scored per recommendation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Sizing metrics
	SizingFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_sizing_findings_total",
			Help: "Sizing findings emitted by type",
		},
		[]string{"type"},
	)

	// Chat and LLM metrics
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_chat_turns_total",
			Help: "Chat turns by outcome",
		},
		[]string{"status"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_llm_requests_total",
			Help: "Requests sent to the language model by client and status",
		},
		[]string{"client", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bess_llm_request_duration_seconds",
			Help:    "Language model request latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"client"},
	)
)

// RecordLLMRequest records one model call.
func RecordLLMRequest(client, status string, duration time.Duration) {
	LLMRequestsTotal.WithLabelValues(client, status).Inc()
	LLMRequestDuration.WithLabelValues(client).Observe(duration.Seconds())
}

// Handler returns the HTTP handler that serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
