// Package metrics provides Prometheus metrics for the quiz generation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LLM call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeMalformed = "malformed"
)

var (
	// LLMCalls counts generation and summarization calls by kind and outcome.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls made by the generation engine",
		},
		[]string{"kind", "outcome"},
	)

	// LLMCallDuration measures LLM call latency.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learnhub",
			Name:      "llm_call_duration_seconds",
			Help:      "Duration of LLM calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"kind"},
	)

	QuestionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Name:      "questions_generated_total",
			Help:      "Total number of valid questions returned by the engine",
		},
		[]string{"source"},
	)

	// EngineAttempts observes how many partitioning rounds a request needed.
	EngineAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learnhub",
			Name:      "engine_attempts",
			Help:      "Number of attempts the quota loop used per request",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"source"},
	)

	DegradedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Name:      "degraded_batches_total",
			Help:      "Requests that ended with fewer questions than requested",
		},
		[]string{"source"},
	)

	// Tasks counts background tasks by kind and final status.
	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Name:      "tasks_total",
			Help:      "Background tasks by kind and final status",
		},
		[]string{"kind", "status"},
	)

	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "learnhub",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently holding an admission slot",
		},
	)

	// HTTPRequests counts API requests by method, route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learnhub",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordLLMCall records one LLM call.
func RecordLLMCall(kind, outcome string, seconds float64) {
	LLMCalls.WithLabelValues(kind, outcome).Inc()
	LLMCallDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordBatch records the end of one generation request.
func RecordBatch(source string, attempts, questions int, degraded bool) {
	EngineAttempts.WithLabelValues(source).Observe(float64(attempts))
	QuestionsGenerated.WithLabelValues(source).Add(float64(questions))
	if degraded {
		DegradedBatches.WithLabelValues(source).Inc()
	}
}

// RecordHTTP records one served request.
func RecordHTTP(method, route, status string, seconds float64) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
