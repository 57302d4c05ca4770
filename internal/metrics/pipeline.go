package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interpreter model metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of interpreter model calls",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Interpreter model call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// InterpretationsTotal counts interpretations by provenance and fallback reason.
	InterpretationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpretations_total",
			Help:      "Query interpretations by provenance",
		},
		[]string{"provenance", "fallback_reason"},
	)
)

// Pipeline and collaborator metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by mode and terminal state",
		},
		[]string{"mode", "outcome"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180, 600},
		},
		[]string{"stage"},
	)

	PipelineFeaturesReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_features_returned",
			Help:      "Number of features returned per successful run",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	ExtractionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_in_flight",
			Help:      "Extraction passes currently holding a slot",
		},
	)

	GeocoderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocoder_attempts_total",
			Help:      "Geocoder HTTP attempts by result",
		},
		[]string{"result"}, // "ok" / "not_found" / "retryable" / "error"
	)

	GeocodeCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocode cache hits and misses",
		},
		[]string{"result"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers interpreter, pipeline and geocoder metrics.
// Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(InterpretationsTotal)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineFeaturesReturned)
	prometheus.MustRegister(ExtractionsInFlight)
	prometheus.MustRegister(GeocoderAttemptsTotal)
	prometheus.MustRegister(GeocodeCacheTotal)
	pipelineMetricsRegistered = true
}
