package marker

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

var (
	// Inference metrics
	inferenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_inference_requests_total",
			Help: "Total number of inference requests",
		},
		[]string{"op", "status", "model"},
	)

	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "essay_marker_inference_duration_seconds",
			Help:    "Duration of inference requests in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1000},
		},
		[]string{"op", "model"},
	)

	// Run metrics
	runSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "essay_marker_run_essays",
			Help:    "Number of essays submitted per marking run",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "essay_marker_run_duration_seconds",
			Help:    "Duration of marking runs in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	essaysMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "essay_marker_essays_marked_total",
			Help: "Total number of essays marked successfully",
		},
	)

	essaysFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_essays_failed_total",
			Help: "Total number of essays that could not be marked, by stage",
		},
		[]string{"stage"},
	)

	classSummaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_class_summaries_total",
			Help: "Total number of class summaries attempted",
		},
		[]string{"status"},
	)

	runProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "essay_marker_run_progress_ratio",
			Help: "Fraction of essays processed in the current run",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"error_type"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "essay_marker_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Retry metrics
	retryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "essay_marker_retry_attempts",
			Help:    "Number of attempts per inference request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_marker_retry_total",
			Help: "Total number of retries by reason",
		},
		[]string{"reason"},
	)

	streamFragments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "essay_marker_stream_fragments_total",
			Help: "Total number of streamed text fragments delivered",
		},
	)
)

// MetricsRecorder provides methods to record metrics. A nil recorder records nothing.
type MetricsRecorder struct {
	enabled bool
}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder(enabled bool) *MetricsRecorder {
	return &MetricsRecorder{enabled: enabled}
}

func (m *MetricsRecorder) on() bool {
	return m != nil && m.enabled
}

// RecordInference records an inference request
func (m *MetricsRecorder) RecordInference(op, status, model string) {
	if !m.on() {
		return
	}
	inferenceTotal.WithLabelValues(op, status, model).Inc()
}

// RecordInferenceDuration records inference duration
func (m *MetricsRecorder) RecordInferenceDuration(op, model string, seconds float64) {
	if !m.on() {
		return
	}
	inferenceDuration.WithLabelValues(op, model).Observe(seconds)
}

// RecordRunSize records the number of essays in a run
func (m *MetricsRecorder) RecordRunSize(size int) {
	if !m.on() {
		return
	}
	runSize.Observe(float64(size))
}

// RecordRunDuration records how long a run took
func (m *MetricsRecorder) RecordRunDuration(seconds float64) {
	if !m.on() {
		return
	}
	runDuration.Observe(seconds)
}

// RecordEssayMarked records a successfully marked essay
func (m *MetricsRecorder) RecordEssayMarked() {
	if !m.on() {
		return
	}
	essaysMarked.Inc()
}

// RecordEssayFailed records an essay failure at stage
func (m *MetricsRecorder) RecordEssayFailed(stage FailureStage) {
	if !m.on() {
		return
	}
	essaysFailed.WithLabelValues(string(stage)).Inc()
}

// RecordClassSummary records a class summary attempt
func (m *MetricsRecorder) RecordClassSummary(status string) {
	if !m.on() {
		return
	}
	classSummaries.WithLabelValues(status).Inc()
}

// RecordProgress sets the progress gauge
func (m *MetricsRecorder) RecordProgress(fraction float64) {
	if !m.on() {
		return
	}
	runProgress.Set(fraction)
}

// RecordError records an error
func (m *MetricsRecorder) RecordError(errorType string) {
	if !m.on() {
		return
	}
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCircuitBreakerState records circuit breaker state
func (m *MetricsRecorder) RecordCircuitBreakerState(name string, state int) {
	if !m.on() {
		return
	}
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *MetricsRecorder) RecordCircuitBreakerTrip(name string) {
	if !m.on() {
		return
	}
	circuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordRetryAttempt records attempts made for one request
func (m *MetricsRecorder) RecordRetryAttempt(attempts int) {
	if !m.on() {
		return
	}
	retryAttempts.Observe(float64(attempts))
}

// RecordRetry records a retry
func (m *MetricsRecorder) RecordRetry(reason string) {
	if !m.on() {
		return
	}
	retryTotal.WithLabelValues(reason).Inc()
}

// RecordStreamFragment counts one delivered stream fragment
func (m *MetricsRecorder) RecordStreamFragment() {
	if !m.on() {
		return
	}
	streamFragments.Inc()
}

// GetMetricsHandler returns an HTTP handler for Prometheus metrics
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// stateToInt converts circuit breaker state to int for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// classifyError returns error type for metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		switch smithyErr.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException":
			return "rate_limit"
		case "ValidationException", "AccessDeniedException", "ResourceNotFoundException":
			return "client_error"
		case "ModelTimeoutException":
			return "timeout"
		default:
			return "server_error"
		}
	}

	var inferenceErr *InferenceError
	if errors.As(err, &inferenceErr) && inferenceErr.Malformed() {
		return "malformed_response"
	}

	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return "persistence"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	if errors.Is(err, gobreaker.ErrOpenState) {
		return "circuit_open"
	}

	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_half_open"
	}

	return "unknown"
}

func classifyStatus(code int) string {
	switch {
	case code == 429:
		return "rate_limit"
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	default:
		return "api_error"
	}
}
