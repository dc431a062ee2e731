package marker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/smithy-go"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerGenerator wraps a Generator with circuit breaker functionality
type CircuitBreakerGenerator struct {
	generator Generator
	cb        *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreakerGenerator creates a new circuit breaker wrapper around a Generator
func NewCircuitBreakerGenerator(generator Generator, config *CircuitBreakerConfig) *CircuitBreakerGenerator {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        "inference",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}

			// Rate limits, timeouts and bad prompts say nothing about backend health
			return !ShouldTripCircuit(err)
		},
	}

	return &CircuitBreakerGenerator{
		generator: generator,
		cb:        gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Generate executes the call through the circuit breaker
func (w *CircuitBreakerGenerator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	out, err := w.cb.Execute(func() (any, error) {
		return w.generator.Generate(ctx, prompt, opts...)
	})
	if err != nil {
		w.logRejection(err)
		return "", err
	}
	return out.(string), nil
}

// GenerateStream opens the stream through the circuit breaker
func (w *CircuitBreakerGenerator) GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error) {
	out, err := w.cb.Execute(func() (any, error) {
		return w.generator.GenerateStream(ctx, messages, opts...)
	})
	if err != nil {
		w.logRejection(err)
		return nil, err
	}
	return out.(Stream), nil
}

func (w *CircuitBreakerGenerator) logRejection(err error) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		slog.Debug("Circuit breaker is open, request rejected",
			"error", err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.Debug("Circuit breaker in half-open state, too many requests",
			"error", err)
	default:
		slog.Debug("Request failed through circuit breaker",
			"error", err,
			"should_trip", ShouldTripCircuit(err))
	}
}

// State returns the current state of the circuit breaker
func (w *CircuitBreakerGenerator) State() gobreaker.State {
	return w.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (w *CircuitBreakerGenerator) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

// GetHealth returns the health status of the circuit breaker
func (w *CircuitBreakerGenerator) GetHealth() HealthStatus {
	state := w.cb.State()
	counts := w.cb.Counts()

	var healthy bool
	var status string

	switch state {
	case gobreaker.StateClosed:
		healthy = true
		status = "closed"
	case gobreaker.StateHalfOpen:
		healthy = true // Degraded but operational
		status = "half-open"
	case gobreaker.StateOpen:
		healthy = false
		status = "open"
	default:
		status = "unknown"
	}

	return HealthStatus{
		Healthy: healthy,
		Status:  status,
		Details: map[string]interface{}{
			"state":                 state.String(),
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_failures":  counts.ConsecutiveFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
		},
	}
}

// ShouldTripCircuit determines if an error should count against the circuit
func ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts and cancellations don't trip
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Check for OpenAI API errors
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429: // Rate limit - expected under load
			return false
		case apiErr.HTTPStatusCode == 400: // Bad prompt, not a backend problem
			return false
		default:
			return apiErr.HTTPStatusCode >= 400
		}
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		switch smithyErr.ErrorCode() {
		case "ThrottlingException", "ValidationException", "ModelTimeoutException":
			return false
		default:
			return true
		}
	}

	// Unknown errors, including malformed payloads, should trip the circuit
	return true
}
