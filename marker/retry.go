package marker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/smithy-go"
	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"
)

// RetryGenerator wraps a Generator with retry logic
type RetryGenerator struct {
	generator Generator
	config    *RetryConfig
	metrics   *MetricsRecorder
}

// NewRetryGenerator creates a new retry wrapper around a Generator
func NewRetryGenerator(generator Generator, config *RetryConfig, metrics *MetricsRecorder) *RetryGenerator {
	if config == nil {
		config = DefaultRetryConfig()
	}

	return &RetryGenerator{
		generator: generator,
		config:    config,
		metrics:   metrics,
	}
}

// Generate executes the call with retry logic
func (r *RetryGenerator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return retryCall(ctx, r, "generate", func() (string, error) {
		return r.generator.Generate(ctx, prompt, opts...)
	})
}

// GenerateStream retries opening the stream. Fragments already received are
// never replayed, so a stream that fails part way is not retried.
func (r *RetryGenerator) GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error) {
	return retryCall(ctx, r, "stream", func() (Stream, error) {
		return r.generator.GenerateStream(ctx, messages, opts...)
	})
}

// GetHealth passes through to the wrapped generator
func (r *RetryGenerator) GetHealth() HealthStatus {
	if hr, ok := r.generator.(HealthReporter); ok {
		return hr.GetHealth()
	}
	return HealthStatus{Healthy: true, Status: "ok", Details: map[string]interface{}{}}
}

func retryCall[T any](ctx context.Context, r *RetryGenerator, op string, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	var attempts int

	backoff := r.getBackoffStrategy()

	for {
		attempts++

		// Try the request
		result, err := call()
		if err == nil {
			if attempts > 1 {
				slog.Info("Request succeeded after retry",
					"op", op,
					"attempts", attempts)
			}
			r.metrics.RecordRetryAttempt(attempts)
			return result, nil
		}

		lastErr = err

		// Check if error is retryable
		if !IsRetryableError(err) {
			slog.Debug("Non-retryable error, giving up",
				"op", op,
				"error", err,
				"attempts", attempts)
			r.metrics.RecordRetryAttempt(attempts)
			return zero, err
		}

		// Check if we've exceeded max attempts
		if attempts >= r.config.MaxAttempts {
			slog.Warn("Max retry attempts reached",
				"op", op,
				"attempts", attempts,
				"error", lastErr)
			r.metrics.RecordRetryAttempt(attempts)
			return zero, lastErr
		}

		// Calculate next delay
		delay, stop := backoff.Next()
		if stop {
			slog.Warn("Backoff strategy stopped",
				"op", op,
				"attempts", attempts,
				"error", lastErr)
			r.metrics.RecordRetryAttempt(attempts)
			return zero, lastErr
		}

		slog.Debug("Retrying request after delay",
			"op", op,
			"attempt", attempts,
			"delay", delay,
			"error", err)
		r.metrics.RecordRetry(classifyError(err))

		// Wait with context awareness
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// getBackoffStrategy returns the appropriate backoff strategy
func (r *RetryGenerator) getBackoffStrategy() retry.Backoff {
	var base retry.Backoff

	switch r.config.Strategy {
	case RetryStrategyConstant:
		base = retry.NewConstant(r.config.InitialDelay)
	case RetryStrategyFibonacci:
		base = retry.NewFibonacci(r.config.InitialDelay)
	case RetryStrategyExponential:
		fallthrough
	default:
		base = retry.NewExponential(r.config.InitialDelay)
	}

	if jitter := r.config.InitialDelay / 10; jitter > 0 {
		base = retry.WithJitter(jitter, base)
	}

	return retry.WithMaxRetries(
		uint64(r.config.MaxAttempts),
		retry.WithCappedDuration(r.config.MaxDelay, base),
	)
}

// IsRetryableError determines if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancelled context is not retryable
	if errors.Is(err, context.Canceled) {
		return false
	}

	// A malformed payload will not fix itself
	var inferenceErr *InferenceError
	if errors.As(err, &inferenceErr) && inferenceErr.Malformed() {
		return false
	}

	if errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrUnexpectedResponse) {
		return false
	}

	// An open circuit rejects immediately; retrying only burns attempts
	if errors.Is(err, gobreaker.ErrOpenState) {
		return false
	}

	// Check for OpenAI API errors
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableStatus(reqErr.HTTPStatusCode)
	}

	// Bedrock reports failures as modelled service exceptions
	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		switch smithyErr.ErrorCode() {
		case "ThrottlingException",
			"ServiceUnavailableException",
			"InternalServerException",
			"ModelTimeoutException",
			"ModelNotReadyException",
			"ModelStreamErrorException":
			return true
		case "ValidationException",
			"AccessDeniedException",
			"ResourceNotFoundException",
			"ServiceQuotaExceededException",
			"ModelErrorException",
			"UnrecognizedClientException":
			return false
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() > 0 {
		return isRetryableStatus(statusErr.HTTPStatusCode())
	}

	// Timeout errors are retryable
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unknown errors are most likely network failures
	return true
}

func isRetryableStatus(code int) bool {
	switch {
	case code == 429: // Rate limit - definitely retry
		return true
	case code >= 500: // Server errors - retry
		return true
	default:
		return false
	}
}
