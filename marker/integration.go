package marker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/JohnPlummer/essay-marker/marker"

// InstrumentedGenerator records metrics and a trace span for every call
type InstrumentedGenerator struct {
	generator Generator
	model     string
	metrics   *MetricsRecorder
	tracer    trace.Tracer
	config    Config
}

// NewInstrumentedGenerator wraps generator with metrics and tracing
func NewInstrumentedGenerator(generator Generator, model string, metrics *MetricsRecorder) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		generator: generator,
		model:     model,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// NewGenerator builds the configured backend and layers the resilience
// wrappers on top: backend, then retry, then circuit breaker, then metrics.
func NewGenerator(ctx context.Context, cfg Config) (*InstrumentedGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var gen Generator
	switch cfg.Provider {
	case ProviderOpenAI:
		client := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
		gen = NewOpenAIGenerator(client, cfg.LargeModelID)
	default:
		client, err := NewBedrockClient(ctx, cfg.Region, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		gen = NewMessagesGenerator(NewBedrockInvoker(client), cfg.LargeModelID)
	}

	return wrapGenerator(gen, cfg), nil
}

// wrapGenerator applies the resilience layers cfg enables around gen
func wrapGenerator(gen Generator, cfg Config) *InstrumentedGenerator {
	metrics := NewMetricsRecorder(cfg.EnableMetrics)

	// Layer 1: Add retry logic (innermost)
	if cfg.EnableRetry {
		slog.Info("Enabling retry logic",
			"max_attempts", cfg.RetryConfig.MaxAttempts,
			"strategy", cfg.RetryConfig.Strategy)
		gen = NewRetryGenerator(gen, cfg.RetryConfig, metrics)
	}

	// Layer 2: Add circuit breaker (wraps retry)
	if cfg.EnableCircuitBreaker {
		slog.Info("Enabling circuit breaker",
			"max_requests", cfg.CircuitBreakerConfig.MaxRequests,
			"timeout", cfg.CircuitBreakerConfig.Timeout)

		cbConfig := *cfg.CircuitBreakerConfig
		userCallback := cbConfig.OnStateChange
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
			if userCallback != nil {
				userCallback(name, from, to)
			}
		}

		gen = NewCircuitBreakerGenerator(gen, &cbConfig)
	}

	instrumented := NewInstrumentedGenerator(gen, cfg.LargeModelID, metrics)
	instrumented.config = cfg

	slog.Info("Generator created",
		"provider", cfg.Provider,
		"model", cfg.LargeModelID,
		"circuit_breaker", cfg.EnableCircuitBreaker,
		"retry", cfg.EnableRetry)

	return instrumented
}

// Metrics returns the recorder shared by the wrapper layers
func (g *InstrumentedGenerator) Metrics() *MetricsRecorder {
	return g.metrics
}

// Model returns the model identifier requests are sent to
func (g *InstrumentedGenerator) Model() string {
	return g.model
}

// Generate implements Generator
func (g *InstrumentedGenerator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	o := NewGenerateOptions(opts...)
	ctx, span := g.tracer.Start(ctx, "marker.generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("max_tokens", o.MaxTokens),
		attribute.Int("prompt_chars", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	text, err := g.generator.Generate(ctx, prompt, opts...)
	g.metrics.RecordInferenceDuration("generate", g.model, time.Since(start).Seconds())

	if err != nil {
		g.fail(span, "generate", err)
		return "", err
	}

	span.SetAttributes(attribute.Int("completion_chars", len(text)))
	g.metrics.RecordInference("generate", "success", g.model)
	return text, nil
}

// GenerateStream implements Generator. The span covers the whole stream and
// ends when the stream is exhausted or closed.
func (g *InstrumentedGenerator) GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error) {
	ctx, span := g.tracer.Start(ctx, "marker.generate_stream", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("messages", len(messages)),
	))

	start := time.Now()
	stream, err := g.generator.GenerateStream(ctx, messages, opts...)
	if err != nil {
		g.metrics.RecordInferenceDuration("stream", g.model, time.Since(start).Seconds())
		g.fail(span, "stream", err)
		span.End()
		return nil, err
	}

	return &instrumentedStream{stream: stream, parent: g, span: span, start: start}, nil
}

func (g *InstrumentedGenerator) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.metrics.RecordInference(op, "error", g.model)
	g.metrics.RecordError(classifyError(err))
}

// GetHealth returns comprehensive health status
func (g *InstrumentedGenerator) GetHealth() HealthStatus {
	health := HealthStatus{Healthy: true, Status: "ok", Details: map[string]interface{}{}}
	if hr, ok := g.generator.(HealthReporter); ok {
		health = hr.GetHealth()
		if health.Details == nil {
			health.Details = map[string]interface{}{}
		}
	}

	health.Details["integration"] = map[string]interface{}{
		"provider":                g.config.Provider,
		"model":                   g.model,
		"circuit_breaker_enabled": g.config.EnableCircuitBreaker,
		"retry_enabled":           g.config.EnableRetry,
		"metrics_enabled":         g.config.EnableMetrics,
	}

	return health
}

type instrumentedStream struct {
	stream    Stream
	parent    *InstrumentedGenerator
	span      trace.Span
	start     time.Time
	fragments int
	finished  bool
}

func (s *instrumentedStream) Recv() (string, error) {
	fragment, err := s.stream.Recv()
	if err == nil {
		s.fragments++
		s.parent.metrics.RecordStreamFragment()
		return fragment, nil
	}
	s.finish(err)
	return fragment, err
}

func (s *instrumentedStream) Close() error {
	err := s.stream.Close()
	s.finish(nil)
	return err
}

func (s *instrumentedStream) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true

	g := s.parent
	g.metrics.RecordInferenceDuration("stream", g.model, time.Since(s.start).Seconds())
	s.span.SetAttributes(attribute.Int("fragments", s.fragments))

	if err != nil && !errors.Is(err, io.EOF) {
		g.fail(s.span, "stream", fmt.Errorf("stream interrupted after %d fragments: %w", s.fragments, err))
	} else {
		g.metrics.RecordInference("stream", "success", g.model)
	}
	s.span.End()
}
