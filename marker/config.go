package marker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default model identifiers
const (
	DefaultLargeModelID = "global.anthropic.claude-sonnet-4-20250514-v1:0"
	DefaultSmallModelID = "global.anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultRegion       = "us-west-2"
)

// Config holds the configuration for marking
type Config struct {
	Provider             string                // bedrock or openai
	LargeModelID         string                // Model used for essay and class feedback
	SmallModelID         string                // Reserved for lightweight tasks
	Region               string                // Bedrock region
	APIKey               string                // OpenAI API key (openai provider only)
	BaseURL              string                // Optional OpenAI-compatible endpoint
	Timeout              time.Duration         // Per-request network timeout
	OutputDir            string                // Where feedback files are written
	EssayMaxTokens       int                   // Output cap for one essay's feedback
	ClassMaxTokens       int                   // Output cap for the class summary
	ExcerptLimit         int                   // Per-essay excerpt length in the class prompt
	EnableCircuitBreaker bool                  // Enable circuit breaker pattern
	EnableRetry          bool                  // Enable retry with backoff
	EnableMetrics        bool                  // Record Prometheus metrics
	CircuitBreakerConfig *CircuitBreakerConfig // Circuit breaker configuration
	RetryConfig          *RetryConfig          // Retry configuration
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests   uint32                                      // Max requests in half-open state
	Interval      time.Duration                               // Interval for closed state
	Timeout       time.Duration                               // Timeout for open state
	ReadyToTrip   func(counts gobreaker.Counts) bool          // Custom trip condition
	OnStateChange func(name string, from, to gobreaker.State) // State change callback
}

// RetryConfig holds retry settings
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts
	Strategy     RetryStrategy // Backoff strategy to use
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
}

// RetryStrategy defines the backoff strategy for retries
type RetryStrategy string

const (
	RetryStrategyExponential RetryStrategy = "exponential"
	RetryStrategyConstant    RetryStrategy = "constant"
	RetryStrategyFibonacci   RetryStrategy = "fibonacci"
)

// NewDefaultConfig creates a config for Bedrock with the stock model and limits
func NewDefaultConfig() Config {
	return Config{
		Provider:       ProviderBedrock,
		LargeModelID:   DefaultLargeModelID,
		SmallModelID:   DefaultSmallModelID,
		Region:         DefaultRegion,
		Timeout:        DefaultRequestTimeout,
		OutputDir:      DefaultOutputDir,
		EssayMaxTokens: DefaultEssayMaxTokens,
		ClassMaxTokens: DefaultClassMaxTokens,
		ExcerptLimit:   DefaultExcerptLimit,
		EnableMetrics:  true,
	}
}

// NewProductionConfig creates a config with retry and circuit breaker enabled
func NewProductionConfig() Config {
	return NewDefaultConfig().WithRetry().WithCircuitBreaker()
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures or a failure
// rate above 60% once 10 requests have been seen.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio > 0.6)
		},
	}
}

// DefaultRetryConfig retries three times with exponential backoff
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		Strategy:     RetryStrategyExponential,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// WithCircuitBreaker enables circuit breaker with default settings
func (c Config) WithCircuitBreaker() Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = DefaultCircuitBreakerConfig()
	return c
}

// WithCircuitBreakerConfig enables circuit breaker with custom settings
func (c Config) WithCircuitBreakerConfig(config *CircuitBreakerConfig) Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = config
	return c
}

// WithRetry enables retry with default exponential backoff
func (c Config) WithRetry() Config {
	c.EnableRetry = true
	c.RetryConfig = DefaultRetryConfig()
	return c
}

// WithRetryConfig enables retry with custom settings
func (c Config) WithRetryConfig(config *RetryConfig) Config {
	c.EnableRetry = true
	c.RetryConfig = config
	return c
}

// WithProvider selects the inference backend
func (c Config) WithProvider(provider string) Config {
	c.Provider = strings.ToLower(strings.TrimSpace(provider))
	return c
}

// WithOpenAI switches to the openai provider with the given key and model
func (c Config) WithOpenAI(apiKey, model string) Config {
	c.Provider = ProviderOpenAI
	c.APIKey = apiKey
	c.LargeModelID = model
	return c
}

// WithModel sets the large model identifier
func (c Config) WithModel(model string) Config {
	c.LargeModelID = model
	return c
}

// WithRegion sets the Bedrock region
func (c Config) WithRegion(region string) Config {
	c.Region = region
	return c
}

// WithTimeout sets the request timeout
func (c Config) WithTimeout(timeout time.Duration) Config {
	if timeout < 0 {
		panic("timeout must be positive")
	}
	c.Timeout = timeout
	return c
}

// WithOutputDir sets where feedback files are written
func (c Config) WithOutputDir(dir string) Config {
	c.OutputDir = dir
	return c
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderBedrock:
		if c.Region == "" {
			return fmt.Errorf("%w: region is required for the bedrock provider", ErrInvalidConfig)
		}
	case ProviderOpenAI:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	default:
		return fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, c.Provider)
	}

	if c.Provider == ProviderBedrock && c.LargeModelID == "" {
		return fmt.Errorf("%w: large model identifier is required", ErrInvalidConfig)
	}

	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}

	if c.EssayMaxTokens < 0 || c.ClassMaxTokens < 0 {
		return errors.New("max tokens must be non-negative")
	}

	if c.ExcerptLimit < 0 {
		return errors.New("excerpt limit must be non-negative")
	}

	// Circuit breaker validation
	if c.EnableCircuitBreaker && c.CircuitBreakerConfig == nil {
		return errors.New("circuit breaker enabled but config is nil")
	}

	// Retry validation
	if c.EnableRetry {
		if c.RetryConfig == nil {
			return errors.New("retry enabled but config is nil")
		}

		if !isValidRetryStrategy(c.RetryConfig.Strategy) {
			return fmt.Errorf("invalid retry strategy: %s", c.RetryConfig.Strategy)
		}

		if c.RetryConfig.MaxAttempts <= 0 {
			return errors.New("retry MaxAttempts must be positive")
		}

		if c.RetryConfig.InitialDelay <= 0 {
			return errors.New("retry InitialDelay must be positive")
		}

		if c.RetryConfig.MaxDelay <= 0 {
			return errors.New("retry MaxDelay must be positive")
		}
	}

	return nil
}

// essayMaxTokens returns the configured essay budget or the default
func (c Config) essayMaxTokens() int {
	if c.EssayMaxTokens > 0 {
		return c.EssayMaxTokens
	}
	return DefaultEssayMaxTokens
}

func (c Config) classMaxTokens() int {
	if c.ClassMaxTokens > 0 {
		return c.ClassMaxTokens
	}
	return DefaultClassMaxTokens
}

func (c Config) excerptLimit() int {
	if c.ExcerptLimit > 0 {
		return c.ExcerptLimit
	}
	return DefaultExcerptLimit
}

// isValidRetryStrategy checks if the retry strategy is valid
func isValidRetryStrategy(strategy RetryStrategy) bool {
	switch strategy {
	case RetryStrategyExponential, RetryStrategyConstant, RetryStrategyFibonacci:
		return true
	default:
		return false
	}
}
