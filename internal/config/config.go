package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JohnPlummer/essay-marker/marker"
)

// Config holds runtime configuration for the automark process.
type Config struct {
	Provider       string
	LargeModelID   string
	SmallModelID   string
	Region         string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	Timeout        time.Duration
	OutputDir      string
	EssaysDir      string
	RubricDir      string
	GuidanceFile   string
	HTTPAddr       string
	DBPath         string
	LogLevel       string
	LogFormat      string
	Retry          bool
	CircuitBreaker bool
	Metrics        bool
}

// envKeys maps config keys to the environment variables they are read from.
var envKeys = map[string]string{
	"large_model_id":  "BEDROCK_LARGE_MODEL_ID",
	"small_model_id":  "BEDROCK_SMALL_MODEL_ID",
	"region":          "BEDROCK_REGION",
	"provider":        "AUTOMARK_PROVIDER",
	"openai_api_key":  "OPENAI_API_KEY",
	"openai_base_url": "OPENAI_BASE_URL",
	"openai_model":    "OPENAI_MODEL",
	"timeout":         "AUTOMARK_TIMEOUT",
	"output_dir":      "AUTOMARK_OUTPUT_DIR",
	"essays_dir":      "AUTOMARK_ESSAYS_DIR",
	"rubric_dir":      "AUTOMARK_RUBRIC_DIR",
	"guidance_file":   "AUTOMARK_GUIDANCE_FILE",
	"http_addr":       "AUTOMARK_HTTP_ADDR",
	"db_path":         "AUTOMARK_DB_PATH",
	"log_level":       "AUTOMARK_LOG_LEVEL",
	"log_format":      "AUTOMARK_LOG_FORMAT",
	"retry":           "AUTOMARK_RETRY",
	"circuit_breaker": "AUTOMARK_CIRCUIT_BREAKER",
	"metrics":         "AUTOMARK_METRICS",
}

// Load reads configuration from the environment, after applying any .env
// files. With no files given an optional .env in the working directory is used.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("failed to load env files: %w", err)
	}

	v := viper.New()
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetDefault("large_model_id", marker.DefaultLargeModelID)
	v.SetDefault("small_model_id", marker.DefaultSmallModelID)
	v.SetDefault("region", marker.DefaultRegion)
	v.SetDefault("provider", marker.ProviderBedrock)
	v.SetDefault("openai_model", "gpt-4o")
	v.SetDefault("timeout", marker.DefaultRequestTimeout.String())
	v.SetDefault("output_dir", marker.DefaultOutputDir)
	v.SetDefault("essays_dir", "essays")
	v.SetDefault("rubric_dir", "rubric")
	v.SetDefault("guidance_file", "feedback_guidance.md")
	v.SetDefault("http_addr", ":8087")
	v.SetDefault("db_path", "automark.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("retry", true)
	v.SetDefault("circuit_breaker", false)
	v.SetDefault("metrics", true)

	timeout, err := time.ParseDuration(v.GetString("timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid timeout: %w", err)
	}
	if timeout <= 0 {
		timeout = marker.DefaultRequestTimeout
	}

	cfg := Config{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		LargeModelID:   v.GetString("large_model_id"),
		SmallModelID:   v.GetString("small_model_id"),
		Region:         v.GetString("region"),
		OpenAIAPIKey:   v.GetString("openai_api_key"),
		OpenAIBaseURL:  v.GetString("openai_base_url"),
		OpenAIModel:    v.GetString("openai_model"),
		Timeout:        timeout,
		OutputDir:      v.GetString("output_dir"),
		EssaysDir:      v.GetString("essays_dir"),
		RubricDir:      v.GetString("rubric_dir"),
		GuidanceFile:   v.GetString("guidance_file"),
		HTTPAddr:       v.GetString("http_addr"),
		DBPath:         v.GetString("db_path"),
		LogLevel:       strings.ToLower(v.GetString("log_level")),
		LogFormat:      strings.ToLower(v.GetString("log_format")),
		Retry:          v.GetBool("retry"),
		CircuitBreaker: v.GetBool("circuit_breaker"),
		Metrics:        v.GetBool("metrics"),
	}

	if _, err := cfg.SlogLevel(); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("invalid log format %q: must be text or json", cfg.LogFormat)
	}

	return cfg, nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// MarkerConfig converts the process configuration into a library config.
func (c Config) MarkerConfig() marker.Config {
	cfg := marker.NewDefaultConfig().
		WithProvider(c.Provider).
		WithRegion(c.Region).
		WithTimeout(c.Timeout).
		WithOutputDir(c.OutputDir)

	cfg.LargeModelID = c.LargeModelID
	cfg.SmallModelID = c.SmallModelID
	if cfg.Provider == marker.ProviderOpenAI {
		cfg = cfg.WithOpenAI(c.OpenAIAPIKey, c.OpenAIModel)
		cfg.BaseURL = c.OpenAIBaseURL
	}

	if c.Retry {
		cfg = cfg.WithRetry()
	}
	if c.CircuitBreaker {
		cfg = cfg.WithCircuitBreaker()
	}
	cfg.EnableMetrics = c.Metrics

	return cfg
}
