package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/essay-marker/internal/config"
	"github.com/JohnPlummer/essay-marker/marker"
)

var envNames = []string{
	"BEDROCK_LARGE_MODEL_ID", "BEDROCK_SMALL_MODEL_ID", "BEDROCK_REGION",
	"AUTOMARK_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"AUTOMARK_TIMEOUT", "AUTOMARK_OUTPUT_DIR", "AUTOMARK_ESSAYS_DIR", "AUTOMARK_RUBRIC_DIR",
	"AUTOMARK_GUIDANCE_FILE", "AUTOMARK_HTTP_ADDR", "AUTOMARK_DB_PATH", "AUTOMARK_LOG_LEVEL",
	"AUTOMARK_LOG_FORMAT", "AUTOMARK_RETRY", "AUTOMARK_CIRCUIT_BREAKER", "AUTOMARK_METRICS",
}

func setEnv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		saved := map[string]string{}
		for _, name := range envNames {
			if value, ok := os.LookupEnv(name); ok {
				saved[name] = value
			}
			Expect(os.Unsetenv(name)).To(Succeed())
		}
		DeferCleanup(func() {
			for _, name := range envNames {
				os.Unsetenv(name)
				if value, ok := saved[name]; ok {
					os.Setenv(name, value)
				}
			}
		})
	})

	It("should apply defaults when nothing is set", func() {
		cfg, err := config.Load()
		Expect(err).ToNot(HaveOccurred())

		Expect(cfg.Provider).To(Equal("bedrock"))
		Expect(cfg.LargeModelID).To(Equal(marker.DefaultLargeModelID))
		Expect(cfg.SmallModelID).To(Equal(marker.DefaultSmallModelID))
		Expect(cfg.Region).To(Equal("us-west-2"))
		Expect(cfg.Timeout).To(Equal(1000 * time.Second))
		Expect(cfg.OutputDir).To(Equal("outputs"))
		Expect(cfg.EssaysDir).To(Equal("essays"))
		Expect(cfg.RubricDir).To(Equal("rubric"))
		Expect(cfg.GuidanceFile).To(Equal("feedback_guidance.md"))
		Expect(cfg.HTTPAddr).To(Equal(":8087"))
		Expect(cfg.DBPath).To(Equal("automark.db"))
		Expect(cfg.Retry).To(BeTrue())
		Expect(cfg.CircuitBreaker).To(BeFalse())
		Expect(cfg.Metrics).To(BeTrue())
	})

	It("should honour environment overrides", func() {
		setEnv("BEDROCK_LARGE_MODEL_ID", "custom-model")
		setEnv("BEDROCK_REGION", "eu-west-2")
		setEnv("AUTOMARK_TIMEOUT", "90s")
		setEnv("AUTOMARK_RETRY", "false")
		setEnv("AUTOMARK_CIRCUIT_BREAKER", "true")
		setEnv("AUTOMARK_LOG_LEVEL", "DEBUG")

		cfg, err := config.Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.LargeModelID).To(Equal("custom-model"))
		Expect(cfg.Region).To(Equal("eu-west-2"))
		Expect(cfg.Timeout).To(Equal(90 * time.Second))
		Expect(cfg.Retry).To(BeFalse())
		Expect(cfg.CircuitBreaker).To(BeTrue())

		level, err := cfg.SlogLevel()
		Expect(err).ToNot(HaveOccurred())
		Expect(level).To(Equal(slog.LevelDebug))
	})

	It("should read values from an env file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "automark.env")
		Expect(os.WriteFile(path, []byte("AUTOMARK_OUTPUT_DIR=feedback\nAUTOMARK_HTTP_ADDR=:9000\n"), 0o600)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.OutputDir).To(Equal("feedback"))
		Expect(cfg.HTTPAddr).To(Equal(":9000"))
	})

	It("should fail on a missing explicit env file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "absent.env"))
		Expect(err).To(MatchError(ContainSubstring("failed to load env files")))
	})

	It("should reject an invalid timeout", func() {
		setEnv("AUTOMARK_TIMEOUT", "soon")
		_, err := config.Load()
		Expect(err).To(MatchError(ContainSubstring("invalid timeout")))
	})

	It("should reject an unknown log format", func() {
		setEnv("AUTOMARK_LOG_FORMAT", "xml")
		_, err := config.Load()
		Expect(err).To(MatchError(ContainSubstring("invalid log format")))
	})

	Describe("MarkerConfig", func() {
		It("should map bedrock settings and resilience flags", func() {
			setEnv("AUTOMARK_CIRCUIT_BREAKER", "true")
			cfg, err := config.Load()
			Expect(err).ToNot(HaveOccurred())

			mc := cfg.MarkerConfig()
			Expect(mc.Provider).To(Equal(marker.ProviderBedrock))
			Expect(mc.LargeModelID).To(Equal(marker.DefaultLargeModelID))
			Expect(mc.EnableRetry).To(BeTrue())
			Expect(mc.EnableCircuitBreaker).To(BeTrue())
			Expect(mc.Validate()).To(Succeed())
		})

		It("should map openai settings", func() {
			setEnv("AUTOMARK_PROVIDER", "openai")
			setEnv("OPENAI_API_KEY", "sk-test")
			setEnv("OPENAI_BASE_URL", "http://localhost:1234/v1")
			setEnv("OPENAI_MODEL", "gpt-test")
			cfg, err := config.Load()
			Expect(err).ToNot(HaveOccurred())

			mc := cfg.MarkerConfig()
			Expect(mc.Provider).To(Equal(marker.ProviderOpenAI))
			Expect(mc.APIKey).To(Equal("sk-test"))
			Expect(mc.BaseURL).To(Equal("http://localhost:1234/v1"))
			Expect(mc.LargeModelID).To(Equal("gpt-test"))
			Expect(mc.Validate()).To(Succeed())
		})
	})
})
