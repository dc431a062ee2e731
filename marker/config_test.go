package marker_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sony/gobreaker/v2"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Config", func() {
	Describe("NewDefaultConfig", func() {
		It("should create config with sensible defaults", func() {
			cfg := marker.NewDefaultConfig()

			Expect(cfg.Provider).To(Equal(marker.ProviderBedrock))
			Expect(cfg.LargeModelID).To(Equal("global.anthropic.claude-sonnet-4-20250514-v1:0"))
			Expect(cfg.SmallModelID).To(Equal("global.anthropic.claude-haiku-4-5-20251001-v1:0"))
			Expect(cfg.Region).To(Equal("us-west-2"))
			Expect(cfg.Timeout).To(Equal(1000 * time.Second))
			Expect(cfg.OutputDir).To(Equal("outputs"))
			Expect(cfg.EssayMaxTokens).To(Equal(3000))
			Expect(cfg.ClassMaxTokens).To(Equal(4000))
			Expect(cfg.ExcerptLimit).To(Equal(500))
			Expect(cfg.EnableCircuitBreaker).To(BeFalse())
			Expect(cfg.EnableRetry).To(BeFalse())
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("NewProductionConfig", func() {
		It("should enable both resilience patterns", func() {
			cfg := marker.NewProductionConfig()
			Expect(cfg.EnableRetry).To(BeTrue())
			Expect(cfg.EnableCircuitBreaker).To(BeTrue())
			Expect(cfg.RetryConfig.MaxAttempts).To(Equal(3))
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("WithCircuitBreaker", func() {
		It("should trip after 5 consecutive failures", func() {
			trip := marker.NewDefaultConfig().WithCircuitBreaker().CircuitBreakerConfig.ReadyToTrip

			Expect(trip(gobreaker.Counts{Requests: 4, TotalFailures: 4, ConsecutiveFailures: 4})).To(BeFalse())
			Expect(trip(gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5})).To(BeTrue())
		})

		It("should trip on a high failure ratio once enough requests are seen", func() {
			trip := marker.DefaultCircuitBreakerConfig().ReadyToTrip

			Expect(trip(gobreaker.Counts{Requests: 9, TotalFailures: 8, ConsecutiveFailures: 1})).To(BeFalse())
			Expect(trip(gobreaker.Counts{Requests: 10, TotalFailures: 7, ConsecutiveFailures: 1})).To(BeTrue())
			Expect(trip(gobreaker.Counts{})).To(BeFalse())
		})
	})

	Describe("Builders", func() {
		It("should not modify the receiver", func() {
			base := marker.NewDefaultConfig()
			_ = base.WithRegion("eu-west-1").WithModel("other").WithOutputDir("elsewhere")
			Expect(base.Region).To(Equal("us-west-2"))
			Expect(base.OutputDir).To(Equal("outputs"))
		})

		It("should switch to the openai provider", func() {
			cfg := marker.NewDefaultConfig().WithOpenAI("sk-test", "gpt-4o")
			Expect(cfg.Provider).To(Equal(marker.ProviderOpenAI))
			Expect(cfg.LargeModelID).To(Equal("gpt-4o"))
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should normalise provider names", func() {
			Expect(marker.NewDefaultConfig().WithProvider(" OpenAI ").Provider).To(Equal(marker.ProviderOpenAI))
		})

		It("should panic on a negative timeout", func() {
			Expect(func() { marker.NewDefaultConfig().WithTimeout(-time.Second) }).To(Panic())
		})
	})

	Describe("Validate", func() {
		It("should require an API key for openai", func() {
			cfg := marker.NewDefaultConfig().WithProvider(marker.ProviderOpenAI)
			Expect(cfg.Validate()).To(MatchError(marker.ErrMissingAPIKey))
		})

		It("should reject unknown providers", func() {
			cfg := marker.NewDefaultConfig().WithProvider("carrier-pigeon")
			Expect(cfg.Validate()).To(MatchError(marker.ErrInvalidConfig))
		})

		It("should require a region for bedrock", func() {
			Expect(marker.NewDefaultConfig().WithRegion("").Validate()).To(MatchError(marker.ErrInvalidConfig))
		})

		It("should reject retry without config", func() {
			cfg := marker.NewDefaultConfig()
			cfg.EnableRetry = true
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("retry enabled but config is nil")))
		})

		It("should reject an invalid retry strategy", func() {
			cfg := marker.NewDefaultConfig().WithRetryConfig(&marker.RetryConfig{
				MaxAttempts:  2,
				Strategy:     "linear",
				InitialDelay: time.Second,
				MaxDelay:     time.Second,
			})
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("invalid retry strategy")))
		})

		It("should reject circuit breaker without config", func() {
			cfg := marker.NewDefaultConfig().WithCircuitBreakerConfig(nil)
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})
})
