package marker_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Integration", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		requests atomic.Int32
		failures int32
		cfg      marker.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests.Store(0)
		failures = 0

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := requests.Add(1)
			if n <= failures {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"reply %d"}}]}`, n, n)
		}))

		cfg = marker.NewDefaultConfig().WithOpenAI("test-key", "test-model")
		cfg.BaseURL = server.URL + "/v1"
		cfg.Timeout = 5 * time.Second
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewGenerator", func() {
		It("should reject an invalid configuration", func() {
			_, err := marker.NewGenerator(ctx, marker.Config{Provider: marker.ProviderOpenAI})
			Expect(err).To(MatchError(marker.ErrMissingAPIKey))
		})

		It("should generate through the plain backend", func() {
			gen, err := marker.NewGenerator(ctx, cfg)
			Expect(err).ToNot(HaveOccurred())
			Expect(gen.Model()).To(Equal("test-model"))

			text, err := gen.Generate(ctx, "p")
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("reply 1"))
		})

		It("should retry transient failures when retry is enabled", func() {
			failures = 2
			cfg = cfg.WithRetryConfig(&marker.RetryConfig{
				MaxAttempts:  3,
				Strategy:     marker.RetryStrategyConstant,
				InitialDelay: 5 * time.Millisecond,
				MaxDelay:     10 * time.Millisecond,
			}).WithCircuitBreaker()

			gen, err := marker.NewGenerator(ctx, cfg)
			Expect(err).ToNot(HaveOccurred())

			text, err := gen.Generate(ctx, "p")
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("reply 3"))
			Expect(requests.Load()).To(Equal(int32(3)))
		})

		It("should report health across the layers", func() {
			gen, err := marker.NewGenerator(ctx, cfg.WithCircuitBreaker())
			Expect(err).ToNot(HaveOccurred())

			health := gen.GetHealth()
			Expect(health.Healthy).To(BeTrue())
			Expect(health.Status).To(Equal("closed"))
			Expect(health.Details).To(HaveKey("integration"))
		})

		It("should drive a full marking run", func() {
			gen, err := marker.NewGenerator(ctx, cfg)
			Expect(err).ToNot(HaveOccurred())

			store := marker.NewFeedbackStore(afero.NewMemMapFs(), "outputs")
			m := marker.NewMarker(gen, store, cfg)
			run, err := m.Run(ctx, sampleEssays("a.txt", "b.txt"), &marker.Rubric{Name: "r.md", Text: "R"}, "G")
			Expect(err).ToNot(HaveOccurred())
			Expect(run.Results).To(HaveLen(2))
			Expect(run.ClassSummary).To(Equal("reply 3"))
		})
	})

	Describe("InstrumentedGenerator", func() {
		It("should pass stream fragments through", func() {
			inner := &mockGenerator{fragments: []string{"one", "two"}}
			gen := marker.NewInstrumentedGenerator(inner, "m", marker.NewMetricsRecorder(true))

			stream, err := gen.GenerateStream(ctx, []marker.Message{marker.UserMessage("p")})
			Expect(err).ToNot(HaveOccurred())
			text, err := marker.CollectStream(stream, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("onetwo"))
		})

		It("should return backend errors unchanged", func() {
			boom := fmt.Errorf("boom")
			inner := &mockGenerator{errors: []error{boom}}
			gen := marker.NewInstrumentedGenerator(inner, "m", nil)

			_, err := gen.Generate(ctx, "p")
			Expect(err).To(Equal(boom))
		})
	})
})
