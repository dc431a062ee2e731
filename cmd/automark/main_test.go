package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func setEnv(key, value string) {
	previous, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, previous)
		} else {
			os.Unsetenv(key)
		}
	})
}

func writeFile(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}

var _ = Describe("automark", func() {
	var (
		dir      string
		requests atomic.Int32
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		requests.Store(0)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := requests.Add(1)
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), `"stream":true`) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprintf(w, "data: {\"id\":\"c%d\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"reply \"}}]}\n\n", n)
				fmt.Fprintf(w, "data: {\"id\":\"c%d\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%d\"}}]}\n\n", n, n)
				fmt.Fprint(w, "data: [DONE]\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"reply %d"}}]}`, n, n)
		}))
		DeferCleanup(server.Close)

		setEnv("AUTOMARK_PROVIDER", "openai")
		setEnv("OPENAI_API_KEY", "test-key")
		setEnv("OPENAI_BASE_URL", server.URL+"/v1")
		setEnv("OPENAI_MODEL", "test-model")
		setEnv("AUTOMARK_OUTPUT_DIR", filepath.Join(dir, "outputs"))
		setEnv("AUTOMARK_DB_PATH", filepath.Join(dir, "automark.db"))
		setEnv("AUTOMARK_ESSAYS_DIR", filepath.Join(dir, "essays"))
		setEnv("AUTOMARK_RUBRIC_DIR", filepath.Join(dir, "rubric"))
		setEnv("AUTOMARK_GUIDANCE_FILE", filepath.Join(dir, "feedback_guidance.md"))
		setEnv("AUTOMARK_RETRY", "false")
		setEnv("AUTOMARK_METRICS", "false")
		setEnv("AUTOMARK_LOG_LEVEL", "error")

		writeFile(filepath.Join(dir, "essays", "a.txt"), "Essay A")
		writeFile(filepath.Join(dir, "essays", "b.txt"), "Essay B")
		writeFile(filepath.Join(dir, "rubric", "rubric.md"), "# Rubric")
		writeFile(filepath.Join(dir, "feedback_guidance.md"), "Be specific")
	})

	Describe("mark", func() {
		It("should mark every essay, summarise the class and record the run", func() {
			out, err := execute("mark")
			Expect(err).ToNot(HaveOccurred())

			Expect(out).To(ContainSubstring("[1/2] a.txt ok"))
			Expect(out).To(ContainSubstring("[2/2] b.txt ok"))
			Expect(out).To(ContainSubstring("Marked:   2 of 2"))
			Expect(out).To(ContainSubstring("class_overall.feedback.md"))

			feedback, err := os.ReadFile(filepath.Join(dir, "outputs", "a.feedback.txt"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(feedback)).To(Equal("reply 1"))

			summary, err := os.ReadFile(filepath.Join(dir, "outputs", "class_overall.feedback.md"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(summary)).To(Equal("reply 3"))

			out, err = execute("runs")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("rubric.md"))
		})

		It("should skip the class summary on request", func() {
			out, err := execute("mark", "--no-class-summary", "--no-history")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).ToNot(ContainSubstring("Class summary"))
			Expect(requests.Load()).To(Equal(int32(2)))

			out, err = execute("runs")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("No runs recorded."))
		})

		It("should refuse to run without guidance", func() {
			_, err := execute("mark", "--guidance", filepath.Join(dir, "missing.md"))
			Expect(err).To(MatchError(ContainSubstring("feedback guidance is empty")))
			Expect(requests.Load()).To(BeZero())
		})

		It("should refuse blank essays in strict mode", func() {
			writeFile(filepath.Join(dir, "essays", "c.txt"), "   ")

			_, err := execute("mark", "--strict", "--no-history")
			Expect(err).To(MatchError(ContainSubstring("validation failed")))
			Expect(requests.Load()).To(BeZero())
		})

		It("should reject an unknown rubric", func() {
			_, err := execute("mark", "--rubric", "other.md")
			Expect(err).To(MatchError(ContainSubstring("unknown rubric")))
		})
	})

	Describe("stream", func() {
		It("should print the feedback and store it", func() {
			out, err := execute("stream", filepath.Join(dir, "essays", "a.txt"), "--rubric", filepath.Join(dir, "rubric", "rubric.md"))
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("reply 1"))

			stored, err := os.ReadFile(filepath.Join(dir, "outputs", "a.feedback.txt"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(stored)).To(Equal("reply 1"))
		})
	})

	Describe("show", func() {
		BeforeEach(func() {
			writeFile(filepath.Join(dir, "outputs", "a.feedback.txt"), "Essay A feedback")
			writeFile(filepath.Join(dir, "outputs", "class_overall.feedback.md"), "# Class\n\nMostly good.")
		})

		It("should print raw essay feedback", func() {
			out, err := execute("show", "a.txt", "--raw")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal("Essay A feedback\n"))
		})

		It("should render the class summary", func() {
			out, err := execute("show")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("Class"))
			Expect(out).To(ContainSubstring("Mostly good."))
		})

		It("should list stored feedback", func() {
			out, err := execute("show", "--list")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal("a\n"))
		})

		It("should fail for unknown essays", func() {
			_, err := execute("show", "zed", "--raw")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("runs", func() {
		It("should report an unknown run id", func() {
			_, err := execute("runs", "nope")
			Expect(err).To(MatchError(ContainSubstring("run not found")))
		})
	})
})
