package marker_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Types", func() {
	Describe("Progress", func() {
		It("should compute the completed fraction", func() {
			Expect(marker.Progress{Completed: 1, Total: 4}.Fraction()).To(Equal(0.25))
			Expect(marker.Progress{Completed: 4, Total: 4}.Fraction()).To(Equal(1.0))
			Expect(marker.Progress{}.Fraction()).To(Equal(0.0))
		})
	})

	Describe("Run", func() {
		It("should report its duration once finished", func() {
			start := time.Now()
			run := &marker.Run{StartedAt: start}
			Expect(run.Duration()).To(BeZero())

			run.FinishedAt = start.Add(3 * time.Second)
			Expect(run.Duration()).To(Equal(3 * time.Second))
		})
	})

	Describe("UserMessage", func() {
		It("should wrap text in a single user text block", func() {
			msg := marker.UserMessage("hello")
			Expect(msg.Role).To(Equal(marker.RoleUser))
			Expect(msg.Content).To(Equal([]marker.ContentBlock{{Type: "text", Text: "hello"}}))
		})
	})

	Describe("Errors", func() {
		It("should describe precondition failures", func() {
			err := error(&marker.PreconditionError{Field: "guidance", Err: marker.ErrNoGuidance})
			Expect(err.Error()).To(Equal("cannot start marking: guidance: feedback guidance is empty"))
			Expect(errors.Is(err, marker.ErrNoGuidance)).To(BeTrue())
		})

		It("should include the payload of malformed responses", func() {
			err := &marker.InferenceError{
				Op:      "decode",
				Model:   "m",
				Payload: map[string]interface{}{"stop_reason": "max_tokens"},
				Err:     marker.ErrUnexpectedResponse,
			}
			Expect(err.Error()).To(ContainSubstring(`"stop_reason":"max_tokens"`))
			Expect(err.Malformed()).To(BeTrue())
		})

		It("should name the failed stage of an essay", func() {
			failure := marker.EssayFailure{EssayName: "a.txt", Stage: marker.StagePersistence, Err: errors.New("disk full")}
			Expect(failure.Error()).To(Equal("a.txt (persistence): disk full"))
		})
	})

	Describe("Version", func() {
		It("should expose the library version", func() {
			info := marker.GetVersion()
			Expect(info.Version).To(Equal(marker.Version))
			Expect(info.Name).To(Equal("essay-marker"))
		})
	})
})
