package marker_test

import (
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Inference options", func() {
	Describe("NewGenerateOptions", func() {
		It("should apply the documented defaults", func() {
			o := marker.NewGenerateOptions()
			Expect(o.MaxTokens).To(Equal(2048))
			Expect(o.Temperature).To(Equal(0.5))
			Expect(o.TopK).To(Equal(250))
			Expect(o.TopP).To(Equal(1.0))
			Expect(o.StopSequences).To(Equal([]string{"\n\nHuman:"}))
		})

		It("should override only the options that are set", func() {
			o := marker.NewGenerateOptions(
				marker.WithMaxTokens(3000),
				marker.WithTemperature(0.2),
			)
			Expect(o.MaxTokens).To(Equal(3000))
			Expect(o.Temperature).To(Equal(0.2))
			Expect(o.TopK).To(Equal(marker.DefaultTopK))
			Expect(o.TopP).To(Equal(marker.DefaultTopP))
		})

		It("should ignore non-positive max tokens", func() {
			o := marker.NewGenerateOptions(marker.WithMaxTokens(0))
			Expect(o.MaxTokens).To(Equal(marker.DefaultMaxTokens))
		})

		It("should not share the default stop sequences", func() {
			o := marker.NewGenerateOptions()
			o.StopSequences[0] = "changed"
			Expect(marker.NewGenerateOptions().StopSequences[0]).To(Equal("\n\nHuman:"))
		})

		It("should replace stop sequences", func() {
			o := marker.NewGenerateOptions(marker.WithStopSequences("END", "STOP"), marker.WithTopK(10), marker.WithTopP(0.9))
			Expect(o.StopSequences).To(Equal([]string{"END", "STOP"}))
			Expect(o.TopK).To(Equal(10))
			Expect(o.TopP).To(Equal(0.9))
		})
	})

	Describe("Streams", func() {
		It("should deliver fragments in order and then EOF forever", func() {
			s := marker.NewSliceStream("a", "b", "c")

			var got []string
			for {
				f, err := s.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				Expect(err).ToNot(HaveOccurred())
				got = append(got, f)
			}
			Expect(got).To(Equal([]string{"a", "b", "c"}))

			_, err := s.Recv()
			Expect(err).To(Equal(io.EOF))
		})

		It("should refuse reads after Close", func() {
			s := marker.NewSliceStream("a", "b")
			Expect(s.Close()).To(Succeed())
			_, err := s.Recv()
			Expect(err).To(MatchError(marker.ErrStreamClosed))
		})

		It("should collect a stream and report every fragment", func() {
			var seen []string
			text, err := marker.CollectStream(marker.NewSliceStream("Good ", "work", "."), func(f string) {
				seen = append(seen, f)
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("Good work."))
			Expect(seen).To(Equal([]string{"Good ", "work", "."}))
		})

		It("should return the partial text and the error when a stream fails", func() {
			boom := errors.New("connection reset")
			s := &erroringStream{fragments: []string{"part"}, err: boom}

			text, err := marker.CollectStream(s, nil)
			Expect(err).To(MatchError(boom))
			Expect(text).To(Equal("part"))
			Expect(s.closed).To(BeTrue())
		})
	})
})
