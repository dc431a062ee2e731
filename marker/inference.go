package marker

import (
	"errors"
	"io"
	"strings"
)

// Sampling defaults applied when an option is not set
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.5
	DefaultTopK        = 250
	DefaultTopP        = 1.0
)

// DefaultStopSequences ends generation if the model starts a new human turn.
var DefaultStopSequences = []string{"\n\nHuman:"}

// GenerateOptions holds the sampling parameters for one generation request.
type GenerateOptions struct {
	MaxTokens     int      // Caps output length
	Temperature   float64  // Sampling randomness
	TopK          int      // Ignored by backends without top-k sampling
	TopP          float64  // Nucleus sampling
	StopSequences []string // Terminate generation early
}

// GenerateOption is a functional option for a generation request
type GenerateOption func(*GenerateOptions)

// NewGenerateOptions starts from the defaults and applies opts in order.
func NewGenerateOptions(opts ...GenerateOption) GenerateOptions {
	o := GenerateOptions{
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		TopK:          DefaultTopK,
		TopP:          DefaultTopP,
		StopSequences: append([]string(nil), DefaultStopSequences...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithMaxTokens caps the output length
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithTopK sets top-k sampling
func WithTopK(k int) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopK = k
	}
}

// WithTopP sets nucleus sampling
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

// WithStopSequences replaces the stop sequences. Order is preserved.
func WithStopSequences(seqs ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.StopSequences = append([]string(nil), seqs...)
	}
}

// CollectStream drains s into a single string, calling onFragment for every
// fragment in arrival order. The stream is closed before returning.
func CollectStream(s Stream, onFragment func(string)) (string, error) {
	defer s.Close()

	var sb strings.Builder
	for {
		fragment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}
}

// sliceStream serves a fixed list of fragments. Used by backends that receive
// the whole completion at once and by tests.
type sliceStream struct {
	fragments []string
	closed    bool
}

// NewSliceStream returns a Stream over fragments.
func NewSliceStream(fragments ...string) Stream {
	return &sliceStream{fragments: fragments}
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed {
		return "", ErrStreamClosed
	}
	if len(s.fragments) == 0 {
		return "", io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	s.fragments = nil
	return nil
}
