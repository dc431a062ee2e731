package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// AnthropicVersion is the protocol tag sent with every Bedrock messages request.
const AnthropicVersion = "bedrock-2023-05-31"

// ErrUnexpectedResponse is wrapped by InferenceError when a response is missing
// the fields the client needs.
var ErrUnexpectedResponse = errors.New("unexpected response payload")

// ModelInvoker sends a raw JSON request body to a hosted model.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, modelID string, body []byte) ([]byte, error)
	InvokeModelStream(ctx context.Context, modelID string, body []byte) (ChunkReader, error)
}

// ChunkReader yields the raw JSON payload of every streamed chunk.
// The channel is closed when the stream ends; Err reports why it ended.
type ChunkReader interface {
	Chunks() <-chan []byte
	Err() error
	Close() error
}

// messagesRequest is the Anthropic messages body
type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	TopK             int       `json:"top_k"`
	TopP             float64   `json:"top_p"`
	StopSequences    []string  `json:"stop_sequences,omitempty"`
}

type messagesResponse struct {
	Content []ContentBlock `json:"content"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
}

// MessagesGenerator implements Generator for models that speak the Anthropic
// messages protocol, such as Claude on Amazon Bedrock.
type MessagesGenerator struct {
	invoker ModelInvoker
	modelID string
}

// NewMessagesGenerator creates a generator that sends requests for modelID through invoker
func NewMessagesGenerator(invoker ModelInvoker, modelID string) *MessagesGenerator {
	return &MessagesGenerator{
		invoker: invoker,
		modelID: modelID,
	}
}

// Model returns the model identifier requests are sent to
func (g *MessagesGenerator) Model() string {
	return g.modelID
}

// Generate sends prompt as a single user message and joins the text blocks of the reply.
func (g *MessagesGenerator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	body, err := buildMessagesRequest([]Message{UserMessage(prompt)}, NewGenerateOptions(opts...))
	if err != nil {
		return "", &InferenceError{Op: "invoke", Model: g.modelID, Err: err}
	}

	slog.Debug("Invoking model",
		"model", g.modelID,
		"prompt_length", len(prompt))

	raw, err := g.invoker.InvokeModel(ctx, g.modelID, body)
	if err != nil {
		return "", &InferenceError{Op: "invoke", Model: g.modelID, Err: err}
	}

	return g.parseResponse(raw)
}

// GenerateStream starts a streaming request and returns the text deltas as they arrive.
func (g *MessagesGenerator) GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error) {
	if len(messages) == 0 {
		return nil, &InferenceError{Op: "stream", Model: g.modelID, Err: ErrEmptyInput}
	}

	body, err := buildMessagesRequest(messages, NewGenerateOptions(opts...))
	if err != nil {
		return nil, &InferenceError{Op: "stream", Model: g.modelID, Err: err}
	}

	reader, err := g.invoker.InvokeModelStream(ctx, g.modelID, body)
	if err != nil {
		return nil, &InferenceError{Op: "stream", Model: g.modelID, Err: err}
	}

	return &messagesStream{reader: reader, model: g.modelID}, nil
}

func (g *MessagesGenerator) parseResponse(raw []byte) (string, error) {
	// Bodies that are not a JSON object are reported verbatim.
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		payload = map[string]interface{}{"raw": string(raw)}
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &InferenceError{
			Op:      "decode",
			Model:   g.modelID,
			Payload: payload,
			Err:     fmt.Errorf("%w: %v", ErrUnexpectedResponse, err),
		}
	}

	var texts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return "", &InferenceError{
			Op:      "decode",
			Model:   g.modelID,
			Payload: payload,
			Err:     fmt.Errorf("%w: no text content blocks", ErrUnexpectedResponse),
		}
	}

	return strings.Join(texts, "\n"), nil
}

func buildMessagesRequest(messages []Message, o GenerateOptions) ([]byte, error) {
	req := messagesRequest{
		AnthropicVersion: AnthropicVersion,
		Messages:         messages,
		MaxTokens:        o.MaxTokens,
		Temperature:      o.Temperature,
		TopK:             o.TopK,
		TopP:             o.TopP,
		StopSequences:    o.StopSequences,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// messagesStream turns raw chunks into text fragments. Only
// content_block_delta events carry text; everything else is skipped.
type messagesStream struct {
	reader ChunkReader
	model  string
	done   bool
	closed bool
}

func (s *messagesStream) Recv() (string, error) {
	for {
		if s.closed {
			return "", ErrStreamClosed
		}
		if s.done {
			return "", io.EOF
		}

		chunk, ok := <-s.reader.Chunks()
		if !ok {
			s.done = true
			if err := s.reader.Err(); err != nil {
				return "", &InferenceError{Op: "stream", Model: s.model, Err: err}
			}
			return "", io.EOF
		}

		var evt streamEvent
		if err := json.Unmarshal(chunk, &evt); err != nil {
			s.done = true
			s.reader.Close()
			return "", &InferenceError{
				Op:    "decode",
				Model: s.model,
				Err:   fmt.Errorf("failed to decode stream chunk: %w", err),
			}
		}

		if evt.Type == "content_block_delta" && evt.Delta != nil {
			return evt.Delta.Text, nil
		}
	}
}

func (s *messagesStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.done {
		return nil
	}
	s.done = true
	return s.reader.Close()
}
