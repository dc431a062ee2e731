package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient defines the interface for interacting with OpenAI API
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(context.Context, openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// NewOpenAIClient creates a client for the OpenAI API or a compatible endpoint
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(config)
}

// OpenAIGenerator implements Generator with chat completions.
// TopK has no chat completion equivalent and is ignored.
type OpenAIGenerator struct {
	client OpenAIClient
	model  string
}

// NewOpenAIGenerator creates a generator for model
func NewOpenAIGenerator(client OpenAIClient, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: client,
		model:  model,
	}
}

// Model returns the model identifier requests are sent to
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate sends prompt as a single user message
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	req := g.buildChatRequest([]Message{UserMessage(prompt)}, NewGenerateOptions(opts...))

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &InferenceError{Op: "invoke", Model: g.model, Err: fmt.Errorf("OpenAI API request failed: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return "", &InferenceError{
			Op:      "decode",
			Model:   g.model,
			Payload: toPayload(resp),
			Err:     fmt.Errorf("%w: no choices", ErrUnexpectedResponse),
		}
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams the completion deltas
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error) {
	if len(messages) == 0 {
		return nil, &InferenceError{Op: "stream", Model: g.model, Err: ErrEmptyInput}
	}

	req := g.buildChatRequest(messages, NewGenerateOptions(opts...))
	req.Stream = true

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, &InferenceError{Op: "stream", Model: g.model, Err: fmt.Errorf("OpenAI stream request failed: %w", err)}
	}

	return &openAIStream{stream: stream, model: g.model}, nil
}

func (g *OpenAIGenerator) buildChatRequest(messages []Message, o GenerateOptions) openai.ChatCompletionRequest {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: messageText(m),
		})
	}

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    chat,
		MaxTokens:   o.MaxTokens,
		Temperature: float32(o.Temperature),
		TopP:        float32(o.TopP),
		Stop:        o.StopSequences,
	}
}

func messageText(m Message) string {
	var parts []string
	for _, block := range m.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toPayload converts a response into its generic JSON form for error reporting
func toPayload(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]interface{}{"raw": string(raw)}
	}
	return payload
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	model  string
	done   bool
	closed bool
}

func (s *openAIStream) Recv() (string, error) {
	for {
		if s.closed {
			return "", ErrStreamClosed
		}
		if s.done {
			return "", io.EOF
		}

		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", &InferenceError{Op: "stream", Model: s.model, Err: err}
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	return s.stream.Close()
}
