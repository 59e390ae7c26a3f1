// Package model wraps the LLM provider behind a small client used by the
// rest of the engine: completions, streaming completions, constrained JSON
// completions, and embeddings. Transport and provider errors propagate to
// callers unchanged; degradation decisions belong to the call sites.
package model

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

// maxEmbedChars bounds embedding input to stay under the provider's token
// limit. Characters approximate tokens conservatively.
const maxEmbedChars = 24000

// Options configures the client.
type Options struct {
	ChatModel   string
	EmbedModel  string
	Temperature float32
	// RPS and Burst bound outbound provider calls.
	RPS   float64
	Burst int
}

// DefaultOptions returns the standard model configuration.
func DefaultOptions() Options {
	return Options{
		ChatModel:   openai.GPT4oMini,
		EmbedModel:  string(openai.AdaEmbeddingV2),
		Temperature: 0.3,
		RPS:         5,
		Burst:       10,
	}
}

// Client is the concrete model-service client.
type Client struct {
	api     *openai.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a Client for the given API key.
func NewClient(apiKey string, opts Options) *Client {
	if opts.ChatModel == "" {
		opts = DefaultOptions()
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		api:     openai.NewClient(apiKey),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), burst),
	}
}

// Embed returns the embedding vector for text. Input beyond the provider
// limit is truncated, not rejected.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	text = truncate(text, maxEmbedChars)
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.opts.EmbedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("model: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("model: embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Complete runs a non-streaming chat completion over the message history.
// The model may answer in text, invoke a declared tool, or both.
func (c *Client) Complete(ctx context.Context, history []domain.Message, system string, tools []ToolDef) (Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:       c.opts.ChatModel,
		Messages:    toChatMessages(history, system),
		Temperature: c.opts.Temperature,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("model: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("model: complete: no choices")
	}

	msg := resp.Choices[0].Message
	out := Completion{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return out, nil
}

// CompleteJSON runs a completion constrained to a JSON object response and
// returns the raw JSON text. Used for structured extraction.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.opts.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("model: complete json: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model: complete json: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete starts a streaming chat completion and returns a Stream of
// text fragments.
func (c *Client) StreamComplete(ctx context.Context, history []domain.Message, system string) (*Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.ChatModel,
		Messages:    toChatMessages(history, system),
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("model: stream: %w", err)
	}
	return &Stream{recv: func() (string, error) {
		for {
			chunk, err := s.Recv()
			if err != nil {
				return "", err
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				return delta, nil
			}
		}
	}, close: s.Close}, nil
}

// truncate bounds s to at most n bytes, backing off so a multi-byte rune is
// never split. The provider rejects invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func toChatMessages(history []domain.Message, system string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return msgs
}

// Stream is a lazy, forward-only sequence of completion text fragments.
// Recv returns io.EOF when the model finishes.
type Stream struct {
	recv  func() (string, error)
	close func() error
}

// NewStream wraps a receive function as a Stream. Fakes in tests use this.
func NewStream(recv func() (string, error), close func() error) *Stream {
	return &Stream{recv: recv, close: close}
}

// Recv returns the next non-empty text fragment.
func (s *Stream) Recv() (string, error) { return s.recv() }

// Close releases the underlying connection.
func (s *Stream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Collect drains the stream into a single string. Mainly for tests and CLIs.
func (s *Stream) Collect() (string, error) {
	defer s.Close()
	var out []byte
	for {
		frag, err := s.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}
