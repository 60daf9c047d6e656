package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

// reasoningFields are the delta keys providers use for reasoning text.
// Groq uses "reasoning"; DeepSeek-style APIs use "reasoning_content".
var reasoningFields = []string{"reasoning", "reasoning_content"}

// OpenAIConfig configures an [OpenAIClient].
type OpenAIConfig struct {
	// Name labels the provider in logs (e.g. "groq").
	Name    string
	BaseURL string
	APIKey  string

	// MaxRetries is passed to the SDK, which retries 429 and 5xx
	// responses before the stream starts.
	MaxRetries int

	// ReasoningEffort is sent when non-empty (low, medium, high).
	ReasoningEffort string

	// HTTPClient overrides the SDK's client. Streaming needs a client
	// without an overall timeout.
	HTTPClient *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	name            string
	client          openai.Client
	reasoningEffort string
	logger          *slog.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIClient{
		name:            cfg.Name,
		client:          openai.NewClient(opts...),
		reasoningEffort: cfg.ReasoningEffort,
		logger:          logger.With("provider", cfg.Name),
	}
}

// ChatStream sends a streaming request.
func (c *OpenAIClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		callback = func(StreamEvent) {}
	}

	start := time.Now()
	params := c.params(model, messages)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	c.logger.Debug("opening stream",
		"model", model,
		"messages", len(messages),
	)

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		content      strings.Builder
		reasoning    strings.Builder
		finishReason string
		respModel    = model
		usage        openai.CompletionUsage
	)

	for stream.Next() {
		chunk := stream.Current()
		c.logger.Log(ctx, LevelTrace, "stream chunk", "json", chunk.RawJSON())

		if chunk.Model != "" {
			respModel = chunk.Model
		}
		if chunk.Usage.CompletionTokens > 0 || chunk.Usage.PromptTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if r := reasoningFrom(choice.Delta.RawJSON()); r != "" {
			reasoning.WriteString(r)
			callback(StreamEvent{Kind: KindReasoning, Token: r})
		}
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			callback(StreamEvent{Kind: KindText, Token: choice.Delta.Content})
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("stream interrupted: %w", ctx.Err())
		}
		c.logger.Error("stream failed", "model", model, "error", err)
		return nil, classifyError(err)
	}

	resp := &ChatResponse{
		Model: respModel,
		Message: Message{
			Role:    "assistant",
			Content: content.String(),
		},
		Reasoning:    reasoning.String(),
		FinishReason: finishReason,
		Done:         true,
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		Duration:     time.Since(start),
	}

	c.logger.Debug("stream complete",
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"content_len", len(resp.Message.Content),
		"reasoning_len", len(resp.Reasoning),
		"finish_reason", resp.FinishReason,
		"elapsed", resp.Duration,
	)

	callback(StreamEvent{Kind: KindDone, Response: resp})
	return resp, nil
}

// Ping lists models, which exercises both reachability and credentials.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *OpenAIClient) params(model string, messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if c.reasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(c.reasoningEffort)
	}
	return params
}

// toOpenAIMessages converts messages to SDK params. Unknown roles are dropped.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "user":
			out = append(out, openai.UserMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}

// reasoningFrom extracts reasoning text from a raw message or delta.
// The SDK does not model these provider extensions, so read them from
// the raw JSON.
func reasoningFrom(raw string) string {
	if raw == "" {
		return ""
	}
	for _, field := range reasoningFields {
		if v := gjson.Get(raw, field); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// classifyError maps SDK errors onto the package's sentinel errors.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrProviderAuth, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrProviderRateLimited, err)
		}
	}
	return fmt.Errorf("provider request: %w", err)
}
