package llm

import (
	"errors"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Provider failures worth telling apart in the UI.
var (
	ErrProviderAuth        = errors.New("provider rejected credentials")
	ErrProviderRateLimited = errors.New("provider rate limit exceeded")
)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the unified response from any LLM provider.
type ChatResponse struct {
	Model        string
	Message      Message
	Reasoning    string
	FinishReason string
	Done         bool

	// Token usage, when the provider reports it.
	InputTokens  int
	OutputTokens int

	Duration time.Duration
}

// StreamEvent represents a single event in a streaming response.
// Consumers switch on Kind to determine what data is available.
type StreamEvent struct {
	Kind StreamEventKind

	// Token is set for KindText and KindReasoning events.
	Token string

	// Response is set for KindDone events (final summary).
	Response *ChatResponse
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindText is an incremental answer token.
	KindText StreamEventKind = iota

	// KindReasoning is an incremental reasoning token.
	KindReasoning

	// KindDone signals the stream is complete. Response carries final metadata.
	KindDone
)

func (k StreamEventKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReasoning:
		return "reasoning"
	case KindDone:
		return "done"
	}
	return "unknown"
}

// StreamCallback receives streaming events.
type StreamCallback func(event StreamEvent)
