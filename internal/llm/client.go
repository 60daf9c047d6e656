// Package llm provides LLM client implementations.
package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// ChatStream sends a streaming chat request. Reasoning and text
	// deltas are delivered to callback in arrival order; the final
	// response is also returned. A nil callback only collects the
	// response.
	ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable and accepts our credentials.
	Ping(ctx context.Context) error
}
