package llm

import (
	"context"
	"fmt"
)

// MultiClient routes requests to the appropriate provider based on model name.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client            // default client for unknown models
}

// NewMultiClient creates a client that routes to multiple providers.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// clientFor returns the appropriate client for a model.
func (m *MultiClient) clientFor(model string) Client {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client
		}
	}
	return m.fallback
}

// ChatStream sends a streaming request to the appropriate provider.
func (m *MultiClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.ChatStream(ctx, model, messages, callback)
}

// Ping checks every registered provider, then the fallback if it is
// not already registered.
func (m *MultiClient) Ping(ctx context.Context) error {
	pinged := make(map[Client]bool, len(m.clients))
	for name, client := range m.clients {
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		pinged[client] = true
	}
	if m.fallback != nil && !pinged[m.fallback] {
		return m.fallback.Ping(ctx)
	}
	if m.fallback == nil && len(m.clients) == 0 {
		return fmt.Errorf("no providers configured")
	}
	return nil
}
