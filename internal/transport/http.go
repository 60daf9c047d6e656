// Package transport connects chat clients to a gateway over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/kir/internal/httpkit"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/uistream"
)

// maxErrorBody bounds how much of a non-200 response is read.
const maxErrorBody = 4096

// HTTP opens chat streams against a gateway's /api/chat endpoint.
type HTTP struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTP creates a transport for the gateway at baseURL. The client
// has no overall timeout; a stream lives until it ends or its context is
// cancelled.
func NewHTTP(baseURL string, logger *slog.Logger) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger.With("component", "transport"),
	}
}

// Open sends req and returns the response stream. Cancelling ctx aborts
// the connection and unblocks a pending Next on the returned reader.
// Non-200 responses are classified with [uistream.ClassifyResponse].
func (t *HTTP) Open(ctx context.Context, req uistream.Request) (*uistream.Reader, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", uistream.ContentType)

	t.logger.Debug("opening chat stream",
		"url", httpReq.URL.String(),
		"model", req.Model,
		"messages", len(req.Messages),
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, maxErrorBody)
		return nil, uistream.ClassifyResponse(resp.StatusCode, errBody)
	}

	if v := resp.Header.Get(uistream.ProtocolHeader); v != "" && v != uistream.ProtocolVersion {
		t.logger.Warn("unexpected stream protocol version", "version", v)
	}

	return uistream.NewReader(resp.Body), nil
}

// Models fetches the gateway's model catalog.
func (t *HTTP) Models(ctx context.Context) (*models.Catalog, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, maxErrorBody)
		return nil, fmt.Errorf("fetch models: %w", uistream.ClassifyResponse(resp.StatusCode, errBody))
	}
	defer httpkit.DrainAndClose(resp.Body, maxErrorBody)

	var listing models.Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return models.FromListing(listing)
}
