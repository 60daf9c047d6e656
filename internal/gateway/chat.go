package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nugget/kir/internal/llm"
	"github.com/nugget/kir/internal/uistream"
)

const (
	// maxRequestBody bounds a chat request body.
	maxRequestBody = 4 << 20

	// keepaliveInterval is how often an SSE comment is written while the
	// provider produces nothing, so proxies do not drop the connection.
	keepaliveInterval = 15 * time.Second
)

// chatRequest is a validated chat request.
type chatRequest struct {
	Model    string
	Messages []llm.Message
}

// parseChatRequest validates a raw request body. It returns
// [uistream.ErrInvalidJSON] or [uistream.ErrInvalidRequest].
//
// A body that parses to a falsy JSON value (null, false, 0 or "") is
// treated as invalid JSON.
func (s *Server) parseChatRequest(body []byte) (*chatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, uistream.ErrInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if !truthy(root) {
		return nil, uistream.ErrInvalidJSON
	}
	if !root.IsObject() {
		return nil, uistream.ErrInvalidRequest
	}

	msgs := root.Get("messages")
	if !msgs.IsArray() {
		return nil, uistream.ErrInvalidRequest
	}

	req := &chatRequest{}
	if m := root.Get("model"); m.Exists() {
		if m.Type != gjson.String {
			return nil, uistream.ErrInvalidRequest
		}
		if _, ok := s.catalog.Lookup(m.String()); !ok {
			return nil, uistream.ErrInvalidRequest
		}
		req.Model = m.String()
	} else {
		req.Model = s.catalog.Default()
	}

	for _, m := range msgs.Array() {
		if msg, ok := toProviderMessage(m); ok {
			req.Messages = append(req.Messages, msg)
		}
	}
	return req, nil
}

// truthy mirrors JavaScript truthiness for a parsed JSON value.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.Str != ""
	}
	return true
}

// toProviderMessage converts one UI message. Only text parts are sent
// to the model; messages with an unsupported role or no text are skipped.
// A plain "content" string is accepted for clients that predate parts.
func toProviderMessage(m gjson.Result) (llm.Message, bool) {
	if !m.IsObject() {
		return llm.Message{}, false
	}
	role := m.Get("role").String()
	switch role {
	case uistream.RoleUser, uistream.RoleAssistant, uistream.RoleSystem:
	default:
		return llm.Message{}, false
	}

	var text strings.Builder
	for _, p := range m.Get(`parts.#(type=="text")#.text`).Array() {
		text.WriteString(p.String())
	}
	if text.Len() == 0 {
		if c := m.Get("content"); c.Type == gjson.String {
			text.WriteString(c.Str)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return llm.Message{}, false
	}
	return llm.Message{Role: role, Content: text.String()}, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Credentialed || s.llm == nil {
		textError(w, http.StatusInternalServerError, uistream.MissingCredentialsBody(s.cfg.APIKeyEnv))
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		textError(w, http.StatusTooManyRequests, uistream.BodyRateLimited)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			textError(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		textError(w, http.StatusBadRequest, uistream.BodyInvalidJSON)
		return
	}

	req, err := s.parseChatRequest(body)
	switch {
	case errors.Is(err, uistream.ErrInvalidJSON):
		textError(w, http.StatusBadRequest, uistream.BodyInvalidJSON)
		return
	case err != nil:
		s.logger.Debug("rejected chat request", "error", err)
		textError(w, http.StatusBadRequest, uistream.BodyInvalidRequest)
		return
	}

	messages := req.Messages
	if s.cfg.SystemPrompt != "" {
		messages = append([]llm.Message{{Role: uistream.RoleSystem, Content: s.cfg.SystemPrompt}}, messages...)
	}

	ctx := r.Context()
	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	uistream.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	st := newStream(w, s.cfg.WriteTimeout, s.logger)
	st.begin()
	stopKeepalive := st.keepalive(keepaliveInterval)

	resp, err := s.llm.ChatStream(ctx, req.Model, messages, st.event)
	stopKeepalive()

	switch {
	case err == nil:
		st.finish(resp)
	case r.Context().Err() != nil:
		s.logger.Debug("client disconnected", "model", req.Model)
		return
	default:
		s.logger.Error("provider stream failed", "model", req.Model, "error", err)
		st.fail(providerErrorText(err))
	}

	if err := st.err(); err != nil {
		s.logger.Debug("stream write failed", "error", err)
	}
}

// providerErrorText is the client-visible text for a provider failure.
// Provider error bodies are logged, never forwarded.
func providerErrorText(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The response took too long and was stopped."
	case errors.Is(err, llm.ErrProviderAuth):
		return "The model provider rejected the API key."
	case errors.Is(err, llm.ErrProviderRateLimited):
		return "The model provider is rate limiting requests. Try again shortly."
	}
	return "The model provider returned an error."
}
