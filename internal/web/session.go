package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/render"
	"github.com/nugget/kir/internal/uistream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxCommandSize = 64 << 10
)

// command is a message from the browser.
type command struct {
	Type  string `json:"type"` // send, stop, regenerate, model, reset
	Text  string `json:"text,omitempty"`
	Model string `json:"model,omitempty"`
}

// messageView is one message as the browser draws it.
type messageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text,omitempty"` // user messages, drawn as plain text
	HTML      string `json:"html,omitempty"` // assistant messages, sanitized
	Reasoning string `json:"reasoning,omitempty"`
	Thinking  bool   `json:"thinking"`
	Streaming bool   `json:"streaming"`
}

// snapshot is the full conversation state pushed to the browser.
type snapshot struct {
	Type     string              `json:"type"`
	Status   conversation.Status `json:"status"`
	Model    string              `json:"model"`
	Error    string              `json:"error,omitempty"`
	Messages []messageView       `json:"messages"`
}

// notice reports a rejected command.
type notice struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// session is one browser connection with its own conversation. Nothing
// outlives the connection.
type session struct {
	conn    *websocket.Conn
	chat    *conversation.Chat
	catalog *models.Catalog
	html    *render.HTML
	limiter *rate.Limiter
	logger  *slog.Logger

	writeMu sync.Mutex

	// rendered caches assistant HTML by message ID so finished messages
	// are not re-rendered on every push.
	rendered map[string]renderedHTML
}

type renderedHTML struct {
	source string
	html   string
}

func (s *WebServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.transport == nil {
		http.Error(w, "chat transport not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	chat := conversation.New(s.transport(), s.logger)
	if s.catalog != nil {
		chat.SetModel(s.catalog.Default())
	}

	sess := &session{
		conn:     conn,
		chat:     chat,
		catalog:  s.catalog,
		html:     s.html,
		limiter:  rate.NewLimiter(rate.Limit(s.pushRate), 1),
		logger:   s.logger.With("conversation", chat.ID()),
		rendered: make(map[string]renderedHTML),
	}
	sess.logger.Info("chat session opened", "remote", r.RemoteAddr)
	sess.run(r.Context())
	sess.logger.Info("chat session closed")
}

// run serves the session until the browser goes away.
func (ss *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer ss.conn.Close()
	defer ss.chat.Stop()

	updates, unsubscribe := ss.chat.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ss.pushLoop(ctx, updates)
	}()

	ss.readLoop(ctx)
	cancel()
	wg.Wait()
}

// readLoop applies browser commands until the connection fails.
func (ss *session) readLoop(ctx context.Context) {
	ss.conn.SetReadLimit(maxCommandSize)
	_ = ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := ss.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ss.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if err := ss.handle(ctx, cmd); err != nil {
			_ = ss.writeJSON(notice{Type: "notice", Error: commandErrorText(err)})
		}
	}
}

func (ss *session) handle(ctx context.Context, cmd command) error {
	switch cmd.Type {
	case "send":
		return ss.chat.Send(ctx, cmd.Text)
	case "stop":
		ss.chat.Stop()
	case "regenerate":
		return ss.chat.Regenerate(ctx)
	case "reset":
		ss.chat.Reset()
		ss.writeMu.Lock()
		clear(ss.rendered)
		ss.writeMu.Unlock()
	case "model":
		if ss.catalog != nil {
			if _, ok := ss.catalog.Lookup(cmd.Model); !ok {
				return models.ErrUnknownModel
			}
		}
		ss.chat.SetModel(cmd.Model)
	case "sync":
		return ss.push()
	default:
		return errUnknownCommand
	}
	return nil
}

var errUnknownCommand = errors.New("unknown command")

func commandErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Type a message first."
	case errors.Is(err, conversation.ErrBusy):
		return "Wait for the current answer, or stop it."
	case errors.Is(err, conversation.ErrNothingToRegenerate):
		return "There is nothing to regenerate yet."
	case errors.Is(err, models.ErrUnknownModel):
		return "That model is not available."
	}
	return "That did not work."
}

// pushLoop sends a snapshot after state changes, at most pushRate per
// second. Notifications coalesce, so a burst of chunks yields one push
// carrying the latest state. It also keeps the connection alive.
func (ss *session) pushLoop(ctx context.Context, updates <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := ss.push(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ss.writeMu.Lock()
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := ss.conn.WriteMessage(websocket.PingMessage, nil)
			ss.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-updates:
			if err := ss.limiter.Wait(ctx); err != nil {
				return
			}
			if err := ss.push(); err != nil {
				ss.logger.Debug("push failed", "error", err)
				return
			}
		}
	}
}

// push sends the current state. The snapshot is taken under writeMu,
// which also guards the render cache.
func (ss *session) push() error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	return ss.writeLocked(ss.snapshot())
}

func (ss *session) writeJSON(v any) error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	return ss.writeLocked(v)
}

func (ss *session) writeLocked(v any) error {
	_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ss.conn.WriteJSON(v)
}

// snapshot renders the conversation for the browser.
func (ss *session) snapshot() snapshot {
	st := ss.chat.State()
	snap := snapshot{
		Type:     "snapshot",
		Status:   st.Status,
		Model:    st.Model,
		Error:    conversation.Describe(st.Err),
		Messages: make([]messageView, 0, len(st.Messages)),
	}

	for _, m := range st.Messages {
		v := messageView{
			ID:        m.ID,
			Role:      m.Role,
			Reasoning: m.Reasoning(),
			Thinking:  m.ReasoningStreaming(),
			Streaming: m.Streaming(),
		}
		if m.Role == uistream.RoleAssistant {
			v.HTML = ss.renderHTML(m.ID, m.Text())
		} else {
			v.Text = m.Text()
		}
		snap.Messages = append(snap.Messages, v)
	}
	return snap
}

func (ss *session) renderHTML(id, md string) string {
	if c, ok := ss.rendered[id]; ok && c.source == md {
		return c.html
	}
	out := ss.html.Render(md)
	if strings.TrimSpace(md) == "" {
		out = ""
	}
	ss.rendered[id] = renderedHTML{source: md, html: out}
	return out
}
