// Package conversation reconciles a streamed chat response into a stable,
// ordered message list.
//
// A Chat owns the message history of one session. Send appends the user
// message immediately and starts a stream in the background; chunks are
// applied to a single assistant message as they arrive. Presentations
// read snapshots with Messages and learn about changes via Subscribe.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/kir/internal/uistream"
)

// Transport opens a chat stream for a request.
type Transport interface {
	Open(ctx context.Context, req uistream.Request) (*uistream.Reader, error)
}

// Chat is one conversation. It is safe for concurrent use.
type Chat struct {
	id        string
	transport Transport
	logger    *slog.Logger

	mu        sync.Mutex
	messages  []Message
	status    Status
	err       error
	model     string
	finish    string
	streamIdx int // index of the assistant message being appended to, or -1

	// gen increments whenever a stream starts or is stopped. Chunks from
	// an older generation are dropped.
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	subs    map[int]chan struct{}
	nextSub int
}

// New creates an empty conversation.
func New(t Transport, logger *slog.Logger) *Chat {
	return &Chat{
		id:        uuid.NewString(),
		transport: t,
		logger:    logger.With("component", "conversation"),
		status:    StatusReady,
		streamIdx: -1,
		subs:      make(map[int]chan struct{}),
	}
}

// ID returns the conversation ID sent with every request.
func (c *Chat) ID() string { return c.id }

// SetModel selects the model for subsequent requests. Empty selects
// the gateway's default.
func (c *Chat) SetModel(id string) {
	c.mu.Lock()
	c.model = id
	c.mu.Unlock()
	c.notify()
}

// Model returns the selected model.
func (c *Chat) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Status returns the current status.
func (c *Chat) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error behind StatusError.
func (c *Chat) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// FinishReason returns the finish reason of the last completed response.
func (c *Chat) FinishReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finish
}

// Messages returns a deep copy of the conversation.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messagesLocked()
}

// State is a consistent view of a conversation.
type State struct {
	Messages []Message
	Status   Status
	Err      error
	Model    string
}

// State returns messages, status, error and model as of one instant.
func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Messages: c.messagesLocked(),
		Status:   c.status,
		Err:      c.err,
		Model:    c.model,
	}
}

func (c *Chat) messagesLocked() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Send appends a user message and starts streaming the reply. The user
// message is in the history when Send returns.
func (c *Chat) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = append(c.messages, Message{
		ID:        uuid.NewString(),
		Role:      uistream.RoleUser,
		Parts:     []Part{{Type: uistream.PartText, Text: text, State: StateDone}},
		CreatedAt: time.Now(),
	})
	c.startLocked(ctx)
	c.mu.Unlock()

	c.notify()
	return nil
}

// Regenerate drops a trailing assistant message and asks again.
func (c *Chat) Regenerate(ctx context.Context) error {
	c.mu.Lock()
	if c.status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	n := len(c.messages)
	if n > 0 && c.messages[n-1].Role == uistream.RoleAssistant {
		c.messages = c.messages[:n-1]
		n--
	}
	if n == 0 || c.messages[n-1].Role != uistream.RoleUser {
		c.mu.Unlock()
		return ErrNothingToRegenerate
	}
	c.startLocked(ctx)
	c.mu.Unlock()

	c.notify()
	return nil
}

// Stop cancels the in-flight response and waits for it to wind down.
// Text received so far is kept as is and open parts are marked done.
// No chunk is applied after Stop returns.
func (c *Chat) Stop() {
	c.mu.Lock()
	if !c.status.Busy() {
		c.mu.Unlock()
		return
	}
	c.gen++
	cancel, done := c.cancel, c.done
	c.closePartsLocked()
	c.streamIdx = -1
	c.status = StatusReady
	c.mu.Unlock()

	cancel()
	<-done
	c.logger.Debug("stream stopped", "conversation", c.id)
	c.notify()
}

// Reset stops any response and clears the history.
func (c *Chat) Reset() {
	c.Stop()
	c.mu.Lock()
	c.messages = nil
	c.err = nil
	c.finish = ""
	c.status = StatusReady
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until the current response, if any, has finished.
func (c *Chat) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce: a slow reader sees one pending signal, not a
// backlog. Call the returned func to unsubscribe.
func (c *Chat) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Chat) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// startLocked launches a stream for the current history. Caller holds mu.
func (c *Chat) startLocked(ctx context.Context) {
	c.err = nil
	c.finish = ""
	c.status = StatusSubmitted
	c.streamIdx = -1
	c.gen++

	req := uistream.Request{
		ID:       c.id,
		Model:    c.model,
		Messages: make([]uistream.UIMessage, 0, len(c.messages)),
	}
	for _, m := range c.messages {
		req.Messages = append(req.Messages, m.toUI())
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done

	go c.run(streamCtx, cancel, c.gen, req, done)
}

func (c *Chat) run(ctx context.Context, cancel context.CancelFunc, gen uint64, req uistream.Request, done chan struct{}) {
	defer close(done)
	defer cancel()

	start := time.Now()
	r, err := c.transport.Open(ctx, req)
	if err != nil {
		c.end(gen, err)
		return
	}
	defer r.Close()

	chunks := 0
	for r.Next() {
		if !c.apply(gen, r.Chunk()) {
			return
		}
		chunks++
	}
	c.end(gen, r.Err())

	c.logger.Debug("stream ended",
		"conversation", c.id,
		"chunks", chunks,
		"elapsed", time.Since(start),
	)
}

// apply folds one chunk into the state. It returns false once the
// stream has been superseded and should be abandoned.
func (c *Chat) apply(gen uint64, ch uistream.Chunk) bool {
	c.mu.Lock()
	if gen != c.gen || !c.status.Busy() {
		c.mu.Unlock()
		return false
	}

	if c.streamIdx < 0 {
		id := ch.MessageID
		if id == "" {
			id = uuid.NewString()
		}
		c.messages = append(c.messages, Message{
			ID:        id,
			Role:      uistream.RoleAssistant,
			CreatedAt: time.Now(),
		})
		c.streamIdx = len(c.messages) - 1
		c.status = StatusStreaming
	}
	msg := &c.messages[c.streamIdx]

	switch ch.Type {
	case uistream.ChunkReasoningStart:
		msg.Parts = append(msg.Parts, Part{Type: uistream.PartReasoning, ID: ch.ID, State: StateStreaming})
	case uistream.ChunkTextStart:
		msg.Parts = append(msg.Parts, Part{Type: uistream.PartText, ID: ch.ID, State: StateStreaming})
	case uistream.ChunkReasoningDelta:
		openPart(msg, uistream.PartReasoning, ch.ID).Text += ch.Delta
	case uistream.ChunkTextDelta:
		openPart(msg, uistream.PartText, ch.ID).Text += ch.Delta
	case uistream.ChunkReasoningEnd, uistream.ChunkTextEnd:
		if p := findPart(msg, ch.ID); p != nil {
			p.State = StateDone
		}
	case uistream.ChunkFinish:
		c.finish = ch.FinishReason
		c.closePartsLocked()
		c.streamIdx = -1
		c.status = StatusReady
	case uistream.ChunkAbort:
		c.closePartsLocked()
		c.streamIdx = -1
		c.status = StatusReady
	case uistream.ChunkError:
		c.closePartsLocked()
		c.streamIdx = -1
		c.err = &StreamError{Text: ch.ErrorText}
		c.status = StatusError
	default:
		// start, start-step, finish-step and unknown chunk types carry no content
	}
	c.mu.Unlock()

	c.notify()
	return true
}

// end records the outcome of a stream that was not superseded.
func (c *Chat) end(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.status.Busy() {
		c.mu.Unlock()
		return
	}
	c.closePartsLocked()
	c.streamIdx = -1
	if err != nil && !errors.Is(err, context.Canceled) {
		c.err = err
		c.status = StatusError
		c.logger.Warn("chat request failed", "conversation", c.id, "error", err)
	} else {
		c.status = StatusReady
	}
	c.mu.Unlock()
	c.notify()
}

// closePartsLocked marks every part of the streaming message done.
func (c *Chat) closePartsLocked() {
	if c.streamIdx < 0 {
		return
	}
	parts := c.messages[c.streamIdx].Parts
	for i := range parts {
		parts[i].State = StateDone
	}
}

func findPart(m *Message, id string) *Part {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		if m.Parts[i].ID == id {
			return &m.Parts[i]
		}
	}
	return nil
}

// openPart returns the part a delta belongs to, creating it when the
// stream skipped the start chunk.
func openPart(m *Message, typ, id string) *Part {
	if p := findPart(m, id); p != nil && p.Type == typ {
		return p
	}
	m.Parts = append(m.Parts, Part{Type: typ, ID: id, State: StateStreaming})
	return &m.Parts[len(m.Parts)-1]
}
