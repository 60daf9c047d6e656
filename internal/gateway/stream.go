package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/kir/internal/llm"
	"github.com/nugget/kir/internal/uistream"
)

// stream turns provider events into UI message stream chunks. Reasoning
// and text arrive as separate blocks; a block is closed whenever the
// event kind changes, so deltas always belong to the open block.
type stream struct {
	mu       sync.Mutex
	w        *uistream.Writer
	rc       *http.ResponseController
	deadline time.Duration
	logger   *slog.Logger

	openKind llm.StreamEventKind
	openID   string
}

func newStream(w http.ResponseWriter, deadline time.Duration, logger *slog.Logger) *stream {
	return &stream{
		w:        uistream.NewWriter(w),
		rc:       http.NewResponseController(w),
		deadline: deadline,
		logger:   logger,
	}
}

func (s *stream) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(uistream.Chunk{Type: uistream.ChunkStart, MessageID: uuid.NewString()})
	s.write(uistream.Chunk{Type: uistream.ChunkStartStep})
}

// event is the provider stream callback.
func (s *stream) event(e llm.StreamEvent) {
	if e.Kind == llm.KindDone {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == "" || s.openKind != e.Kind {
		s.closeBlock()
		s.openKind = e.Kind
		s.openID = uuid.NewString()
		start := uistream.ChunkTextStart
		if e.Kind == llm.KindReasoning {
			start = uistream.ChunkReasoningStart
		}
		s.write(uistream.Chunk{Type: start, ID: s.openID})
	}

	delta := uistream.ChunkTextDelta
	if e.Kind == llm.KindReasoning {
		delta = uistream.ChunkReasoningDelta
	}
	s.write(uistream.Chunk{Type: delta, ID: s.openID, Delta: e.Token})
}

func (s *stream) finish(resp *llm.ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBlock()

	reason := ""
	if resp != nil {
		reason = finishReason(resp.FinishReason)
	}
	s.write(uistream.Chunk{Type: uistream.ChunkFinishStep})
	s.write(uistream.Chunk{Type: uistream.ChunkFinish, FinishReason: reason})
	s.done()
}

func (s *stream) fail(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBlock()
	s.write(uistream.Chunk{Type: uistream.ChunkError, ErrorText: text})
	s.done()
}

// keepalive writes SSE comments until the returned stop func is called.
// Stop blocks until the keepalive goroutine has exited.
func (s *stream) keepalive(every time.Duration) (stop func()) {
	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				s.mu.Lock()
				_ = s.w.Comment("keepalive")
				s.extendDeadline()
				s.mu.Unlock()
			}
		}
	}()
	return func() {
		close(quit)
		<-exited
	}
}

func (s *stream) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Err()
}

// closeBlock ends the open reasoning or text block. Caller holds mu.
func (s *stream) closeBlock() {
	if s.openID == "" {
		return
	}
	end := uistream.ChunkTextEnd
	if s.openKind == llm.KindReasoning {
		end = uistream.ChunkReasoningEnd
	}
	s.write(uistream.Chunk{Type: end, ID: s.openID})
	s.openID = ""
}

func (s *stream) done() {
	_ = s.w.Done()
}

// write emits a chunk and pushes the write deadline forward. Caller holds mu.
func (s *stream) write(c uistream.Chunk) {
	if err := s.w.Write(c); err != nil {
		return
	}
	s.logger.Log(context.Background(), llm.LevelTrace, "stream chunk", "type", c.Type)
	s.extendDeadline()
}

func (s *stream) extendDeadline() {
	if s.deadline <= 0 {
		return
	}
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.deadline)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("failed to reset write deadline", "error", err)
	}
}

// finishReason maps provider finish reasons onto the stream's vocabulary.
func finishReason(r string) string {
	switch r {
	case "":
		return ""
	case "stop", "length":
		return r
	case "content_filter":
		return "content-filter"
	case "tool_calls", "function_call":
		return "tool-calls"
	}
	return "other"
}
