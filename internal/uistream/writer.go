package uistream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	h.Set(ProtocolHeader, ProtocolVersion)
}

// Writer encodes chunks as server-sent events. The first write error is
// sticky: later writes are no-ops returning the same error, so callers
// can keep a simple happy path and check Err once.
type Writer struct {
	w     io.Writer
	flush func()
	err   error
}

// NewWriter wraps w. If w can flush (an http.ResponseWriter usually
// can), every chunk is flushed as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	return sw
}

// Write encodes one chunk.
func (w *Writer) Write(c Chunk) error {
	if w.err != nil {
		return w.err
	}
	data, err := json.Marshal(c)
	if err != nil {
		w.err = fmt.Errorf("marshal chunk: %w", err)
		return w.err
	}
	return w.raw("data: " + string(data) + "\n\n")
}

// Comment writes an SSE comment, which clients ignore. Used as a
// keepalive while the provider is thinking.
func (w *Writer) Comment(text string) error {
	return w.raw(": " + text + "\n\n")
}

// Done writes the terminating sentinel.
func (w *Writer) Done() error {
	return w.raw("data: " + doneSentinel + "\n\n")
}

// Err returns the first write error.
func (w *Writer) Err() error { return w.err }

func (w *Writer) raw(s string) error {
	if w.err != nil {
		return w.err
	}
	if _, err := io.WriteString(w.w, s); err != nil {
		w.err = fmt.Errorf("write stream: %w", err)
		return w.err
	}
	w.flush()
	return nil
}
