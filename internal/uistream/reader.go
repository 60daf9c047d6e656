package uistream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Deltas are small, but an error
// chunk can carry a long provider message.
const maxLineSize = 1024 * 1024

// Reader decodes a UI message stream. Use it like an iterator:
//
//	for r.Next() {
//		c := r.Chunk()
//		...
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	cur     Chunk
	err     error
	done    bool
}

// NewReader reads chunks from rc. Close releases rc.
func NewReader(rc io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{rc: rc, scanner: scanner}
}

// Next advances to the next chunk. It returns false at the [DONE]
// sentinel, at end of input, or on error.
func (r *Reader) Next() bool {
	if r.done || r.err != nil {
		return false
	}

	var data []string
	for {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				r.err = fmt.Errorf("read stream: %w", err)
				return false
			}
			r.done = true
			if len(data) == 0 {
				return false
			}
			return r.dispatch(data)
		}

		line := r.scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				return r.dispatch(data)
			}
		case strings.HasPrefix(line, ":"):
			// SSE comment (keepalive)
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: carry nothing we use
		}
	}
}

func (r *Reader) dispatch(data []string) bool {
	payload := strings.Join(data, "\n")
	if strings.TrimSpace(payload) == doneSentinel {
		r.done = true
		return false
	}

	var c Chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrMalformedChunk, err)
		return false
	}
	if c.Type == "" {
		r.err = fmt.Errorf("%w: missing type", ErrMalformedChunk)
		return false
	}
	r.cur = c
	return true
}

// Chunk returns the current chunk.
func (r *Reader) Chunk() Chunk { return r.cur }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Close releases the underlying stream. Closing mid-stream aborts the
// HTTP response body.
func (r *Reader) Close() error {
	r.done = true
	return r.rc.Close()
}
