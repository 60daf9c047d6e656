package uistream

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, body string) ([]Chunk, error) {
	t.Helper()
	r := NewReader(io.NopCloser(strings.NewReader(body)))
	defer r.Close()

	var chunks []Chunk
	for r.Next() {
		chunks = append(chunks, r.Chunk())
	}
	return chunks, r.Err()
}

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	sent := []Chunk{
		{Type: ChunkStart, MessageID: "m1"},
		{Type: ChunkReasoningStart, ID: "r1"},
		{Type: ChunkReasoningDelta, ID: "r1", Delta: "thinking\nhard"},
		{Type: ChunkReasoningEnd, ID: "r1"},
		{Type: ChunkTextStart, ID: "t1"},
		{Type: ChunkTextDelta, ID: "t1", Delta: "Hello"},
		{Type: ChunkTextEnd, ID: "t1"},
		{Type: ChunkFinish, FinishReason: "stop"},
	}
	for _, c := range sent {
		require.NoError(t, w.Write(c))
	}
	require.NoError(t, w.Comment("keepalive"))
	require.NoError(t, w.Done())

	got, err := readAll(t, buf.String())
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestReader_StopsAtDone(t *testing.T) {
	body := "data: {\"type\":\"text-delta\",\"id\":\"t\",\"delta\":\"a\"}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"type\":\"text-delta\",\"id\":\"t\",\"delta\":\"ignored\"}\n\n"

	got, err := readAll(t, body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Delta)
}

func TestReader_IgnoresEventLinesAndComments(t *testing.T) {
	body := ": ping\n\nevent: message\nid: 7\ndata: {\"type\":\"finish\"}\n\n"

	got, err := readAll(t, body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ChunkFinish, got[0].Type)
}

func TestReader_EOFWithoutTrailingBlankLine(t *testing.T) {
	got, err := readAll(t, `data: {"type":"finish"}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReader_Malformed(t *testing.T) {
	_, err := readAll(t, "data: {not json}\n\n")
	assert.ErrorIs(t, err, ErrMalformedChunk)

	_, err = readAll(t, "data: {\"delta\":\"x\"}\n\n")
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestWriter_FlushesAndSetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	w := NewWriter(rec)
	require.NoError(t, w.Write(Chunk{Type: ChunkStart}))

	assert.True(t, rec.Flushed)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, ProtocolVersion, rec.Header().Get(ProtocolHeader))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

func TestWriter_StickyError(t *testing.T) {
	w := NewWriter(brokenWriter{})
	err := w.Write(Chunk{Type: ChunkStart})
	require.Error(t, err)
	assert.Equal(t, err, w.Done())
	assert.Equal(t, err, w.Err())
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"missing key", http.StatusInternalServerError, "Missing GROQ_API_KEY", ErrMissingCredentials},
		{"invalid json", http.StatusBadRequest, "Invalid JSON\n", ErrInvalidJSON},
		{"invalid request", http.StatusBadRequest, "Invalid request", ErrInvalidRequest},
		{"rate limited", http.StatusTooManyRequests, "Too many requests", ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyResponse(tt.status, tt.body)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := ClassifyResponse(http.StatusBadGateway, "upstream down")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	for _, sentinel := range []error{ErrMissingCredentials, ErrInvalidJSON, ErrInvalidRequest, ErrRateLimited} {
		assert.NotErrorIs(t, err, sentinel)
	}
}

func TestUIMessage_Text(t *testing.T) {
	m := UIMessage{
		Role: RoleAssistant,
		Parts: []UIPart{
			{Type: PartReasoning, Text: "hidden"},
			{Type: PartText, Text: "Hello, "},
			{Type: PartText, Text: "world"},
		},
	}
	assert.Equal(t, "Hello, world", m.Text())
}
