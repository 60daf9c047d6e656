// Package uistream implements the UI message stream spoken between the
// gateway and chat clients: server-sent events carrying one JSON chunk
// each, terminated by a "[DONE]" sentinel.
//
// A typical response looks like:
//
//	data: {"type":"start","messageId":"..."}
//	data: {"type":"reasoning-start","id":"r1"}
//	data: {"type":"reasoning-delta","id":"r1","delta":"The user wants"}
//	data: {"type":"reasoning-end","id":"r1"}
//	data: {"type":"text-start","id":"t1"}
//	data: {"type":"text-delta","id":"t1","delta":"Hello"}
//	data: {"type":"text-end","id":"t1"}
//	data: {"type":"finish","finishReason":"stop"}
//	data: [DONE]
//
// The chunk vocabulary matches the AI SDK UI message stream (v1), so
// browser clients built on that SDK can consume the gateway directly.
package uistream

// Response headers identifying the stream protocol.
const (
	ProtocolHeader  = "x-vercel-ai-ui-message-stream"
	ProtocolVersion = "v1"
	ContentType     = "text/event-stream"
)

// doneSentinel terminates a stream.
const doneSentinel = "[DONE]"

// ChunkType identifies a stream chunk.
type ChunkType string

// Chunk types.
const (
	ChunkStart          ChunkType = "start"
	ChunkStartStep      ChunkType = "start-step"
	ChunkReasoningStart ChunkType = "reasoning-start"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkReasoningEnd   ChunkType = "reasoning-end"
	ChunkTextStart      ChunkType = "text-start"
	ChunkTextDelta      ChunkType = "text-delta"
	ChunkTextEnd        ChunkType = "text-end"
	ChunkFinishStep     ChunkType = "finish-step"
	ChunkFinish         ChunkType = "finish"
	ChunkError          ChunkType = "error"
	ChunkAbort          ChunkType = "abort"
)

// Chunk is one event in a UI message stream. Which fields are set
// depends on Type.
type Chunk struct {
	Type ChunkType `json:"type"`

	// ID identifies the text or reasoning part a start/delta/end chunk
	// belongs to.
	ID string `json:"id,omitempty"`

	// MessageID is set on start chunks.
	MessageID string `json:"messageId,omitempty"`

	// Delta is the incremental text for delta chunks.
	Delta string `json:"delta,omitempty"`

	// ErrorText is set on error chunks.
	ErrorText string `json:"errorText,omitempty"`

	// FinishReason is optionally set on finish chunks.
	FinishReason string `json:"finishReason,omitempty"`
}

// Terminal reports whether no further content follows this chunk.
func (c Chunk) Terminal() bool {
	switch c.Type {
	case ChunkFinish, ChunkError, ChunkAbort:
		return true
	}
	return false
}
