package conversation

import (
	"strings"
	"time"

	"github.com/nugget/kir/internal/uistream"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusReady accepts a new message.
	StatusReady Status = "ready"
	// StatusSubmitted means a request is in flight and nothing has
	// arrived yet.
	StatusSubmitted Status = "submitted"
	// StatusStreaming means the assistant message is being appended to.
	StatusStreaming Status = "streaming"
	// StatusError means the last request failed. A new message clears it.
	StatusError Status = "error"
)

// Busy reports whether a response is in flight.
func (s Status) Busy() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// PartState tells whether a part can still grow.
type PartState string

const (
	StateStreaming PartState = "streaming"
	StateDone      PartState = "done"
)

// Part is a text or reasoning segment of a message.
type Part struct {
	Type  string    `json:"type"` // uistream.PartText or uistream.PartReasoning
	ID    string    `json:"id,omitempty"`
	Text  string    `json:"text"`
	State PartState `json:"state"`
}

// Message is one entry in the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	return m.join(uistream.PartText)
}

// Reasoning concatenates the message's reasoning parts.
func (m Message) Reasoning() string {
	return m.join(uistream.PartReasoning)
}

// Streaming reports whether any part is still open.
func (m Message) Streaming() bool {
	for _, p := range m.Parts {
		if p.State == StateStreaming {
			return true
		}
	}
	return false
}

// ReasoningStreaming reports whether reasoning is still arriving.
func (m Message) ReasoningStreaming() bool {
	for _, p := range m.Parts {
		if p.Type == uistream.PartReasoning && p.State == StateStreaming {
			return true
		}
	}
	return false
}

func (m Message) join(typ string) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == typ {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (m Message) clone() Message {
	m.Parts = append([]Part(nil), m.Parts...)
	return m
}

func (m Message) toUI() uistream.UIMessage {
	ui := uistream.UIMessage{ID: m.ID, Role: m.Role, Parts: make([]uistream.UIPart, 0, len(m.Parts))}
	for _, p := range m.Parts {
		ui.Parts = append(ui.Parts, uistream.UIPart{Type: p.Type, Text: p.Text, State: string(StateDone)})
	}
	return ui
}
