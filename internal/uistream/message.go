package uistream

import "strings"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part types.
const (
	PartText      = "text"
	PartReasoning = "reasoning"
)

// UIPart is one piece of a UI message.
type UIPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	State string `json:"state,omitempty"`
}

// UIMessage is a conversation message as clients send it to the gateway.
type UIMessage struct {
	ID    string   `json:"id,omitempty"`
	Role  string   `json:"role"`
	Parts []UIPart `json:"parts"`
}

// Text concatenates the message's text parts. Reasoning parts are
// presentation-only and never sent back to the model.
func (m UIMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Request is the body of a chat request.
type Request struct {
	ID       string      `json:"id,omitempty"`
	Messages []UIMessage `json:"messages"`
	Model    string      `json:"model,omitempty"`
}
