package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/uistream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	reasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true).
			PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(m.help()))
	return b.String()
}

func (m Model) header() string {
	model := m.chat.Model()
	if model == "" && m.catalog != nil {
		model = m.catalog.Default()
	}
	if m.catalog != nil {
		if info, ok := m.catalog.Lookup(model); ok && info.Label != "" {
			model = info.Label
		}
	}
	return titleStyle.Render(fmt.Sprintf("%s | %s", m.brand, model))
}

func (m Model) statusLine() string {
	var parts []string
	switch st := m.chat.Status(); st {
	case conversation.StatusSubmitted:
		parts = append(parts, m.spinner.View()+" Waiting for a reply...")
	case conversation.StatusStreaming:
		parts = append(parts, m.spinner.View()+" Streaming (esc to stop)")
	case conversation.StatusError:
		parts = append(parts, errorStyle.Render("Error: "+conversation.Describe(m.chat.Err())+" (ctrl+r to retry)"))
	}
	if m.notice != "" {
		parts = append(parts, errorStyle.Render(m.notice))
	}
	if !m.follower.Pinned() {
		parts = append(parts, hintStyle.Render("[end] jump to latest"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) help() string {
	if m.chat.Status().Busy() {
		return "esc stop | pgup/pgdn scroll | ctrl+t reasoning | ctrl+c quit"
	}
	return "enter send | alt+enter newline | tab model | ctrl+r regenerate | ctrl+t reasoning | ctrl+n new | ctrl+c quit"
}

// refresh redraws the conversation into the viewport and follows it
// when pinned.
func (m *Model) refresh() {
	st := m.chat.State()

	var b strings.Builder
	if len(st.Messages) == 0 {
		b.WriteString(hintStyle.Render("What can I help with?"))
	}
	for i, msg := range st.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}

	m.viewport.SetContent(b.String())
	if m.follower.ContentChanged() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessage(msg conversation.Message) string {
	if msg.Role == uistream.RoleUser {
		return userStyle.Render("> ") + msg.Text()
	}

	var b strings.Builder
	if reasoning := msg.Reasoning(); reasoning != "" {
		switch {
		case msg.ReasoningStreaming():
			b.WriteString(reasoningStyle.Render(m.spinner.View() + " Thinking..."))
			if m.showReasoning {
				b.WriteString("\n")
				b.WriteString(reasoningStyle.Render(reasoning))
			}
		case m.showReasoning:
			b.WriteString(reasoningStyle.Render("Reasoning (ctrl+t to hide)"))
			b.WriteString("\n")
			b.WriteString(reasoningStyle.Render(reasoning))
		default:
			b.WriteString(reasoningStyle.Render("Reasoning hidden (ctrl+t to show)"))
		}
		b.WriteString("\n")
	}

	if text := msg.Text(); text != "" {
		b.WriteString(m.renderMarkdown(msg.ID, text))
	}
	return b.String()
}

func (m *Model) renderMarkdown(id, md string) string {
	if c, ok := m.rendered[id]; ok && c.source == md {
		return c.out
	}
	out := m.renderer.Render(md)
	m.rendered[id] = renderedText{source: md, out: out}
	return out
}

func noticeText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Type a message first."
	case errors.Is(err, conversation.ErrBusy):
		return "Wait for the current answer, or press esc."
	case errors.Is(err, conversation.ErrNothingToRegenerate):
		return "There is nothing to regenerate yet."
	}
	return err.Error()
}
