package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nugget/kir/internal/render"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follower.UserScrolled(m.viewport.AtBottom())
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case changedMsg:
		m.refresh()
		cmds := []tea.Cmd{waitForChange(m.updates)}
		if m.chat.Status().Busy() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if !m.chat.Status().Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch msg.String() {
	case "ctrl+c", "ctrl+d":
		m.chat.Stop()
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if m.chat.Status().Busy() {
			return m, nil
		}
		if err := m.chat.Send(m.ctx, m.input.Value()); err != nil {
			m.notice = noticeText(err)
			return m, nil
		}
		m.input.Reset()
		m.follower.Follow()
		m.refresh()
		return m, m.spinner.Tick

	case "esc":
		m.chat.Stop()
		m.refresh()
		return m, nil

	case "tab":
		if m.catalog != nil {
			m.chat.SetModel(m.catalog.Next(m.chat.Model()))
		}
		return m, nil

	case "ctrl+r":
		if err := m.chat.Regenerate(m.ctx); err != nil {
			m.notice = noticeText(err)
			return m, nil
		}
		m.follower.Follow()
		m.refresh()
		return m, m.spinner.Tick

	case "ctrl+t":
		m.showReasoning = !m.showReasoning
		m.refresh()
		return m, nil

	case "ctrl+n":
		m.chat.Reset()
		m.follower.Follow()
		m.refresh()
		return m, nil

	case "end":
		m.follower.Follow()
		m.viewport.GotoBottom()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follower.UserScrolled(m.viewport.AtBottom())
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize lays the screen out for a new terminal size. Rendered messages
// are wrapped to the width, so the cache is dropped.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-inputHeight-4, 1)
	m.input.SetWidth(width)

	if r, err := render.NewTerminal(max(width-2, 20), m.style); err == nil {
		m.renderer = r
		clear(m.rendered)
	} else {
		m.logger.Warn("terminal renderer rebuild failed", "error", err)
	}
	m.refresh()
}
