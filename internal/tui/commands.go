package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// waitForChange blocks until the conversation changes. Update re-issues
// it after each change, so there is always one listener.
func waitForChange(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return changedMsg{}
	}
}
