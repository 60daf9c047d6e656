package tui

// changedMsg reports that the conversation changed.
type changedMsg struct{}
