// Package tui is the terminal chat client.
package tui

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/render"
	"github.com/nugget/kir/internal/scroll"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	inputHeight   = 3
)

// Config holds what the terminal client needs.
type Config struct {
	BrandName string
	Chat      *conversation.Chat
	Catalog   *models.Catalog

	// Style is a glamour style name or "auto".
	Style string

	Logger *slog.Logger
}

// Model is the bubbletea model for a chat session.
type Model struct {
	ctx     context.Context
	brand   string
	chat    *conversation.Chat
	catalog *models.Catalog
	logger  *slog.Logger

	follower *scroll.Follower
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	style    string
	renderer *render.Terminal
	// rendered caches terminal output by message ID.
	rendered map[string]renderedText

	updates     <-chan struct{}
	unsubscribe func()

	showReasoning bool
	notice        string
	width         int
	height        int
	quitting      bool
}

type renderedText struct {
	source string
	out    string
}

// New creates the model. ctx bounds every request the session makes.
func New(ctx context.Context, cfg Config) (Model, error) {
	if cfg.BrandName == "" {
		cfg.BrandName = "Kir"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	renderer, err := render.NewTerminal(defaultWidth-2, cfg.Style)
	if err != nil {
		return Model{}, err
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "> "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.SetWidth(defaultWidth)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	updates, unsubscribe := cfg.Chat.Subscribe()

	m := Model{
		ctx:         ctx,
		brand:       cfg.BrandName,
		chat:        cfg.Chat,
		catalog:     cfg.Catalog,
		logger:      cfg.Logger.With("component", "tui"),
		follower:    scroll.NewFollower(),
		viewport:    viewport.New(defaultWidth, defaultHeight-inputHeight-4),
		input:       ta,
		spinner:     s,
		style:       cfg.Style,
		renderer:    renderer,
		rendered:    make(map[string]renderedText),
		updates:     updates,
		unsubscribe: unsubscribe,
		width:       defaultWidth,
		height:      defaultHeight,
	}
	m.refresh()
	return m, nil
}

// Init starts the cursor blink and the change listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForChange(m.updates),
	)
}

// Run drives the terminal client until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	m, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.unsubscribe()
	defer cfg.Chat.Stop()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err = p.Run()
	return err
}
