package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Terminal renders markdown as ANSI text.
type Terminal struct {
	r *glamour.TermRenderer
}

// NewTerminal creates a terminal renderer wrapping at width columns.
// style is a glamour style name ("dark", "light", "notty") or "auto".
// NO_COLOR forces "notty".
func NewTerminal(width int, style string) (*Terminal, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	switch {
	case os.Getenv("NO_COLOR") != "":
		opts = append(opts, glamour.WithStylePath("notty"))
	case style == "" || style == "auto":
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Terminal{r: r}, nil
}

// Render converts markdown to ANSI text. On failure the markdown is
// returned unchanged.
func (t *Terminal) Render(md string) string {
	out, err := t.r.Render(CloseOpenFence(md))
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
