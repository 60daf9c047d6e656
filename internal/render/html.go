// Package render turns model output (markdown) into HTML for the browser
// and ANSI text for terminals.
package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle is the chroma style used for code blocks.
const DefaultStyle = "github-dark"

// classPattern limits the class attributes that survive sanitizing to
// the ones chroma and the code block wrapper emit.
var classPattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// HTML renders markdown to sanitized HTML. It is safe for concurrent use.
type HTML struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	style  *chroma.Style
	fmt    *chromahtml.Formatter
}

// NewHTML creates an HTML renderer using the named chroma style.
func NewHTML(style string) *HTML {
	s := chromaStyles.Get(style)
	if s == nil {
		s = chromaStyles.Fallback
	}
	f := chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(4))

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{style: s, formatter: f}, 100)),
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(classPattern).OnElements("span", "pre", "code", "div")
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &HTML{md: md, policy: policy, style: s, fmt: f}
}

var (
	defaultHTML     *HTML
	defaultHTMLOnce sync.Once
)

// ToHTML renders markdown with the default style.
func ToHTML(md string) string {
	defaultHTMLOnce.Do(func() { defaultHTML = NewHTML(DefaultStyle) })
	return defaultHTML.Render(md)
}

// Render converts markdown to sanitized HTML. A code fence left open by
// a partial stream is closed first so the rest of the text is not
// swallowed into it. Conversion failures fall back to escaped text.
func (h *HTML) Render(md string) string {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(CloseOpenFence(md)), &buf); err != nil {
		return "<p>" + html.EscapeString(md) + "</p>"
	}
	return h.policy.Sanitize(buf.String())
}

// CSS returns the stylesheet for highlighted code.
func (h *HTML) CSS() string {
	var buf bytes.Buffer
	if err := h.fmt.WriteCSS(&buf, h.style); err != nil {
		return ""
	}
	return buf.String()
}

// codeBlockRenderer renders code blocks through chroma, under a header
// naming the language.
type codeBlockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.render)
	reg.Register(ast.KindCodeBlock, r.render)
}

func (r *codeBlockRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var lang string
	if fc, ok := node.(*ast.FencedCodeBlock); ok {
		if l := fc.Language(source); l != nil {
			lang = string(l)
		}
	}

	var code strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	label := lang
	if label == "" {
		label = "text"
	}
	fmt.Fprintf(w, `<div class="code-block"><div class="code-header"><span class="code-lang">%s</span></div>`, html.EscapeString(label))

	if err := r.highlight(w, lang, code.String()); err != nil {
		fmt.Fprintf(w, "<pre><code>%s</code></pre>", html.EscapeString(code.String()))
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

func (r *codeBlockRenderer) highlight(w util.BufWriter, lang, code string) error {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}
	return r.formatter.Format(w, r.style, it)
}

// CloseOpenFence appends a closing fence when md ends inside a fenced
// code block, as happens mid-stream.
func CloseOpenFence(md string) string {
	var open string
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 {
			continue
		}
		marker := fenceMarker(trimmed)
		if marker == "" {
			continue
		}
		switch {
		case open == "":
			open = marker
		case marker[0] == open[0] && len(marker) >= len(open) && strings.TrimSpace(trimmed[len(marker):]) == "":
			open = ""
		}
	}
	if open == "" {
		return md
	}
	if !strings.HasSuffix(md, "\n") {
		md += "\n"
	}
	return md + open
}

// fenceMarker returns the run of three or more backticks or tildes that
// starts line, or "".
func fenceMarker(line string) string {
	if line == "" || (line[0] != '`' && line[0] != '~') {
		return ""
	}
	n := 0
	for n < len(line) && line[n] == line[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return line[:n]
}
