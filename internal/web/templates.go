package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/nugget/kir/internal/buildinfo"
	"github.com/nugget/kir/internal/models"
)

//go:embed templates/*.html
var templateFiles embed.FS

// PageData is the template context shared by all pages.
type PageData struct {
	BrandName string
	Version   string
}

// ChatData is the template context for the chat page.
type ChatData struct {
	PageData
	Models       []models.Model
	DefaultModel string
}

// loadTemplates parses the layout and each page template. Each page
// template is a clone of the layout with the page-specific blocks
// overridden. Panics on syntax errors so that startup fails fast.
func loadTemplates() map[string]*template.Template {
	layout := template.Must(
		template.New("layout.html").ParseFS(templateFiles, "templates/layout.html"),
	)

	pages := []string{"chat.html"}
	result := make(map[string]*template.Template, len(pages))

	for _, page := range pages {
		t := template.Must(layout.Clone())
		template.Must(t.ParseFS(templateFiles, "templates/"+page))
		result[page] = t
	}

	return result
}

// render executes a named page template inside the layout.
func (s *WebServer) render(w http.ResponseWriter, name string, data any) {
	t, ok := s.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}

// handleChat renders the chat page.
func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	data := ChatData{
		PageData: PageData{
			BrandName: s.brandName,
			Version:   buildinfo.Version,
		},
	}
	if s.catalog != nil {
		data.Models = s.catalog.List()
		data.DefaultModel = s.catalog.Default()
	}
	s.render(w, "chat.html", data)
}
