// Package web provides the browser chat interface for Kir.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/render"
)

//go:embed static/*
var staticFiles embed.FS

// Config holds the dependencies for the web server.
type Config struct {
	BrandName string
	Catalog   *models.Catalog

	// Transport opens chat streams for a live session. Each session
	// calls it once.
	Transport func() conversation.Transport

	// PushRate caps snapshots per second sent to one browser.
	PushRate float64

	Logger *slog.Logger
}

// WebServer serves the chat page and its live sessions.
type WebServer struct {
	brandName string
	catalog   *models.Catalog
	transport func() conversation.Transport
	pushRate  float64
	html      *render.HTML
	templates map[string]*template.Template
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewWebServer creates a web server. Templates are parsed eagerly; a
// syntax error panics at startup.
func NewWebServer(cfg Config) *WebServer {
	if cfg.BrandName == "" {
		cfg.BrandName = "Kir"
	}
	if cfg.PushRate <= 0 {
		cfg.PushRate = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebServer{
		brandName: cfg.BrandName,
		catalog:   cfg.Catalog,
		transport: cfg.Transport,
		pushRate:  cfg.PushRate,
		html:      render.NewHTML(render.DefaultStyle),
		templates: loadTemplates(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: cfg.Logger.With("component", "web"),
	}
}

// RegisterRoutes adds the chat UI routes to a mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(subFS)))

	mux.HandleFunc("GET /{$}", s.handleChat)
	mux.HandleFunc("GET /chat", s.handleChat)
	mux.HandleFunc("GET /static/highlight.css", s.handleHighlightCSS)
	mux.Handle("GET /static/", fileServer)
	mux.HandleFunc("GET /ws", s.handleSession)
}

func (s *WebServer) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(s.html.CSS()))
}
