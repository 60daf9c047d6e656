// Package gateway implements the chat HTTP API: it validates chat
// requests, forwards them to the model provider and streams the answer
// back as a UI message stream.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nugget/kir/internal/buildinfo"
	"github.com/nugget/kir/internal/health"
	"github.com/nugget/kir/internal/llm"
	"github.com/nugget/kir/internal/models"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Config holds the gateway settings.
type Config struct {
	Address string
	Port    int

	// Credentialed reports whether the provider API key is set. When
	// false every chat request fails with a "Missing <APIKeyEnv>" body.
	Credentialed bool
	APIKeyEnv    string

	SystemPrompt string

	// MaxDuration bounds one provider stream. Zero means no bound.
	MaxDuration time.Duration

	// RequestsPerMinute caps chat requests. Zero disables the limit.
	RequestsPerMinute int

	// WriteTimeout bounds idle time between stream writes.
	WriteTimeout time.Duration

	// ProviderStatus reports provider reachability for /health. Optional.
	ProviderStatus func() health.Status
}

// Server is the chat HTTP server.
type Server struct {
	cfg     Config
	llm     llm.Client
	catalog *models.Catalog
	limiter *rate.Limiter
	mounts  []func(*http.ServeMux)
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a gateway server.
func NewServer(cfg Config, client llm.Client, catalog *models.Catalog, logger *slog.Logger) *Server {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		llm:     client,
		catalog: catalog,
		logger:  logger.With("component", "gateway"),
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return s
}

// Mount registers extra routes (such as the web UI) on the server's mux.
// Must be called before Start.
func (s *Server) Mount(register func(*http.ServeMux)) {
	s.mounts = append(s.mounts, register)
}

// Handler returns the server's routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/models", s.handleModels)

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	for _, register := range s.mounts {
		register(mux)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting gateway",
		"address", addr,
		"port", s.cfg.Port,
		"credentialed", s.cfg.Credentialed,
		"default_model", s.catalog.Default(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response status for request logging. It
// forwards Flush and Hijack so streaming and websocket upgrades keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to a websocket upgrader. The status is
// recorded as 101 since nothing else will be written through r.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

// healthResponse is the /health body.
type healthResponse struct {
	Status   string         `json:"status"` // healthy, degraded or unconfigured
	Provider *health.Status `json:"provider,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.cfg.ProviderStatus != nil {
		st := s.cfg.ProviderStatus()
		resp.Provider = &st
		if st.Checked && !st.Ready {
			resp.Status = "degraded"
		}
	}
	if !s.cfg.Credentialed {
		resp.Status = "unconfigured"
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.catalog.Listing(), s.logger)
}

// textError writes a plain-text error body exactly as given.
func textError(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
