package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/kir/internal/config"
	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/uistream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var stdout bytes.Buffer
		if err := run(context.Background(), &stdout, io.Discard, args); err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(stdout.String(), "Usage: kir") {
			t.Errorf("run(%v) output missing usage: %q", args, stdout.String())
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"bogus"}, "unknown command: bogus"},
		{[]string{"--frobnicate"}, "unknown flag: --frobnicate"},
		{[]string{"-o", "xml", "version"}, "unknown output format"},
		{[]string{"ask"}, "usage: kir ask"},
		{[]string{"-config", "/nonexistent/kir.yaml", "models"}, "config file not found"},
	}
	for _, tt := range tests {
		err := run(context.Background(), io.Discard, io.Discard, tt.args)
		if err == nil {
			t.Errorf("run(%v) = nil, want error containing %q", tt.args, tt.want)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("run(%v) = %q, want it to contain %q", tt.args, err, tt.want)
		}
	}
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), &stdout, io.Discard, []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout.String(), "Kir ") || !strings.Contains(stdout.String(), "go_version:") {
		t.Errorf("version output = %q", stdout.String())
	}

	stdout.Reset()
	if err := run(context.Background(), &stdout, io.Discard, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("version json: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("decode version json: %v", err)
	}
	if info["version"] == "" {
		t.Errorf("json version missing version: %v", info)
	}
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.DefaultAPIKeyEnv, "gsk-test")

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty for defaults", path)
	}
	if !cfg.Provider.Configured() {
		t.Error("defaults should pick the API key up from the environment")
	}
}

func TestLoadConfig_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "listen:\n  port: 4321\nmodels:\n  default: m1\n  available:\n    - id: m1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, got, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Listen.Port != 4321 || cfg.Models.Default != "m1" {
		t.Errorf("config not applied: %+v", cfg)
	}
}

func TestLoopbackURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"", "http://127.0.0.1:3000"},
		{"0.0.0.0", "http://127.0.0.1:3000"},
		{"::", "http://[::1]:3000"},
		{"192.168.1.5", "http://192.168.1.5:3000"},
	}
	for _, tt := range tests {
		if got := loopbackURL(config.ListenConfig{Address: tt.addr, Port: 3000}); got != tt.want {
			t.Errorf("loopbackURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestSelectModel(t *testing.T) {
	cat, err := models.New([]models.Model{{ID: "a"}, {ID: "b"}}, "a")
	if err != nil {
		t.Fatal(err)
	}
	chat := conversation.New(nil, discardLogger())

	if err := selectModel(chat, cat, ""); err != nil || chat.Model() != "a" {
		t.Errorf("default: model = %q, err = %v", chat.Model(), err)
	}
	if err := selectModel(chat, cat, "b"); err != nil || chat.Model() != "b" {
		t.Errorf("explicit: model = %q, err = %v", chat.Model(), err)
	}
	if err := selectModel(chat, cat, "c"); err == nil || !strings.Contains(err.Error(), "available: a, b") {
		t.Errorf("unknown model error = %v", err)
	}
}

// fakeGateway serves canned model listings and chat streams.
func fakeGateway(t *testing.T, chat http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Listing{
			Default: "openai/gpt-oss-20b",
			Models: []models.Model{
				{ID: "openai/gpt-oss-120b", Label: "GPT OSS 120B"},
				{ID: "openai/gpt-oss-20b", Label: "openai/gpt-oss-20b"},
			},
		})
	})
	if chat != nil {
		mux.HandleFunc("POST /api/chat", chat)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func streamReply(text, reasoning string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uistream.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		sw := uistream.NewWriter(w)
		_ = sw.Write(uistream.Chunk{Type: uistream.ChunkStart, MessageID: "m1"})
		if reasoning != "" {
			_ = sw.Write(uistream.Chunk{Type: uistream.ChunkReasoningStart, ID: "r"})
			_ = sw.Write(uistream.Chunk{Type: uistream.ChunkReasoningDelta, ID: "r", Delta: reasoning})
			_ = sw.Write(uistream.Chunk{Type: uistream.ChunkReasoningEnd, ID: "r"})
		}
		_ = sw.Write(uistream.Chunk{Type: uistream.ChunkTextStart, ID: "t"})
		for _, word := range strings.SplitAfter(text, " ") {
			_ = sw.Write(uistream.Chunk{Type: uistream.ChunkTextDelta, ID: "t", Delta: word})
		}
		_ = sw.Write(uistream.Chunk{Type: uistream.ChunkTextEnd, ID: "t"})
		_ = sw.Write(uistream.Chunk{Type: uistream.ChunkFinish, FinishReason: "stop"})
		_ = sw.Done()
	}
}

func TestRun_Models(t *testing.T) {
	srv := fakeGateway(t, nil)

	var stdout bytes.Buffer
	if err := run(context.Background(), &stdout, io.Discard, []string{"-server", srv.URL, "models"}); err != nil {
		t.Fatalf("models: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "* openai/gpt-oss-20b") {
		t.Errorf("default model not marked: %q", out)
	}
	if !strings.Contains(out, "GPT OSS 120B") {
		t.Errorf("label missing: %q", out)
	}

	stdout.Reset()
	if err := run(context.Background(), &stdout, io.Discard, []string{"-server", srv.URL, "-o", "json", "models"}); err != nil {
		t.Fatalf("models json: %v", err)
	}
	var listing models.Listing
	if err := json.Unmarshal(stdout.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Default != "openai/gpt-oss-20b" || len(listing.Models) != 2 {
		t.Errorf("listing = %+v", listing)
	}
}

func TestRun_AskStreamsText(t *testing.T) {
	srv := fakeGateway(t, streamReply("The answer is 42.", ""))

	var stdout bytes.Buffer
	err := run(context.Background(), &stdout, io.Discard, []string{"-server", srv.URL, "ask", "what", "is", "it?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "The answer is 42." {
		t.Errorf("stdout = %q", got)
	}
}

func TestRun_AskJSON(t *testing.T) {
	srv := fakeGateway(t, streamReply("Hi.", "greeting"))

	var stdout bytes.Buffer
	err := run(context.Background(), &stdout, io.Discard, []string{"-server", srv.URL, "-o", "json", "-m", "openai/gpt-oss-120b", "ask", "hello"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var res askResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v (%q)", err, stdout.String())
	}
	if res.Text != "Hi." || res.Reasoning != "greeting" || res.FinishReason != "stop" {
		t.Errorf("result = %+v", res)
	}
	if res.Model != "openai/gpt-oss-120b" {
		t.Errorf("model = %q", res.Model)
	}
}

func TestRun_AskMissingCredentials(t *testing.T) {
	srv := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Missing GROQ_API_KEY", http.StatusInternalServerError)
	})

	err := run(context.Background(), io.Discard, io.Discard, []string{"-server", srv.URL, "ask", "hello"})
	if err == nil {
		t.Fatal("ask succeeded, want error")
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("error = %q, want it to name the missing key", err)
	}
}
