package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/nugget/kir/internal/config"
	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/render"
	"github.com/nugget/kir/internal/transport"
	"github.com/nugget/kir/internal/uistream"
)

// askResult is the JSON form of an answer.
type askResult struct {
	Model        string `json:"model,omitempty"`
	Text         string `json:"text"`
	Reasoning    string `json:"reasoning,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// runAsk sends one question to the gateway. On a terminal the answer is
// rendered as markdown once complete; otherwise text streams to stdout
// as it arrives. SIGINT stops the answer and keeps what was received.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, opts options, question string) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stderr, max(level, slog.LevelWarn), cfg.LogFormat)

	chat := conversation.New(transport.NewHTTP(serverURL(cfg, opts), logger), logger)
	chat.SetModel(opts.model)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := chat.Subscribe()
	defer unsubscribe()

	if err := chat.Send(ctx, question); err != nil {
		return err
	}

	fd, tty := terminalFd(stdout)
	streamText := !tty && opts.outputFmt == "text"
	printed := 0

	for done := false; !done; {
		select {
		case <-ctx.Done():
			chat.Stop()
			done = true
		case <-updates:
			st := chat.State()
			if streamText {
				if text := replyText(st.Messages); len(text) > printed {
					if _, err := io.WriteString(stdout, text[printed:]); err != nil {
						chat.Stop()
						return err
					}
					printed = len(text)
				}
			}
			done = !st.Status.Busy()
		}
	}

	st := chat.State()
	if st.Status == conversation.StatusError {
		return errors.New(conversation.Describe(st.Err))
	}
	reply := lastReply(st.Messages)

	switch {
	case opts.outputFmt == "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{
			Model:        st.Model,
			Text:         reply.Text(),
			Reasoning:    reply.Reasoning(),
			FinishReason: chat.FinishReason(),
		})
	case tty:
		width := 80
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
		r, err := render.NewTerminal(width, "auto")
		if err != nil {
			return fmt.Errorf("terminal renderer: %w", err)
		}
		fmt.Fprintln(stdout, r.Render(reply.Text()))
	default:
		fmt.Fprintln(stdout)
	}
	return nil
}

// terminalFd reports whether w is a terminal, and its descriptor.
func terminalFd(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

func lastReply(msgs []conversation.Message) conversation.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == uistream.RoleAssistant {
		return msgs[n-1]
	}
	return conversation.Message{}
}

func replyText(msgs []conversation.Message) string {
	return lastReply(msgs).Text()
}
