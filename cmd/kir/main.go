// Kir is a chat front-end for hosted language models.
//
// The serve command runs a gateway that streams model replies to clients
// in the UI message stream format, together with a browser chat page.
// The chat and ask commands are terminal clients of a running gateway.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one, built-in
// defaults apply and the API key is read from GROQ_API_KEY.
//
// Usage:
//
//	kir serve              Start the gateway and web UI
//	kir chat               Interactive terminal chat
//	kir ask <question>     Ask a single question
//	kir models             List the gateway's models
//	kir init [dir]         Write an example config.yaml
//	kir version            Print version and build information
//	kir -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/kir/internal/buildinfo"
	"github.com/nugget/kir/internal/config"
	"github.com/nugget/kir/internal/conversation"
	"github.com/nugget/kir/internal/gateway"
	"github.com/nugget/kir/internal/health"
	"github.com/nugget/kir/internal/httpkit"
	"github.com/nugget/kir/internal/llm"
	"github.com/nugget/kir/internal/models"
	"github.com/nugget/kir/internal/transport"
	"github.com/nugget/kir/internal/tui"
	"github.com/nugget/kir/internal/web"
)

// main builds the OS-level environment and hands off to [run], which
// keeps os.Exit, os.Stdout and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
	model      string
	serverURL  string
}

// run is the real entry point for the kir command. Arguments are parsed
// by hand so that run can be called concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var opts options
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			opts.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			opts.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			opts.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case (args[i] == "-model" || args[i] == "-m") && i+1 < len(args):
			opts.model = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-model="):
			opts.model = strings.TrimPrefix(args[i], "-model=")
		case args[i] == "-server" && i+1 < len(args):
			opts.serverURL = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-server="):
			opts.serverURL = strings.TrimPrefix(args[i], "-server=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if opts.outputFmt == "" {
		opts.outputFmt = "text"
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, opts)
	case "chat":
		return runChat(ctx, stderr, opts)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: kir ask <question>")
		}
		return runAsk(ctx, stdout, stderr, opts, strings.Join(cmdArgs, " "))
	case "models":
		return runModels(ctx, stdout, opts)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Kir - chat with hosted language models")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kir [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the gateway and web UI")
	fmt.Fprintln(w, "  chat         Interactive terminal chat")
	fmt.Fprintln(w, "  ask          Ask a single question")
	fmt.Fprintln(w, "  models       List available models")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w, "  -m, -model <id>   Model for chat and ask (default: gateway default)")
	fmt.Fprintln(w, "  -server <url>     Gateway URL for chat, ask and models")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/kir/config.yaml, /etc/kir/config.yaml")
	return nil
}

// runServe runs the gateway with the web UI mounted until ctx is
// cancelled or SIGINT/SIGTERM arrives, then drains in-flight requests.
func runServe(ctx context.Context, stdout io.Writer, opts options) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Kir", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	// Reconfigure now that the desired level and format are known.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = config.NewLogger(stdout, level, cfg.LogFormat)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Provider.Name,
		"base_url", cfg.Provider.BaseURL,
		"model", cfg.Models.Default,
	)
	if !cfg.Provider.Configured() {
		logger.Warn("provider API key not set; chat requests will fail", "env", cfg.Provider.APIKeyEnv)
	}

	catalog, err := models.FromConfig(cfg.Models)
	if err != nil {
		return fmt.Errorf("model catalog: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := createLLMClient(cfg, logger)

	var providerStatus func() health.Status
	if cfg.Provider.Configured() {
		watcher := health.Watch(ctx, health.Config{
			Name:   cfg.Provider.Name,
			Probe:  client.Ping,
			Logger: logger,
		})
		defer watcher.Stop()
		providerStatus = watcher.Status
	}

	gw := gateway.NewServer(gateway.Config{
		Address:           cfg.Listen.Address,
		Port:              cfg.Listen.Port,
		Credentialed:      cfg.Provider.Configured(),
		APIKeyEnv:         cfg.Provider.APIKeyEnv,
		SystemPrompt:      cfg.Gateway.SystemPrompt,
		MaxDuration:       cfg.Gateway.MaxDuration,
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		ProviderStatus:    providerStatus,
	}, client, catalog, logger)

	// Browser sessions reach the chat endpoint over loopback, the same
	// way a remote client would.
	selfURL := loopbackURL(cfg.Listen)
	ui := web.NewWebServer(web.Config{
		BrandName: "Kir",
		Catalog:   catalog,
		Transport: func() conversation.Transport { return transport.NewHTTP(selfURL, logger) },
		Logger:    logger,
	})
	gw.Mount(ui.RegisterRoutes)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// runChat runs the terminal chat client against a gateway. The UI owns
// the terminal, so only errors are logged.
func runChat(ctx context.Context, stderr io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, slog.LevelError, cfg.LogFormat)

	gwc := transport.NewHTTP(serverURL(cfg, opts), logger)
	catalog, err := gwc.Models(ctx)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	chat := conversation.New(gwc, logger)
	if err := selectModel(chat, catalog, opts.model); err != nil {
		return err
	}

	return tui.Run(ctx, tui.Config{
		BrandName: "Kir",
		Chat:      chat,
		Catalog:   catalog,
		Style:     "auto",
		Logger:    logger,
	})
}

// runModels lists the models the gateway offers.
func runModels(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(io.Discard, slog.LevelInfo, "text")

	catalog, err := transport.NewHTTP(serverURL(cfg, opts), logger).Models(ctx)
	if err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.Listing())
	}
	for _, m := range catalog.List() {
		marker := " "
		if m.ID == catalog.Default() {
			marker = "*"
		}
		if m.Label != m.ID {
			fmt.Fprintf(stdout, "%s %-32s %s\n", marker, m.ID, m.Label)
		} else {
			fmt.Fprintf(stdout, "%s %s\n", marker, m.ID)
		}
	}
	return nil
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used and must exist. When discovery
// finds nothing, the built-in defaults are returned with an empty path.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider client. Every configured model
// is routed to its provider; unmapped models fall through to the
// configured provider.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	provider := llm.NewOpenAIClient(llm.OpenAIConfig{
		Name:            cfg.Provider.Name,
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		MaxRetries:      cfg.Provider.MaxRetries,
		ReasoningEffort: cfg.Provider.ReasoningEffort,
		HTTPClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}, logger)

	multi := llm.NewMultiClient(provider)
	multi.AddProvider(cfg.Provider.Name, provider)
	for _, m := range cfg.Models.Available {
		multi.AddModel(m.ID, m.Provider)
	}
	return multi
}

// loopbackURL is the address the server can reach itself on.
func loopbackURL(l config.ListenConfig) string {
	host := l.Address
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "[::1]"
	}
	return fmt.Sprintf("http://%s:%d", host, l.Port)
}

func serverURL(cfg *config.Config, opts options) string {
	if opts.serverURL != "" {
		return opts.serverURL
	}
	return cfg.Client.ServerURL
}

// selectModel applies a -model flag, which must name a catalog model.
func selectModel(chat *conversation.Chat, catalog *models.Catalog, id string) error {
	if id == "" {
		chat.SetModel(catalog.Default())
		return nil
	}
	resolved, err := catalog.Resolve(id)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(catalog.IDs(), ", "))
	}
	chat.SetModel(resolved)
	return nil
}
