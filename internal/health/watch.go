// Package health tracks whether the model provider is reachable.
//
// A Watcher probes right away, retries with exponential backoff while
// the provider is down, and polls at a steady interval once it is up.
// Transport-level retries live in httpkit; this package covers outages
// lasting seconds to minutes.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Probe checks reachability. It returns nil when healthy.
type Probe func(ctx context.Context) error

// Config configures a Watcher. Zero durations take the defaults.
type Config struct {
	Name  string
	Probe Probe

	InitialDelay time.Duration // first retry after a failure (default 2s)
	MaxDelay     time.Duration // backoff ceiling (default 60s)
	PollInterval time.Duration // check interval while healthy (default 60s)
	ProbeTimeout time.Duration // per-probe limit (default 10s)

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Status is a point-in-time view of a watched service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Checked   bool      `json:"checked"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors one service.
type Watcher struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ready     bool
	checked   bool
	lastErr   error
	lastCheck time.Time
}

// Watch starts a watcher that runs until ctx ends or Stop is called.
// It panics on a missing Name or Probe.
func Watch(ctx context.Context, cfg Config) *Watcher {
	if cfg.Name == "" || cfg.Probe == nil {
		panic("health: Config needs a Name and a Probe")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	go w.run(ctx)
	return w
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Status returns the current status.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Name:      w.cfg.Name,
		Ready:     w.ready,
		Checked:   w.checked,
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop ends the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.cfg.InitialDelay
	for {
		var wait time.Duration
		if w.check(ctx) {
			delay = w.cfg.InitialDelay
			wait = w.cfg.PollInterval
		} else {
			wait = delay
			delay = min(delay*2, w.cfg.MaxDelay)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// check probes once, records the result and logs transitions.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	err := w.cfg.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	was, first := w.ready, !w.checked
	w.ready = err == nil
	w.checked = true
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	logger := w.cfg.Logger
	switch {
	case err == nil && (first || !was):
		logger.Info("service reachable", "service", w.cfg.Name)
	case err != nil && (first || was):
		logger.Warn("service unreachable", "service", w.cfg.Name, "error", err)
	case err != nil:
		logger.Debug("service still unreachable", "service", w.cfg.Name, "error", err)
	}
	return err == nil
}
