// Package connwatch tracks whether the node's external services (the
// MQTT broker, the notification endpoint) are reachable.
//
// Each Watcher probes one service in two phases:
//  1. Startup: retry with a growing delay until the first success or
//     until MaxRetries is exhausted ([RetryForever] never gives up).
//  2. Background: poll every PollInterval and fire OnReady/OnDown on
//     state transitions.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RetryForever keeps the startup phase going until the first success.
const RetryForever = -1

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// BackoffConfig controls probe timing.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay growth.
	MaxDelay time.Duration
	// Multiplier scales the delay after each retry. 1 gives a fixed delay.
	Multiplier float64
	// MaxRetries bounds the startup attempts. [RetryForever] disables the bound.
	MaxRetries int
	// PollInterval is the background check interval.
	PollInterval time.Duration
	// ProbeTimeout limits each probe call.
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig returns 500ms, 1s, 2s ... capped at 30s, retried
// forever, then polled every 30s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   RetryForever,
		PollInterval: 30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = d.MaxRetries
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// WatcherConfig configures a single service watcher.
type WatcherConfig struct {
	// Name identifies the service in logs and status output.
	Name  string
	Probe ProbeFunc
	// Backoff zero fields take DefaultBackoffConfig values.
	Backoff BackoffConfig
	// OnReady runs in its own goroutine on a not-ready → ready change.
	OnReady func()
	// OnDown runs in its own goroutine on a ready → not-ready change.
	OnDown func(err error)
	Logger *slog.Logger
}

// ServiceStatus is the JSON view of a watched service.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	Attempts  int       `json:"attempts"`
}

// Watcher monitors one service.
type Watcher struct {
	cfg    WatcherConfig
	ready  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
	attempts  int
}

// IsReady reports whether the last probe succeeded.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// LastError returns the most recent probe error, or nil if healthy.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Status returns the current status snapshot.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := ServiceStatus{
		Name:      w.cfg.Name,
		Ready:     w.ready.Load(),
		LastCheck: w.lastCheck,
		Attempts:  w.attempts,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	b := w.cfg.Backoff
	log := w.cfg.Logger.With("service", w.cfg.Name)

	delay := b.InitialDelay
	for attempt := 1; b.MaxRetries == RetryForever || attempt <= b.MaxRetries; attempt++ {
		err := w.check(ctx)
		if err == nil {
			log.Info("service connected", "after_attempts", attempt)
			w.transition(true, nil)
			break
		}
		if ctx.Err() != nil {
			return
		}
		if attempt == b.MaxRetries {
			log.Warn("startup connection failed, continuing in background",
				"attempts", attempt, "error", err)
			break
		}
		log.Debug("startup probe failed, retrying",
			"attempt", attempt, "next_delay", delay.String(), "error", err)

		if !sleepCtx(ctx, delay) {
			return
		}
		delay = time.Duration(float64(delay) * b.Multiplier)
		if delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}

	ticker := time.NewTicker(b.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.check(ctx)
			switch {
			case err != nil && w.ready.Load():
				log.Warn("service became unreachable", "error", err)
				w.transition(false, err)
			case err == nil && !w.ready.Load():
				log.Info("service recovered")
				w.transition(true, nil)
			case err != nil:
				log.Debug("service still unreachable", "error", err)
			}
		}
	}
}

func (w *Watcher) transition(ready bool, err error) {
	w.ready.Store(ready)
	if ready && w.cfg.OnReady != nil {
		go w.cfg.OnReady()
	}
	if !ready && w.cfg.OnDown != nil {
		go w.cfg.OnDown(err)
	}
}

// check runs one probe under the probe timeout and records the result.
func (w *Watcher) check(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, w.cfg.Backoff.ProbeTimeout)
	defer cancel()
	err := w.cfg.Probe(pctx)

	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.attempts++
	w.mu.Unlock()
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Manager owns a set of watchers.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		watchers: make(map[string]*Watcher),
		logger:   logger,
	}
}

// Watch starts a watcher for cfg in the background. Name and Probe are
// required; a missing one is a programming error and panics.
func (m *Manager) Watch(ctx context.Context, cfg WatcherConfig) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: WatcherConfig.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("connwatch: WatcherConfig.Probe must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	cfg.Backoff = cfg.Backoff.withDefaults()

	wctx, cancel := context.WithCancel(ctx)
	w := &Watcher{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	go w.run(wctx)

	m.mu.Lock()
	m.watchers[cfg.Name] = w
	m.mu.Unlock()
	return w
}

// Status returns the status of every watcher keyed by name.
func (m *Manager) Status() map[string]ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ServiceStatus, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.Status()
	}
	return out
}

// AllReady reports whether every watched service is ready.
func (m *Manager) AllReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.watchers {
		if !w.IsReady() {
			return false
		}
	}
	return true
}

// Stop shuts down all watchers.
func (m *Manager) Stop() {
	m.mu.RLock()
	ws := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		ws = append(ws, w)
	}
	m.mu.RUnlock()

	for _, w := range ws {
		w.Stop()
	}
}
