package connwatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxRetries:   5,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

func TestDefaultBackoffConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultBackoffConfig()

	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", cfg.InitialDelay)
	}
	if cfg.MaxRetries != RetryForever {
		t.Errorf("MaxRetries = %d, want RetryForever", cfg.MaxRetries)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
}

func TestBackoffWithDefaults(t *testing.T) {
	t.Parallel()
	b := BackoffConfig{InitialDelay: time.Second, Multiplier: 0.5}.withDefaults()

	if b.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want kept 1s", b.InitialDelay)
	}
	if b.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want default 2.0 for values below 1", b.Multiplier)
	}
	if b.MaxRetries != RetryForever {
		t.Errorf("MaxRetries = %d, want RetryForever", b.MaxRetries)
	}
}

func TestWatcher_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readyCalled atomic.Int32

	m := NewManager(slog.Default())
	w := m.Watch(ctx, WatcherConfig{
		Name:    "broker",
		Probe:   func(ctx context.Context) error { return nil },
		Backoff: testBackoff(),
		OnReady: func() { readyCalled.Add(1) },
	})

	time.Sleep(30 * time.Millisecond)

	if !w.IsReady() {
		t.Error("expected IsReady() == true after successful probe")
	}
	if w.LastError() != nil {
		t.Errorf("expected nil LastError, got %v", w.LastError())
	}
	// Successful polls after startup must not re-fire OnReady.
	if n := readyCalled.Load(); n != 1 {
		t.Errorf("OnReady called %d times, want 1", n)
	}
}

func TestWatcher_RetryForeverUntilSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	probe := func(ctx context.Context) error {
		if attempts.Add(1) <= 12 {
			return errors.New("broker offline")
		}
		return nil
	}

	bcfg := testBackoff()
	bcfg.MaxRetries = RetryForever
	bcfg.Multiplier = 1

	m := NewManager(slog.Default())
	w := m.Watch(ctx, WatcherConfig{Name: "broker", Probe: probe, Backoff: bcfg})

	deadline := time.Now().Add(time.Second)
	for !w.IsReady() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if !w.IsReady() {
		t.Fatal("watcher with RetryForever should keep retrying until success")
	}
	if n := attempts.Load(); n < 13 {
		t.Errorf("attempts = %d, want >= 13", n)
	}
}

func TestWatcher_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	m := NewManager(slog.Default())
	w := m.Watch(ctx, WatcherConfig{
		Name:    "callmebot",
		Probe:   func(ctx context.Context) error { attempts.Add(1); return errors.New("down") },
		Backoff: testBackoff(),
	})

	time.Sleep(100 * time.Millisecond)

	if w.IsReady() {
		t.Error("expected IsReady() == false after exhausting retries")
	}
	if n := attempts.Load(); n < 5 {
		t.Errorf("attempts = %d, want >= 5", n)
	}
	if w.LastError() == nil {
		t.Error("expected non-nil LastError")
	}
}

func TestWatcher_DownThenRecovers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var failing atomic.Bool
	probe := func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	}

	var downCalled, readyCalled atomic.Int32
	m := NewManager(slog.Default())
	w := m.Watch(ctx, WatcherConfig{
		Name:    "broker",
		Probe:   probe,
		Backoff: testBackoff(),
		OnReady: func() { readyCalled.Add(1) },
		OnDown:  func(error) { downCalled.Add(1) },
	})

	time.Sleep(20 * time.Millisecond)
	if !w.IsReady() {
		t.Fatal("expected ready initially")
	}

	failing.Store(true)
	time.Sleep(30 * time.Millisecond)
	if w.IsReady() {
		t.Error("expected not ready after service went down")
	}
	if downCalled.Load() < 1 {
		t.Error("OnDown was not called")
	}

	failing.Store(false)
	time.Sleep(30 * time.Millisecond)
	if !w.IsReady() {
		t.Error("expected ready after recovery")
	}
	if readyCalled.Load() < 2 {
		t.Errorf("OnReady called %d times, want >= 2", readyCalled.Load())
	}
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bcfg := testBackoff()
	bcfg.ProbeTimeout = 5 * time.Millisecond
	bcfg.MaxRetries = 1

	m := NewManager(slog.Default())
	w := m.Watch(ctx, WatcherConfig{
		Name: "slow",
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Backoff: bcfg,
	})

	time.Sleep(50 * time.Millisecond)

	if !errors.Is(w.LastError(), context.DeadlineExceeded) {
		t.Errorf("LastError = %v, want deadline exceeded", w.LastError())
	}
}

func TestWatcher_StopDuringRetries(t *testing.T) {
	t.Parallel()

	bcfg := testBackoff()
	bcfg.MaxRetries = RetryForever

	m := NewManager(slog.Default())
	w := m.Watch(context.Background(), WatcherConfig{
		Name:    "never",
		Probe:   func(ctx context.Context) error { return errors.New("down") },
		Backoff: bcfg,
	})

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout")
	}
}

func TestManager_StatusAndAllReady(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(slog.Default())
	m.Watch(ctx, WatcherConfig{
		Name:    "broker",
		Probe:   func(ctx context.Context) error { return nil },
		Backoff: testBackoff(),
	})

	bcfg := testBackoff()
	bcfg.MaxRetries = 1
	m.Watch(ctx, WatcherConfig{
		Name:    "callmebot",
		Probe:   func(ctx context.Context) error { return errors.New("unreachable") },
		Backoff: bcfg,
	})

	time.Sleep(50 * time.Millisecond)

	status := m.Status()
	if len(status) != 2 {
		t.Fatalf("len(Status) = %d, want 2", len(status))
	}
	if s := status["broker"]; !s.Ready || s.LastError != "" || s.Attempts == 0 {
		t.Errorf("broker status = %+v", s)
	}
	if s := status["callmebot"]; s.Ready || s.LastError != "unreachable" {
		t.Errorf("callmebot status = %+v", s)
	}
	if m.AllReady() {
		t.Error("AllReady() = true with one service down")
	}

	m.Stop()
}

func TestManager_WatchPanicsWithoutProbe(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil Probe")
		}
	}()
	NewManager(nil).Watch(context.Background(), WatcherConfig{Name: "x"})
}
