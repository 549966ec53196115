// Package station runs the node's polling loop: it applies switch
// commands, watches the PIR input for motion transitions and publishes
// climate telemetry once per period. All pin access happens on the
// single goroutine running [Station.Run].
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rlima/roomwatch/internal/events"
	"github.com/rlima/roomwatch/internal/metrics"
	"github.com/rlima/roomwatch/internal/motion"
	"github.com/rlima/roomwatch/internal/notify"
	"github.com/rlima/roomwatch/internal/sensor"
)

const (
	// publishTimeout bounds each entity state publish from the loop.
	publishTimeout = 2 * time.Second
	commandBuffer  = 16
	switchNS       = "switch"
)

// Switch command origins.
const (
	OriginMQTT    = "mqtt"
	OriginHTTP    = "http"
	OriginMotion  = "motion"
	OriginInit    = "init"
	OriginRestore = "restore"
)

var (
	// ErrUnknownSwitch is returned by Submit for a name with no LED.
	ErrUnknownSwitch = errors.New("unknown switch")
	// ErrBusy is returned by Submit when the command queue is full.
	ErrBusy = errors.New("command queue full")
)

// Entities receives state updates for the Home Assistant entities.
type Entities interface {
	SetSwitch(ctx context.Context, name string, on bool) error
	SetMotion(ctx context.Context, active bool) error
	SetClimate(ctx context.Context, temperature, humidity float64) error
}

// Alerter sends the motion notification.
type Alerter interface {
	Notify(ctx context.Context, message string) notify.Outcome
}

// SwitchStore persists LED states.
type SwitchStore interface {
	SetBool(namespace, key string, v bool) error
	Bools(namespace string) (map[string]bool, error)
}

// Config holds the loop parameters.
type Config struct {
	PollInterval  time.Duration
	PublishPeriod time.Duration
	// AlarmSwitch follows the motion state. Empty leaves the LEDs alone.
	AlarmSwitch  string
	AlertMessage string
	// RestoreSwitches re-applies persisted LED states at startup.
	RestoreSwitches bool
}

// Command asks the loop to drive a switch.
type Command struct {
	Switch string
	On     bool
	Origin string
}

// Snapshot is the station state served by the status API.
type Snapshot struct {
	Motion          bool            `json:"motion"`
	MotionChangedAt *time.Time      `json:"motion_changed_at,omitempty"`
	Switches        map[string]bool `json:"switches"`
	Climate         *sensor.Reading `json:"climate,omitempty"`
	LastNotify      string          `json:"last_notification,omitempty"`
	LastNotifyAt    *time.Time      `json:"last_notification_at,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
}

// Option configures a Station.
type Option func(*Station)

// WithEntities publishes state changes to Home Assistant.
func WithEntities(e Entities) Option {
	return func(s *Station) { s.entities = e }
}

// WithAlerter sends a notification on every motion start.
func WithAlerter(a Alerter) Option {
	return func(s *Station) { s.alerter = a }
}

// WithStore persists switch states.
func WithStore(st SwitchStore) Option {
	return func(s *Station) { s.store = st }
}

// WithBus publishes activity events.
func WithBus(b *events.Bus) Option {
	return func(s *Station) { s.bus = b }
}

// WithMetrics records counters and gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Station) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Station) { s.now = now }
}

// Station owns the pins and the motion/telemetry state.
type Station struct {
	cfg     Config
	pins    Pins
	climate sensor.Reader
	logger  *slog.Logger

	entities Entities
	alerter  Alerter
	store    SwitchStore
	bus      *events.Bus
	metrics  *metrics.Metrics
	now      func() time.Time

	detector motion.Detector
	gate     *Gate
	cmds     chan Command
	wg       sync.WaitGroup

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a station. Call Run to start the loop.
func New(cfg Config, pins Pins, climate sensor.Reader, logger *slog.Logger, opts ...Option) *Station {
	s := &Station{
		cfg:     cfg,
		pins:    pins,
		climate: climate,
		logger:  logger,
		now:     time.Now,
		cmds:    make(chan Command, commandBuffer),
		snap:    Snapshot{Switches: make(map[string]bool, len(pins.LEDs))},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit queues a switch command for the loop. It never blocks.
func (s *Station) Submit(cmd Command) error {
	if _, ok := s.pins.LEDs[cmd.Switch]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSwitch, cmd.Switch)
	}
	select {
	case s.cmds <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

// Snapshot returns a copy of the current state.
func (s *Station) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Switches = maps.Clone(s.snap.Switches)
	return out
}

// Wait blocks until in-flight notifications finish.
func (s *Station) Wait() {
	s.wg.Wait()
}

// Start initializes outputs and the telemetry period. Run calls it;
// tests driving Poll directly call it once first.
func (s *Station) Start(ctx context.Context) {
	now := s.now()
	s.gate = NewGate(s.cfg.PublishPeriod, now)

	s.mu.Lock()
	s.snap.StartedAt = now
	s.mu.Unlock()

	restored := map[string]bool{}
	if s.cfg.RestoreSwitches && s.store != nil {
		b, err := s.store.Bools(switchNS)
		if err != nil {
			s.logger.Warn("failed to load switch states", "error", err)
		} else {
			restored = b
		}
	}

	for _, name := range slices.Sorted(maps.Keys(s.pins.LEDs)) {
		on, ok := restored[name]
		origin := OriginInit
		if ok {
			origin = OriginRestore
		}
		s.applySwitch(ctx, name, on, origin)
	}
	s.reportMotion(ctx, false)
}

// Run starts the station and polls until ctx is cancelled.
func (s *Station) Run(ctx context.Context) error {
	s.Start(ctx)
	s.logger.Info("station started",
		"poll_interval", s.cfg.PollInterval.String(),
		"publish_period", s.cfg.PublishPeriod.String())

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("station stopping")
			return nil
		case cmd := <-s.cmds:
			s.applySwitch(ctx, cmd.Switch, cmd.On, cmd.Origin)
		case <-ticker.C:
			s.Poll(ctx, s.now())
		}
	}
}

// Poll runs one iteration: pending commands, motion, telemetry.
func (s *Station) Poll(ctx context.Context, now time.Time) {
	s.drainCommands(ctx)
	s.pollMotion(ctx, now)
	if s.gate.Due(now) {
		s.publishClimate(ctx, now)
	}
}

func (s *Station) drainCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-s.cmds:
			s.applySwitch(ctx, cmd.Switch, cmd.On, cmd.Origin)
		default:
			return
		}
	}
}

func (s *Station) pollMotion(ctx context.Context, now time.Time) {
	active, err := s.pins.PIR.Read()
	if err != nil {
		s.logger.Warn("PIR read failed", "error", err)
		return
	}
	tr, changed := s.detector.Observe(active)
	if !changed {
		return
	}

	if tr == motion.Started {
		s.logger.Info("motion detected")
	} else {
		s.logger.Info("motion stopped")
	}

	s.mu.Lock()
	s.snap.MotionChangedAt = &now
	s.mu.Unlock()

	s.reportMotion(ctx, active)
	s.metrics.Motion(tr.String(), active)
	kind := events.KindStopped
	if active {
		kind = events.KindStarted
	}
	s.bus.Emit(events.SourceMotion, kind, nil)

	if s.cfg.AlarmSwitch != "" {
		s.applySwitch(ctx, s.cfg.AlarmSwitch, active, OriginMotion)
	}
	if active && s.alerter != nil {
		s.sendAlert(ctx)
	}
}

func (s *Station) reportMotion(ctx context.Context, active bool) {
	s.mu.Lock()
	s.snap.Motion = active
	s.mu.Unlock()

	if s.entities == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.entities.SetMotion(pctx, active); err != nil {
		s.logger.Debug("motion state publish failed", "error", err)
	}
}

// sendAlert notifies off the loop goroutine. The send outlives ctx so a
// shutdown does not cut a request in half; Wait collects it.
func (s *Station) sendAlert(ctx context.Context) {
	nctx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		outcome := s.alerter.Notify(nctx, s.cfg.AlertMessage)
		at := s.now()

		s.mu.Lock()
		s.snap.LastNotify = string(outcome)
		s.snap.LastNotifyAt = &at
		s.mu.Unlock()

		s.metrics.Notification(string(outcome))
		s.bus.Emit(events.SourceNotify, events.KindOutcome, map[string]any{"outcome": string(outcome)})
	}()
}

func (s *Station) applySwitch(ctx context.Context, name string, on bool, origin string) {
	out, ok := s.pins.LEDs[name]
	if !ok {
		s.logger.Warn("switch command for unknown LED", "switch", name, "origin", origin)
		return
	}
	if err := out.Set(on); err != nil {
		s.logger.Warn("LED write failed", "switch", name, "error", err)
		return
	}
	s.logger.Debug("LED set", "switch", name, "on", on, "origin", origin)

	s.mu.Lock()
	s.snap.Switches[name] = on
	s.mu.Unlock()

	if s.entities != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := s.entities.SetSwitch(pctx, name, on); err != nil {
			s.logger.Debug("switch state publish failed", "switch", name, "error", err)
		}
		cancel()
	}
	if s.store != nil {
		if err := s.store.SetBool(switchNS, name, on); err != nil {
			s.logger.Warn("failed to persist switch state", "switch", name, "error", err)
		}
	}
	s.metrics.Switch(name, origin, on)
	s.bus.Emit(events.SourceSwitch, events.KindChanged, map[string]any{
		"switch": name,
		"state":  on,
		"origin": origin,
	})
}

func (s *Station) publishClimate(ctx context.Context, now time.Time) {
	r, err := s.climate.Read(ctx)
	if !r.Valid() {
		s.logger.Warn("climate read returned NaN, skipping publish", "error", err)
		s.metrics.SensorFailure()
		data := map[string]any{}
		if err != nil {
			data["error"] = err.Error()
		}
		s.bus.Emit(events.SourceTelemetry, events.KindInvalid, data)
		return
	}
	if r.Time.IsZero() {
		r.Time = now
	}

	s.logger.Info("publishing climate",
		"temperature", sensor.Format(r.Temperature),
		"humidity", sensor.Format(r.Humidity))

	s.mu.Lock()
	s.snap.Climate = &r
	s.mu.Unlock()

	if s.entities != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := s.entities.SetClimate(pctx, r.Temperature, r.Humidity); err != nil {
			s.logger.Debug("climate publish failed", "error", err)
		}
		cancel()
	}
	s.metrics.Climate(r.Temperature, r.Humidity)
	s.bus.Emit(events.SourceTelemetry, events.KindPublished, map[string]any{
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
	})
}
