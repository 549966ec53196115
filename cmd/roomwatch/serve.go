package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rlima/roomwatch/internal/api"
	"github.com/rlima/roomwatch/internal/buildinfo"
	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/connwatch"
	"github.com/rlima/roomwatch/internal/events"
	"github.com/rlima/roomwatch/internal/hal"
	"github.com/rlima/roomwatch/internal/metrics"
	"github.com/rlima/roomwatch/internal/mqtt"
	"github.com/rlima/roomwatch/internal/notify"
	"github.com/rlima/roomwatch/internal/opstate"
	"github.com/rlima/roomwatch/internal/sensor"
	"github.com/rlima/roomwatch/internal/station"
)

// shutdownTimeout bounds each shutdown step.
const shutdownTimeout = 5 * time.Second

// runServe is the primary operating mode. It wires the hardware, the
// broker connection, the notifier and the status server, then blocks
// until ctx is cancelled or SIGINT/SIGTERM arrives.
//
// The shutdown sequence is:
//  1. The station loop stops and in-flight notifications finish.
//  2. "offline" is published on the availability topic.
//  3. The status server drains.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("starting roomwatch", "version", buildinfo.Version, "config", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store, err := opstate.NewStore(filepath.Join(cfg.DataDir, "roomwatch.db"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID, err = mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return err
		}
	}
	logger.Info("device identity", "device_id", deviceID, "name", cfg.Device.Name)

	m := metrics.New()
	bus := events.New()

	// --- Hardware ---
	board, err := hal.Open(cfg.Hardware.Backend, cfg.Hardware.Chip)
	if err != nil {
		return fmt.Errorf("open %s board: %w", cfg.Hardware.Backend, err)
	}
	defer board.Close()

	pins, err := station.OpenPins(board, cfg.Hardware.Pins)
	if err != nil {
		return err
	}

	var climate sensor.Reader
	if cfg.Hardware.Backend == "sim" {
		sim := cfg.Hardware.Sim
		climate = sensor.NewSim(sim.BaseTemperature, sim.BaseHumidity, uint64(time.Now().UnixNano()))
	} else {
		climate = sensor.NewIIO(cfg.Hardware.IIOPath)
	}
	logger.Info("hardware ready", "backend", cfg.Hardware.Backend, "chip", cfg.Hardware.Chip)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []station.Option{
		station.WithStore(store),
		station.WithBus(bus),
		station.WithMetrics(m),
	}

	if cfg.Notify.Configured() {
		notifier := notify.NewNotifier(notify.NewClient(cfg.Notify, logger), cfg.Motion.Cooldown(), store, logger)
		notifier.Restore()
		opts = append(opts, station.WithAlerter(notifier))
		logger.Info("motion notifications enabled", "cooldown", cfg.Motion.Cooldown().String())
	} else {
		logger.Info("motion notifications disabled (notify.phone or notify.api_key not set)")
	}

	var client *mqtt.Client
	if cfg.MQTT.Configured() {
		client = mqtt.New(cfg.MQTT, deviceID, cfg.Device, logger)
		opts = append(opts, station.WithEntities(client))
	} else {
		logger.Info("mqtt disabled (not configured)")
	}

	st := station.New(station.Config{
		PollInterval:    cfg.Hardware.PollInterval(),
		PublishPeriod:   cfg.Telemetry.PublishPeriod(),
		AlarmSwitch:     cfg.Motion.Alarm(),
		AlertMessage:    cfg.Motion.Message,
		RestoreSwitches: cfg.RestoreSwitches,
	}, pins, climate, logger, opts...)

	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()

	if client != nil {
		client.OnSwitchCommand(func(name string, on bool) {
			if err := st.Submit(station.Command{Switch: name, On: on, Origin: station.OriginMQTT}); err != nil {
				logger.Warn("switch command dropped", "switch", name, "error", err)
			}
		})
		// The session outlives the signal context so Stop can still
		// publish "offline" during shutdown.
		clientCtx, clientCancel := context.WithCancel(context.WithoutCancel(ctx))
		defer clientCancel()
		if err := client.Start(clientCtx); err != nil {
			return err
		}

		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name: "mqtt",
			Probe: func(pCtx context.Context) error {
				awaitCtx, awaitCancel := context.WithTimeout(pCtx, 2*time.Second)
				defer awaitCancel()
				return client.AwaitConnection(awaitCtx)
			},
			Backoff: connwatch.BackoffConfig{
				InitialDelay: 500 * time.Millisecond,
				Multiplier:   1,
				MaxRetries:   connwatch.RetryForever,
				PollInterval: 10 * time.Second,
			},
			OnReady: func() {
				m.Broker(true)
				bus.Emit(events.SourceMQTT, events.KindConnected, map[string]any{"broker": cfg.MQTT.Broker})
			},
			OnDown: func(err error) {
				m.Broker(false)
				bus.Emit(events.SourceMQTT, events.KindDisconnected, map[string]any{"error": err.Error()})
			},
			Logger: logger,
		})
		logger.Info("mqtt enabled", "broker", cfg.MQTT.Broker, "availability", client.Topics().Availability())
	}

	if sb, ok := board.(*hal.SimBoard); ok && cfg.Hardware.Sim.MotionIntervalSec > 0 {
		interval := time.Duration(cfg.Hardware.Sim.MotionIntervalSec) * time.Second
		go sb.RunMotionScript(ctx, cfg.Hardware.Pins.PIR, interval)
		logger.Info("simulated motion enabled", "interval", interval.String())
	}

	stationDone := make(chan error, 1)
	go func() { stationDone <- st.Run(ctx) }()

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.Listen.Port > 0 {
		server = api.NewServer(cfg.Listen, st, logger)
		server.SetHealth(connMgr)
		server.SetEventBus(bus)
		server.SetMetrics(m.Handler())
		go func() { serverErr <- server.Start(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			cancel()
			<-stationDone
			return fmt.Errorf("status server failed: %w", err)
		}
	}
	cancel()

	if err := <-stationDone; err != nil {
		logger.Error("station stopped with error", "error", err)
	}
	st.Wait()

	if client != nil {
		offlineCtx, offlineCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := client.Stop(offlineCtx); err != nil {
			logger.Error("mqtt shutdown failed", "error", err)
		}
		offlineCancel()
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "error", err)
		}
		shutdownCancel()
	}

	logger.Info("roomwatch stopped")
	return nil
}

// runNotify sends one notification with the configured endpoint,
// bypassing the cooldown. Useful to check the CallMeBot key.
func runNotify(ctx context.Context, stdout io.Writer, configPath, message string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Notify.Configured() {
		return errors.New("notify.url, notify.phone and notify.api_key must be set")
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)

	status, err := notify.NewClient(cfg.Notify, logger).Send(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	fmt.Fprintf(stdout, "notification sent (HTTP %d)\n", status)
	return nil
}
