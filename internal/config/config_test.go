package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: debug\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "mqtt:\n  broker: mqtt://broker:1883\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got := cfg.Telemetry.PublishPeriod(); got != 10*time.Second {
		t.Errorf("PublishPeriod = %v, want 10s", got)
	}
	if got := cfg.Motion.Cooldown(); got != 5*time.Second {
		t.Errorf("Cooldown = %v, want 5s", got)
	}
	if got := cfg.Notify.Timeout(); got != 5*time.Second {
		t.Errorf("Notify.Timeout = %v, want 5s", got)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("DiscoveryPrefix = %q, want homeassistant", cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.MQTT.BaseTopic != "aha" {
		t.Errorf("BaseTopic = %q, want aha", cfg.MQTT.BaseTopic)
	}
	if cfg.Hardware.Pins.PIR != 23 || cfg.Hardware.Pins.LEDRed != 21 {
		t.Errorf("Pins = %+v, want default wiring", cfg.Hardware.Pins)
	}
	if cfg.Hardware.PollInterval() != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", cfg.Hardware.PollInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ROOMWATCH_TEST_APIKEY", "secret123")
	cfg, err := Load(writeConfig(t, "notify:\n  api_key: ${ROOMWATCH_TEST_APIKEY}\n  phone: \"+5511999999999\"\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Notify.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Notify.APIKey, "secret123")
	}
	if !cfg.Notify.Configured() {
		t.Error("Notify.Configured() = false with url, phone and api_key set")
	}
}

func TestLoad_EntityPrefixFromDeviceID(t *testing.T) {
	cfg, err := Load(writeConfig(t, "device:\n  id: esp32wokwi01\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Device.EntityPrefix != "esp32wokwi01" {
		t.Errorf("EntityPrefix = %q, want esp32wokwi01", cfg.Device.EntityPrefix)
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Hardware.Backend = "arduino"
	cfg.Motion.AlarmSwitch = "purple"
	cfg.MQTT.Broker = "http://broker"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"loud", "arduino", "purple", "http"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %v", want, err)
		}
	}
}

func TestMotionConfig_AlarmNone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"red", "red"},
		{"blue", "blue"},
		{AlarmSwitchNone, ""},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Motion.AlarmSwitch = tt.in
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with alarm_switch %q = %v", tt.in, err)
		}
		if got := cfg.Motion.Alarm(); got != tt.want {
			t.Errorf("Alarm() for %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMQTTConfig_Configured(t *testing.T) {
	if (MQTTConfig{}).Configured() {
		t.Error("empty MQTTConfig should not be configured")
	}
	if !(MQTTConfig{Broker: "mqtt://localhost"}).Configured() {
		t.Error("MQTTConfig with broker should be configured")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(context.Background(), LevelTrace, "pin sample")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected level=TRACE in output, got: %s", buf.String())
	}
}
