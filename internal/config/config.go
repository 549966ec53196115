// Package config handles roomwatch configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/roomwatch/config.yaml, /etc/roomwatch/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "roomwatch", "config.yaml"))
	}

	paths = append(paths, "/etc/roomwatch/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all roomwatch configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Motion    MotionConfig    `yaml:"motion"`
	Notify    NotifyConfig    `yaml:"notify"`
	Listen    ListenConfig    `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json

	// RestoreSwitches re-applies the last persisted LED states at startup.
	RestoreSwitches bool `yaml:"restore_switches"`
}

// DeviceConfig describes the node as it appears in the Home Assistant
// device registry.
type DeviceConfig struct {
	// ID is the HA device identifier and the device segment of every
	// topic. Empty means "use the persisted instance ID".
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	// EntityPrefix is prepended to every entity ID (esp32wokwi01_led_red).
	EntityPrefix string `yaml:"entity_prefix"`
}

// MQTTConfig defines the broker connection and topic layout.
type MQTTConfig struct {
	Broker          string `yaml:"broker"` // mqtt://host:1883 or mqtts://host:8883
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	BaseTopic       string `yaml:"base_topic"`
	KeepAliveSec    int    `yaml:"keepalive_sec"`
}

// Configured reports whether a broker has been set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// PinConfig maps logical signals to GPIO line offsets.
type PinConfig struct {
	PIR      int `yaml:"pir"`
	LEDRed   int `yaml:"led_red"`
	LEDGreen int `yaml:"led_green"`
	LEDBlue  int `yaml:"led_blue"`
}

// HardwareConfig selects the I/O backend.
type HardwareConfig struct {
	// Backend is "gpiocdev" (Linux GPIO character device) or "sim".
	Backend string    `yaml:"backend"`
	Chip    string    `yaml:"chip"`
	Pins    PinConfig `yaml:"pins"`
	// IIOPath is the sysfs directory of the dht11 IIO device.
	IIOPath        string    `yaml:"iio_path"`
	PollIntervalMS int       `yaml:"poll_interval_ms"`
	Sim            SimConfig `yaml:"sim"`
}

// SimConfig drives the simulated backend.
type SimConfig struct {
	// MotionIntervalSec toggles the simulated PIR input at this interval.
	// Zero leaves the input idle.
	MotionIntervalSec int     `yaml:"motion_interval_sec"`
	BaseTemperature   float64 `yaml:"base_temperature"`
	BaseHumidity      float64 `yaml:"base_humidity"`
}

// PollInterval returns the station loop interval.
func (h HardwareConfig) PollInterval() time.Duration {
	return time.Duration(h.PollIntervalMS) * time.Millisecond
}

// TelemetryConfig controls climate publication.
type TelemetryConfig struct {
	PublishPeriodSec int `yaml:"publish_period_sec"`
}

// PublishPeriod returns the configured period as a duration.
func (t TelemetryConfig) PublishPeriod() time.Duration {
	return time.Duration(t.PublishPeriodSec) * time.Second
}

// MotionConfig controls motion alerts.
type MotionConfig struct {
	CooldownSec int    `yaml:"cooldown_sec"`
	Message     string `yaml:"message"`
	// AlarmSwitch names the LED switch that mirrors the motion state,
	// or [AlarmSwitchNone].
	AlarmSwitch string `yaml:"alarm_switch"`
}

// AlarmSwitchNone leaves every LED under remote control only.
const AlarmSwitchNone = "none"

// Alarm returns the switch that follows motion, or "" when
// alarm_switch is "none".
func (m MotionConfig) Alarm() string {
	if m.AlarmSwitch == AlarmSwitchNone {
		return ""
	}
	return m.AlarmSwitch
}

// Cooldown returns the notification cooldown as a duration.
func (m MotionConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownSec) * time.Second
}

// NotifyConfig defines the CallMeBot WhatsApp endpoint.
type NotifyConfig struct {
	URL        string `yaml:"url"`
	Phone      string `yaml:"phone"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Configured reports whether notifications can be sent.
func (n NotifyConfig) Configured() bool {
	return n.URL != "" && n.Phone != "" && n.APIKey != ""
}

// Timeout returns the connect timeout for notification requests.
func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSec) * time.Second
}

// ListenConfig defines the status server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // 0 disables the server
}

// Load reads configuration from a YAML file. Environment variables are
// expanded before parsing and defaults fill any omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration matching the reference wiring: DHT22
// on GPIO13, LEDs on 21/19/18, PIR on 23, simulated backend.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:         "roomwatch",
			Manufacturer: "roomwatch",
			Model:        "roomwatch node",
		},
		MQTT: MQTTConfig{
			DiscoveryPrefix: "homeassistant",
			BaseTopic:       "aha",
			KeepAliveSec:    15,
		},
		Hardware: HardwareConfig{
			Backend: "sim",
			Chip:    "gpiochip0",
			Pins: PinConfig{
				PIR:      23,
				LEDRed:   21,
				LEDGreen: 19,
				LEDBlue:  18,
			},
			IIOPath:        "/sys/bus/iio/devices/iio:device0",
			PollIntervalMS: 50,
			Sim: SimConfig{
				BaseTemperature: 24,
				BaseHumidity:    40,
			},
		},
		Telemetry: TelemetryConfig{PublishPeriodSec: 10},
		Motion: MotionConfig{
			CooldownSec: 5,
			Message:     "🚨 Alert! Motion detected by the living room sensor.",
			AlarmSwitch: "red",
		},
		Notify: NotifyConfig{
			URL:        "https://api.callmebot.com/whatsapp.php",
			TimeoutSec: 5,
		},
		Listen:  ListenConfig{Port: 8090},
		DataDir: "./db",
	}
}

// applyDefaults fills zero values that YAML may have cleared.
func (c *Config) applyDefaults() {
	d := Default()
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = d.MQTT.DiscoveryPrefix
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = d.MQTT.BaseTopic
	}
	if c.MQTT.KeepAliveSec <= 0 {
		c.MQTT.KeepAliveSec = d.MQTT.KeepAliveSec
	}
	if c.Hardware.Backend == "" {
		c.Hardware.Backend = d.Hardware.Backend
	}
	if c.Hardware.PollIntervalMS <= 0 {
		c.Hardware.PollIntervalMS = d.Hardware.PollIntervalMS
	}
	if c.Telemetry.PublishPeriodSec <= 0 {
		c.Telemetry.PublishPeriodSec = d.Telemetry.PublishPeriodSec
	}
	if c.Motion.AlarmSwitch == "" {
		c.Motion.AlarmSwitch = d.Motion.AlarmSwitch
	}
	if c.Notify.TimeoutSec <= 0 {
		c.Notify.TimeoutSec = d.Notify.TimeoutSec
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Device.EntityPrefix == "" && c.Device.ID != "" {
		c.Device.EntityPrefix = c.Device.ID
	}
}

// SwitchNames lists the LED switches in the order they are announced.
var SwitchNames = []string{"red", "green", "blue"}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}

	if c.MQTT.Configured() {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("mqtt.broker: %w", err))
		} else {
			switch u.Scheme {
			case "mqtt", "tcp", "mqtts", "ssl", "ws", "wss":
			default:
				errs = append(errs, fmt.Errorf("mqtt.broker scheme %q not supported", u.Scheme))
			}
		}
	}

	switch c.Hardware.Backend {
	case "sim", "gpiocdev":
	default:
		errs = append(errs, fmt.Errorf("hardware.backend %q must be sim or gpiocdev", c.Hardware.Backend))
	}
	if c.Hardware.Backend == "gpiocdev" && c.Hardware.Chip == "" {
		errs = append(errs, errors.New("hardware.chip is required for the gpiocdev backend"))
	}

	valid := c.Motion.AlarmSwitch == AlarmSwitchNone
	for _, n := range SwitchNames {
		if n == c.Motion.AlarmSwitch {
			valid = true
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("motion.alarm_switch %q must be none or one of %v", c.Motion.AlarmSwitch, SwitchNames))
	}
	if c.Motion.CooldownSec < 0 {
		errs = append(errs, errors.New("motion.cooldown_sec must not be negative"))
	}

	if c.Notify.URL != "" {
		if u, err := url.Parse(c.Notify.URL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify.url %q is not an absolute URL", c.Notify.URL))
		}
	}

	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}

	return errors.Join(errs...)
}
