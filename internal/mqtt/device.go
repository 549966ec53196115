package mqtt

import (
	"github.com/rlima/roomwatch/internal/buildinfo"
	"github.com/rlima/roomwatch/internal/config"
)

// Home Assistant payloads shared by every entity.
const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Entity components used in discovery topics.
const (
	ComponentSwitch       = "switch"
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
)

// DeviceInfo holds the Home Assistant device registry fields shared
// across all discovery payloads, so HA groups every entity under one
// device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version"`
}

// NewDeviceInfo builds the device block. deviceID is the stable HA
// identifier (configured or persisted instance ID).
func NewDeviceInfo(deviceID string, cfg config.DeviceConfig) DeviceInfo {
	name := cfg.Name
	if name == "" {
		name = deviceID
	}
	return DeviceInfo{
		Identifiers:  []string{deviceID},
		Name:         name,
		Manufacturer: cfg.Manufacturer,
		Model:        cfg.Model,
		SWVersion:    buildinfo.Version,
	}
}

// SwitchConfig is the discovery payload for an LED switch.
type SwitchConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	DefaultEntityID   string     `json:"default_entity_id,omitempty"`
	StateTopic        string     `json:"state_topic"`
	CommandTopic      string     `json:"command_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	PayloadOn         string     `json:"payload_on"`
	PayloadOff        string     `json:"payload_off"`
	Icon              string     `json:"icon,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// SensorConfig is the discovery payload for a numeric sensor.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	DefaultEntityID   string     `json:"default_entity_id,omitempty"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// BinarySensorConfig is the discovery payload for the motion sensor.
type BinarySensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	DefaultEntityID   string     `json:"default_entity_id,omitempty"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	DeviceClass       string     `json:"device_class,omitempty"`
	PayloadOn         string     `json:"payload_on"`
	PayloadOff        string     `json:"payload_off"`
	Device            DeviceInfo `json:"device"`
}
