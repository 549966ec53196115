package mqtt

import (
	"strings"

	"github.com/rlima/roomwatch/internal/config"
)

// Entity ID suffixes appended to the device entity prefix.
const (
	suffixTemperature = "_temperature"
	suffixHumidity    = "_humidity"
	suffixMotion      = "_motion"
	suffixLED         = "_led_"
)

// discoveryMessage is one retained config payload.
type discoveryMessage struct {
	component string
	entityID  string
	payload   any
}

// SwitchEntityID returns the entity ID of the named LED switch.
func SwitchEntityID(prefix, name string) string {
	return prefix + suffixLED + name
}

// TemperatureEntityID returns the entity ID of the temperature sensor.
func TemperatureEntityID(prefix string) string { return prefix + suffixTemperature }

// HumidityEntityID returns the entity ID of the humidity sensor.
func HumidityEntityID(prefix string) string { return prefix + suffixHumidity }

// MotionEntityID returns the entity ID of the motion binary sensor.
func MotionEntityID(prefix string) string { return prefix + suffixMotion }

func switchLabel(name string) string {
	if name == "" {
		return "LED"
	}
	return "LED " + strings.ToUpper(name[:1]) + name[1:]
}

// defaultEntityID is the entity_id Home Assistant assigns on first
// discovery, e.g. "switch.esp32wokwi01_led_red".
func defaultEntityID(component, entityID string) string {
	return component + "." + entityID
}

// discoveryMessages lists the config payload of every entity the node
// exposes: one switch per LED, two climate sensors and the motion sensor.
func (c *Client) discoveryMessages() []discoveryMessage {
	avail := c.topics.Availability()
	msgs := make([]discoveryMessage, 0, len(config.SwitchNames)+3)

	for _, name := range config.SwitchNames {
		id := SwitchEntityID(c.prefix, name)
		msgs = append(msgs, discoveryMessage{
			component: ComponentSwitch,
			entityID:  id,
			payload: SwitchConfig{
				Name:              switchLabel(name),
				UniqueID:          id,
				DefaultEntityID:   defaultEntityID(ComponentSwitch, id),
				StateTopic:        c.topics.State(id),
				CommandTopic:      c.topics.Command(id),
				AvailabilityTopic: avail,
				PayloadOn:         PayloadOn,
				PayloadOff:        PayloadOff,
				Icon:              "mdi:led-on",
				Device:            c.device,
			},
		})
	}

	temp := TemperatureEntityID(c.prefix)
	hum := HumidityEntityID(c.prefix)
	motion := MotionEntityID(c.prefix)
	msgs = append(msgs,
		discoveryMessage{
			component: ComponentSensor,
			entityID:  temp,
			payload: SensorConfig{
				Name:              "Temperature",
				UniqueID:          temp,
				DefaultEntityID:   defaultEntityID(ComponentSensor, temp),
				StateTopic:        c.topics.State(temp),
				AvailabilityTopic: avail,
				DeviceClass:       "temperature",
				UnitOfMeasurement: "°C",
				StateClass:        "measurement",
				Icon:              "mdi:temperature-celsius",
				Device:            c.device,
			},
		},
		discoveryMessage{
			component: ComponentSensor,
			entityID:  hum,
			payload: SensorConfig{
				Name:              "Humidity",
				UniqueID:          hum,
				DefaultEntityID:   defaultEntityID(ComponentSensor, hum),
				StateTopic:        c.topics.State(hum),
				AvailabilityTopic: avail,
				DeviceClass:       "humidity",
				UnitOfMeasurement: "%",
				StateClass:        "measurement",
				Icon:              "mdi:water-percent",
				Device:            c.device,
			},
		},
		discoveryMessage{
			component: ComponentBinarySensor,
			entityID:  motion,
			payload: BinarySensorConfig{
				Name:              "Motion",
				UniqueID:          motion,
				DefaultEntityID:   defaultEntityID(ComponentBinarySensor, motion),
				StateTopic:        c.topics.State(motion),
				AvailabilityTopic: avail,
				DeviceClass:       "motion",
				PayloadOn:         PayloadOn,
				PayloadOff:        PayloadOff,
				Device:            c.device,
			},
		},
	)
	return msgs
}

// parseSwitchPayload accepts ON/OFF in any case.
func parseSwitchPayload(payload []byte) (on bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case PayloadOn:
		return true, true
	case PayloadOff:
		return false, true
	}
	return false, false
}

func onOff(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}
