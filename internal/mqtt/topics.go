package mqtt

import "strings"

// Topic suffixes.
const (
	suffixState        = "stat_t"
	suffixCommand      = "cmd_t"
	suffixAvailability = "avty_t"
	suffixConfig       = "config"
)

// Topics derives every topic for one device from its identifiers.
// The layout is
//
//	<discovery>/<component>/<device>/<entity>/config
//	<base>/<device>/<entity>/stat_t
//	<base>/<device>/<entity>/cmd_t
//	<base>/<device>/avty_t
type Topics struct {
	DiscoveryPrefix string
	BaseTopic       string
	DeviceID        string
}

// Discovery returns the retained config topic for an entity.
func (t Topics) Discovery(component, entityID string) string {
	return join(t.DiscoveryPrefix, component, t.DeviceID, entityID, suffixConfig)
}

// State returns the state topic for an entity.
func (t Topics) State(entityID string) string {
	return join(t.BaseTopic, t.DeviceID, entityID, suffixState)
}

// Command returns the command topic for an entity.
func (t Topics) Command(entityID string) string {
	return join(t.BaseTopic, t.DeviceID, entityID, suffixCommand)
}

// Availability returns the shared availability topic.
func (t Topics) Availability() string {
	return join(t.BaseTopic, t.DeviceID, suffixAvailability)
}

// Status returns the Home Assistant birth/last-will topic.
func (t Topics) Status() string {
	return join(t.DiscoveryPrefix, "status")
}

// CommandEntity extracts the entity ID from a command topic of this
// device. ok is false for any other topic.
func (t Topics) CommandEntity(topic string) (entityID string, ok bool) {
	prefix := join(t.BaseTopic, t.DeviceID) + "/"
	rest, found := strings.CutPrefix(topic, prefix)
	if !found {
		return "", false
	}
	entityID, found = strings.CutSuffix(rest, "/"+suffixCommand)
	if !found || entityID == "" || strings.Contains(entityID, "/") {
		return "", false
	}
	return entityID, true
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}
