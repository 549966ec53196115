// Package mqtt exposes the node as a native Home Assistant device over
// MQTT discovery: three LED switches, temperature and humidity sensors
// and a motion binary sensor.
//
// The client uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re)connect it
// subscribes to the switch command topics and the Home Assistant
// status topic, publishes retained discovery payloads, a retained
// "online" on the shared availability topic and the last known state of
// every entity. A will message flips availability to "offline" on an
// unexpected disconnect.
package mqtt
