package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/sensor"
)

// rediscoverTimeout bounds the republish triggered by a Home Assistant
// birth message.
const rediscoverTimeout = 10 * time.Second

// connection is the subset of [autopaho.ConnectionManager] the client
// uses once connected.
type connection interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
}

// session adds the lifecycle calls of [autopaho.ConnectionManager].
type session interface {
	connection
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// SwitchHandler receives a parsed switch command. name is one of
// [config.SwitchNames].
type SwitchHandler func(name string, on bool)

// Client owns the broker connection and the node's Home Assistant
// entities. Entity state is cached so every (re)connect can restore it.
type Client struct {
	cfg      config.MQTTConfig
	topics   Topics
	device   DeviceInfo
	prefix   string
	clientID string
	logger   *slog.Logger

	// switches maps command entity IDs back to switch names.
	switches map[string]string
	onSwitch SwitchHandler

	cm session

	mu     sync.Mutex
	conn   connection
	states map[string]string
}

// New creates a Client but does not connect. deviceID is the device
// segment of every topic; dev supplies the registry fields and the
// entity prefix.
func New(cfg config.MQTTConfig, deviceID string, dev config.DeviceConfig, logger *slog.Logger) *Client {
	prefix := dev.EntityPrefix
	if prefix == "" {
		prefix = deviceID
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "roomwatch-" + deviceID
	}

	c := &Client{
		cfg: cfg,
		topics: Topics{
			DiscoveryPrefix: cfg.DiscoveryPrefix,
			BaseTopic:       cfg.BaseTopic,
			DeviceID:        deviceID,
		},
		device:   NewDeviceInfo(deviceID, dev),
		prefix:   prefix,
		clientID: clientID,
		logger:   logger,
		switches: make(map[string]string, len(config.SwitchNames)),
		states:   make(map[string]string),
	}
	for _, name := range config.SwitchNames {
		c.switches[SwitchEntityID(prefix, name)] = name
	}
	return c
}

// Topics returns the topic layout of this device.
func (c *Client) Topics() Topics {
	return c.topics
}

// OnSwitchCommand registers the handler for switch commands. It must be
// called before [Client.Start]. The handler runs on the paho receive
// goroutine and must not block.
func (c *Client) OnSwitchCommand(h SwitchHandler) {
	c.onSwitch = h
}

// Start begins connecting in the background and returns once the
// connection manager is running. autopaho keeps retrying until ctx is
// cancelled; use [Client.AwaitConnection] to wait for the first session.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     uint16(c.cfg.KeepAliveSec),
		CleanStartOnInitialConnection: true,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage:                   c.willMessage(),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("mqtt connected to broker", "broker", c.cfg.Broker)
			c.onConnect(ctx, cm)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.logger.Warn("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.logger.Warn("mqtt server requested disconnect", "reason_code", d.ReasonCode)
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm
	return nil
}

// willMessage is the retained "offline" the broker publishes when the
// session drops without a clean disconnect.
func (c *Client) willMessage() *paho.WillMessage {
	return &paho.WillMessage{
		Topic:   c.topics.Availability(),
		Payload: []byte(PayloadOffline),
		QoS:     1,
		Retain:  true,
	}
}

// Stop publishes "offline" on the availability topic and disconnects.
// ctx bounds both steps.
func (c *Client) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	c.publishAvailability(ctx, c.cm, PayloadOffline)
	return c.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker session is up or ctx expires.
// It backs the connwatch broker probe.
func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errors.New("mqtt client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

// SetSwitch reports a switch state.
func (c *Client) SetSwitch(ctx context.Context, name string, on bool) error {
	return c.setState(ctx, SwitchEntityID(c.prefix, name), onOff(on))
}

// SetMotion reports the motion sensor state.
func (c *Client) SetMotion(ctx context.Context, active bool) error {
	return c.setState(ctx, MotionEntityID(c.prefix), onOff(active))
}

// SetClimate reports both climate values with one decimal.
func (c *Client) SetClimate(ctx context.Context, temperature, humidity float64) error {
	return errors.Join(
		c.setState(ctx, TemperatureEntityID(c.prefix), sensor.Format(temperature)),
		c.setState(ctx, HumidityEntityID(c.prefix), sensor.Format(humidity)),
	)
}

// States returns a copy of the last reported payload per entity ID.
func (c *Client) States() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.states)
}

// setState caches payload and publishes it when a session exists.
// Before the first connection the value is only cached.
func (c *Client) setState(ctx context.Context, entityID, payload string) error {
	c.mu.Lock()
	c.states[entityID] = payload
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.publish(ctx, conn, c.topics.State(entityID), []byte(payload), 0)
}

// onConnect runs on every (re)connect: subscribe, announce, restore.
func (c *Client) onConnect(ctx context.Context, conn connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.subscribe(ctx, conn)
	c.announce(ctx, conn)
}

// announce publishes discovery, availability and cached state.
func (c *Client) announce(ctx context.Context, conn connection) {
	c.publishDiscovery(ctx, conn)
	c.publishAvailability(ctx, conn, PayloadOnline)
	c.republishStates(ctx, conn)
}

func (c *Client) subscribe(ctx context.Context, conn connection) {
	subs := []paho.SubscribeOptions{{Topic: c.topics.Status(), QoS: 1}}
	for _, id := range slices.Sorted(maps.Keys(c.switches)) {
		subs = append(subs, paho.SubscribeOptions{Topic: c.topics.Command(id), QoS: 1})
	}

	if _, err := conn.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.logger.Warn("mqtt subscribe failed", "topics", len(subs), "error", err)
		return
	}
	c.logger.Debug("mqtt subscribed", "topics", len(subs))
}

func (c *Client) publishDiscovery(ctx context.Context, conn connection) {
	for _, m := range c.discoveryMessages() {
		topic := c.topics.Discovery(m.component, m.entityID)
		payload, err := json.Marshal(m.payload)
		if err != nil {
			c.logger.Error("mqtt marshal discovery payload", "entity", m.entityID, "error", err)
			continue
		}
		if err := c.publish(ctx, conn, topic, payload, 1); err != nil {
			c.logger.Warn("mqtt discovery publish failed",
				"entity", m.entityID, "topic", topic, "error", err)
			continue
		}
		c.logger.Debug("mqtt discovery published", "entity", m.entityID, "topic", topic)
	}
}

func (c *Client) publishAvailability(ctx context.Context, conn connection, status string) {
	if err := c.publish(ctx, conn, c.topics.Availability(), []byte(status), 1); err != nil {
		c.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	c.logger.Info("mqtt availability published", "status", status)
}

func (c *Client) republishStates(ctx context.Context, conn connection) {
	states := c.States()
	for _, id := range slices.Sorted(maps.Keys(states)) {
		if err := c.publish(ctx, conn, c.topics.State(id), []byte(states[id]), 0); err != nil {
			c.logger.Debug("mqtt state republish failed", "entity", id, "error", err)
		}
	}
}

// publish sends a retained message.
func (c *Client) publish(ctx context.Context, conn connection, topic string, payload []byte, qos byte) error {
	_, err := conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  true,
	})
	return err
}

// handleMessage routes an inbound message: a Home Assistant birth
// triggers rediscovery, a switch command goes to the handler.
func (c *Client) handleMessage(topic string, payload []byte) {
	if topic == c.topics.Status() {
		if strings.EqualFold(strings.TrimSpace(string(payload)), PayloadOnline) {
			c.logger.Info("home assistant came online, republishing discovery")
			go c.rediscover()
		}
		return
	}

	entityID, ok := c.topics.CommandEntity(topic)
	if !ok {
		c.logger.Debug("mqtt message on unexpected topic", "topic", topic)
		return
	}
	name, ok := c.switches[entityID]
	if !ok {
		c.logger.Debug("mqtt command for unknown entity", "entity", entityID)
		return
	}
	on, ok := parseSwitchPayload(payload)
	if !ok {
		c.logger.Warn("mqtt invalid switch payload ignored",
			"switch", name, "payload", string(payload))
		return
	}

	c.logger.Debug("mqtt switch command received", "switch", name, "on", on)
	if c.onSwitch != nil {
		c.onSwitch(name, on)
	}
}

func (c *Client) rediscover() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rediscoverTimeout)
	defer cancel()
	c.announce(ctx, conn)
}
