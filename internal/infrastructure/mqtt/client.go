package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
)

// Logger is the subset of the application logger the client reports to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is nodeward's link to the broker. It publishes lifecycle events and
// the retained process state, announces its own presence on the system status
// topic, and routes remote control actions for one instance.
//
// Methods are safe for concurrent use. paho reconnects on its own; the
// control subscription is renewed after every reconnect.
type Client struct {
	paho      pahomqtt.Client
	cfg       config.MQTTConfig
	connected atomic.Bool

	mu           sync.RWMutex
	logger       Logger
	onConnect    func()
	onDisconnect func(error)
	control      *controlRoute
}

// Connect dials the broker described by cfg and waits up to the connect
// timeout for the session. The online presence is published once connected.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, logger: noopLogger{}}

	opts := newClientOptions(cfg).
		SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		})
	c.paho = pahomqtt.NewClient(opts)

	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: no answer within %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The on-connect handler runs on its own goroutine and may lag behind.
	c.connected.Store(true)
	return c, nil
}

// linkUp runs on the initial connect and after every reconnect.
func (c *Client) linkUp() {
	c.connected.Store(true)
	c.announce(StatusOnline, "")
	go c.renewControl()

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) linkDown(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// announce publishes nodeward's presence without waiting for the broker.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	return c.paho.Publish(Topics{}.SystemStatus(), c.qos(), true, presence(c.cfg.Broker.ClientID, status, reason))
}

// Close publishes the graceful offline presence and disconnects. Closing a
// client that never connected does nothing.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(StatusOffline, ReasonShutdown).WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// SetOnConnect registers a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback run when the link drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets where reconnects and control failures are reported.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// qos is the configured QoS, validated to 0..2 when the config is loaded.
func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // range checked by config.Validate
}
