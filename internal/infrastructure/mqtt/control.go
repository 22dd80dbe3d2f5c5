package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ControlHandler handles one remote action for the supervised instance.
// action is the last topic level, for example ActionStop. A returned error
// is logged; the message is acknowledged either way.
type ControlHandler func(action string, payload []byte) error

type controlRoute struct {
	filter  string
	handler ControlHandler
}

// HandleControl subscribes to nodeward/control/{instance}/+ and passes every
// action to handler. A later call replaces the route. The subscription is
// renewed after each reconnect.
func (c *Client) HandleControl(instance string, handler ControlHandler) error {
	if instance == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrControlFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	route := &controlRoute{filter: Topics{}.ControlFilter(instance), handler: handler}
	if err := c.subscribe(route); err != nil {
		return err
	}

	c.mu.Lock()
	c.control = route
	c.mu.Unlock()
	return nil
}

func (c *Client) subscribe(route *controlRoute) error {
	token := c.paho.Subscribe(route.filter, c.qos(), c.routeControl(route.handler))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: no ack within %v", ErrControlFailed, route.filter, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrControlFailed, route.filter, err)
	}
	return nil
}

// renewControl resubscribes the control route after a reconnect.
func (c *Client) renewControl() {
	c.mu.RLock()
	route := c.control
	c.mu.RUnlock()
	if route == nil {
		return
	}
	if err := c.subscribe(route); err != nil {
		c.log().Warn("renewing control subscription failed", "filter", route.filter, "error", err)
	}
}

// routeControl adapts handler to paho, extracting the action from the topic.
// A panicking handler is logged instead of taking down paho's router.
func (c *Client) routeControl(handler ControlHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		action := topic[strings.LastIndexByte(topic, '/')+1:]

		defer func() {
			if r := recover(); r != nil {
				c.log().Error("control handler panicked", "topic", topic, "panic", r)
			}
		}()

		if err := handler(action, msg.Payload()); err != nil {
			c.log().Warn("control action failed", "topic", topic, "action", action, "error", err)
			return
		}
		c.log().Info("control action handled", "action", action)
	}
}
