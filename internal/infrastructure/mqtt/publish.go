package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps one message. Process output is trimmed by the caller
// well below this.
const maxPayloadSize = 1 << 20

// PublishJSON publishes v as JSON on topic at the configured QoS. Lifecycle
// events go through here; the broker does not retain them.
func (c *Client) PublishJSON(topic string, v any) error {
	return c.publishJSON(topic, v, false)
}

// PublishRetained publishes v as JSON and has the broker keep it for late
// subscribers. It is used for the per-instance state topic.
func (c *Client) PublishRetained(topic string, v any) error {
	return c.publishJSON(topic, v, true)
}

func (c *Client) publishJSON(topic string, v any, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, c.qos(), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: no ack within %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
