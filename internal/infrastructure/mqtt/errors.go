package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned by Connect when the broker does not accept
	// the connection in time.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrInvalidTopic is returned for an empty topic or instance name.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrPublishFailed wraps marshalling, size and broker publish failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrControlFailed is returned when the control topics cannot be subscribed.
	ErrControlFailed = errors.New("mqtt: control subscription failed")
)
