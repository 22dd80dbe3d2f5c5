package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when the influxdb section is switched off.
	ErrDisabled = errors.New("influxdb: metrics disabled")

	// ErrConnectionFailed is returned when the server cannot be pinged at startup.
	ErrConnectionFailed = errors.New("influxdb: cannot reach server")

	// ErrClosed is returned by HealthCheck once the client has been closed.
	ErrClosed = errors.New("influxdb: client closed")

	errUnhealthy = errors.New("server reported unhealthy")
)
