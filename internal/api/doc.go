// Package api implements the HTTP control API and WebSocket event stream.
//
// This package provides:
//   - Status, password and stop endpoints for the supervised process
//   - Paginated access to the persisted lifecycle event log
//   - A one-way WebSocket stream: a status snapshot, then every lifecycle event
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/supervisor
//	GET  /api/v1/supervisor/password
//	POST /api/v1/supervisor/stop
//	GET  /api/v1/events?instance=&event=&limit=&offset=
//	POST /api/v1/events/prune
//	GET  /ws
//
// # Security
//
// The API has no authentication and binds to 127.0.0.1 by default. The
// password endpoint hands out the child's handshake secret, so do not expose
// the listener beyond the host.
//
// # Graceful Degradation
//
// The server operates without the event log, MQTT or InfluxDB. Missing
// backends are left out of /metrics and /events answers 503.
package api
