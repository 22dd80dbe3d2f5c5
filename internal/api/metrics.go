package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/nodeward/internal/process"
)

// backendCheckTimeout bounds each backend health check in /metrics.
const backendCheckTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Supervisor    process.Stats    `json:"supervisor"`
	Backends      map[string]bool  `json:"backends"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, supervisor and backend metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Supervisor: s.supervisor.Stats(),
		Backends:   make(map[string]bool),
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	s.checkBackend(r.Context(), metrics.Backends, "mqtt", s.mqtt)
	s.checkBackend(r.Context(), metrics.Backends, "influxdb", s.influx)

	if s.database != nil {
		s.checkBackend(r.Context(), metrics.Backends, "database", s.database)
		dbStats := s.database.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// checkBackend records whether an optional backend is healthy. Unconfigured
// backends are left out.
func (s *Server) checkBackend(ctx context.Context, into map[string]bool, name string, hc HealthChecker) {
	if hc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	err := hc.HealthCheck(ctx)
	if err != nil {
		s.logger.Debug("backend unhealthy", "backend", name, "error", err)
	}
	into[name] = err == nil
}
