package notify

import (
	"github.com/nerrad567/nodeward/internal/infrastructure/influxdb"
	"github.com/nerrad567/nodeward/internal/process"
)

// MetricsWriter is the subset of the InfluxDB client MetricsSink uses.
type MetricsWriter interface {
	WriteLifecycle(s influxdb.LifecycleSample)
}

// MetricsSink records every lifecycle event as a time-series point.
type MetricsSink struct {
	w MetricsWriter
}

// NewMetricsSink creates a sink writing through w.
func NewMetricsSink(w MetricsWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// HandleEvent implements process.EventSink.
func (s *MetricsSink) HandleEvent(ev process.Event) {
	sample := influxdb.LifecycleSample{
		Instance:    ev.Instance,
		Event:       string(ev.Type),
		StdoutBytes: len(ev.Stdout),
		StderrBytes: len(ev.Stderr),
		Time:        ev.Time,
	}
	if ev.Type.Terminal() {
		code := ev.ExitCode
		sample.ExitCode = &code
	}
	s.w.WriteLifecycle(sample)
}
