package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementLifecycle is the measurement every lifecycle event is written to.
const MeasurementLifecycle = "process_lifecycle"

// LifecycleSample is one lifecycle event reduced to what is worth keeping
// as a time series.
type LifecycleSample struct {
	Instance    string
	Event       string
	ExitCode    *int
	StdoutBytes int
	StderrBytes int
	Time        time.Time
}

// lifecyclePoint tags the point by instance and event. exit_code is only
// written for events that carry one.
func lifecyclePoint(s LifecycleSample) *write.Point {
	at := s.Time
	if at.IsZero() {
		at = time.Now()
	}

	p := write.NewPointWithMeasurement(MeasurementLifecycle).
		AddTag("event", s.Event).
		AddTag("instance", s.Instance).
		AddField("count", 1).
		AddField("stdout_bytes", s.StdoutBytes).
		AddField("stderr_bytes", s.StderrBytes).
		SetTime(at)
	if s.ExitCode != nil {
		p.AddField("exit_code", *s.ExitCode)
	}
	return p
}

// WriteLifecycle queues a lifecycle point. It is dropped after Close.
func (c *Client) WriteLifecycle(s LifecycleSample) {
	if c.closed.Load() {
		return
	}
	c.writer.WritePoint(lifecyclePoint(s))
}
