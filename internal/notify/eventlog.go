package notify

import (
	"context"
	"time"

	"github.com/nerrad567/nodeward/internal/eventlog"
	"github.com/nerrad567/nodeward/internal/process"
)

// eventLogTimeout bounds a single insert.
const eventLogTimeout = 5 * time.Second

// EventLogSink persists lifecycle events to the event log.
type EventLogSink struct {
	repo   eventlog.Repository
	logger Logger
}

// NewEventLogSink creates a sink storing events in repo.
func NewEventLogSink(repo eventlog.Repository, logger Logger) *EventLogSink {
	return &EventLogSink{repo: repo, logger: orNoop(logger)}
}

// HandleEvent implements process.EventSink.
func (s *EventLogSink) HandleEvent(ev process.Event) {
	entry := EntryFromEvent(ev)

	ctx, cancel := context.WithTimeout(context.Background(), eventLogTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("storing lifecycle event failed",
			"instance", ev.Instance,
			"event", string(ev.Type),
			"error", err,
		)
	}
}

// EntryFromEvent converts a lifecycle event into an event log entry.
func EntryFromEvent(ev process.Event) *eventlog.Entry {
	entry := &eventlog.Entry{
		Instance:  ev.Instance,
		Event:     string(ev.Type),
		Error:     ev.ErrorString(),
		Stdout:    ev.Stdout,
		Stderr:    ev.Stderr,
		CreatedAt: ev.Time,
	}
	if ev.Type.Terminal() {
		code := ev.ExitCode
		entry.ExitCode = &code
	}
	return entry
}
