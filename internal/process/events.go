package process

import "time"

// EventType identifies a lifecycle event.
type EventType string

const (
	// EventStarting is emitted before the child is spawned.
	EventStarting EventType = "starting"

	// EventStarted is emitted once the child exists.
	EventStarted EventType = "started"

	// EventStopped is emitted when the child exited with status 0.
	EventStopped EventType = "stopped"

	// EventError is emitted when the child could not be spawned or exited
	// with a non-zero status.
	EventError EventType = "error"
)

// Terminal reports whether no further events follow this one.
func (t EventType) Terminal() bool {
	return t == EventStopped || t == EventError
}

// Event is a lifecycle notification for one supervised instance.
type Event struct {
	Type     EventType `json:"type"`
	Instance string    `json:"instance"`
	Time     time.Time `json:"time"`

	// Stdout and Stderr carry the captured output on terminal events.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// ExitCode is the child's exit status on terminal events, -1 when it was
	// killed by a signal or never ran.
	ExitCode int `json:"exit_code"`

	// Err is set on EventError when the child could not be spawned.
	Err error `json:"-"`
}

// ErrorString returns Err's message or an empty string.
func (e Event) ErrorString() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// EventSink receives lifecycle events. HandleEvent is called from a single
// notification goroutine per supervisor, in emission order.
type EventSink interface {
	HandleEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// HandleEvent calls f(e).
func (f EventSinkFunc) HandleEvent(e Event) {
	f(e)
}

type discardSink struct{}

func (discardSink) HandleEvent(Event) {}
