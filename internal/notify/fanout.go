package notify

import (
	"github.com/nerrad567/nodeward/internal/process"
)

// Logger is the logging surface sinks need. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return logger
}

// Fanout delivers every event to each sink in order.
type Fanout struct {
	sinks  []process.EventSink
	logger Logger
}

// NewFanout creates a fan-out over the given sinks. Nil sinks are skipped.
func NewFanout(logger Logger, sinks ...process.EventSink) *Fanout {
	f := &Fanout{logger: orNoop(logger)}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add appends a sink. It must not be called once events are flowing.
func (f *Fanout) Add(sink process.EventSink) {
	if sink != nil {
		f.sinks = append(f.sinks, sink)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// HandleEvent implements process.EventSink. A panicking sink does not stop
// delivery to the sinks after it.
func (f *Fanout) HandleEvent(ev process.Event) {
	for _, sink := range f.sinks {
		f.deliver(sink, ev)
	}
}

func (f *Fanout) deliver(sink process.EventSink, ev process.Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panic recovered",
				"event", string(ev.Type),
				"instance", ev.Instance,
				"panic", r,
			)
		}
	}()
	sink.HandleEvent(ev)
}
