package notify

import (
	"unicode/utf8"

	"github.com/nerrad567/nodeward/internal/process"
)

// LogSink writes one log line per lifecycle event.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: orNoop(logger)}
}

// HandleEvent implements process.EventSink.
func (s *LogSink) HandleEvent(ev process.Event) {
	switch ev.Type {
	case process.EventStarting, process.EventStarted:
		s.logger.Info("process "+string(ev.Type), "instance", ev.Instance)
	case process.EventStopped:
		s.logger.Info("process stopped",
			"instance", ev.Instance,
			"exit_code", ev.ExitCode,
			"stdout_bytes", len(ev.Stdout),
		)
	case process.EventError:
		args := []any{
			"instance", ev.Instance,
			"exit_code", ev.ExitCode,
			"stderr", tail(ev.Stderr, logStderrTail),
		}
		if ev.Err != nil {
			args = append(args, "error", ev.Err)
		}
		s.logger.Error("process failed", args...)
	}
}

// logStderrTail bounds how much stderr ends up in a single log line.
const logStderrTail = 2048

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
