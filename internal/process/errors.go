package process

import "errors"

// Sentinel errors for the process package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyStarted is returned when Start or Run is called on a
	// supervisor that has already been started.
	ErrAlreadyStarted = errors.New("process: supervisor already started")

	// ErrNotRunning is returned by StopProcess when there is no process to stop.
	ErrNotRunning = errors.New("process: not running")

	// ErrSpawnFailed wraps the error returned when the child could not be created.
	ErrSpawnFailed = errors.New("process: spawn failed")

	// ErrWriterClosed is returned when a command is sent after stdin was closed.
	ErrWriterClosed = errors.New("process: command writer closed")

	// ErrMissingExecutable is returned when the spec names no executable.
	ErrMissingExecutable = errors.New("process: executable is required")
)
