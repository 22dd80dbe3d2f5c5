package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/nodeward/internal/keepalive"
	"github.com/nerrad567/nodeward/internal/secret"
)

// Defaults applied by NewSupervisor for zero Config values.
const (
	DefaultForceKillTimeout = 5 * time.Second
	DefaultWaitDelay        = 2 * time.Second
)

// Config holds the configuration for a supervised process.
type Config struct {
	// Spec describes the process to launch.
	Spec Spec

	// Instance names this supervisor in events and logs.
	// Defaults to the keepalive socket name.
	Instance string

	// ElevationCandidates are checked once at construction when Spec.AsRoot
	// is set. Nil means DefaultElevationCandidates.
	ElevationCandidates []string

	// ForceKillTimeout is how long a stop request waits for the process to
	// exit on its own before it is killed.
	ForceKillTimeout time.Duration

	// WaitDelay bounds how long output is drained after the process exits.
	WaitDelay time.Duration

	// SecretLength is the length of the handshake password.
	SecretLength int

	// SecretProvider generates the handshake password.
	SecretProvider secret.Provider

	// MaxOutputBytes caps the captured bytes per output stream.
	// Zero or negative keeps the full output.
	MaxOutputBytes int

	// Keepalive is the keepalive listener to advertise to the process.
	// A new one is created when nil.
	Keepalive *keepalive.Listener
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one child process through its lifecycle.
type Supervisor struct {
	config    Config
	spec      Spec
	elevation string
	keepalive *keepalive.Listener
	sink      EventSink
	logger    Logger

	mu          sync.Mutex
	state       State
	cmd         *exec.Cmd
	writer      *CommandWriter
	password    string
	hasPassword bool
	stopPending bool
	exited      bool
	forcedKill  bool
	killTimer   *time.Timer
	startTime   time.Time
	exitTime    time.Time
	exitCode    *int
	lastError   error

	dispatch *dispatcher
	done     chan struct{}
}

// NewSupervisor creates a supervisor for cfg. Events go to sink, which may be nil.
// The keepalive name is allocated here so it is known before the process starts.
func NewSupervisor(cfg Config, sink EventSink) (*Supervisor, error) {
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults for zero values
	if cfg.ForceKillTimeout <= 0 {
		cfg.ForceKillTimeout = DefaultForceKillTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	if cfg.SecretLength <= 0 {
		cfg.SecretLength = secret.DefaultLength
	}
	if cfg.SecretProvider == nil {
		cfg.SecretProvider = secret.NewPassword
	}
	if cfg.ElevationCandidates == nil {
		cfg.ElevationCandidates = DefaultElevationCandidates
	}
	if cfg.Keepalive == nil {
		cfg.Keepalive = keepalive.New()
	}
	if cfg.Instance == "" {
		cfg.Instance = cfg.Keepalive.Name()
	}
	if sink == nil {
		sink = discardSink{}
	}
	cfg.Spec.Args = slices.Clone(cfg.Spec.Args)

	s := &Supervisor{
		config:    cfg,
		spec:      cfg.Spec,
		keepalive: cfg.Keepalive,
		sink:      sink,
		logger:    noopLogger{},
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	if s.spec.AsRoot {
		s.elevation = ResolveElevation(cfg.ElevationCandidates)
	}
	return s, nil
}

// SetLogger sets the logger for the supervisor and its keepalive listener.
// It must be called before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	s.keepalive.SetLogger(logger)
}

// Instance returns the instance name used in events.
func (s *Supervisor) Instance() string {
	return s.config.Instance
}

// KeepaliveName returns the keepalive socket name passed to the process.
func (s *Supervisor) KeepaliveName() string {
	return s.keepalive.Name()
}

// Elevation returns the resolved elevation helper, or "" when none is used.
func (s *Supervisor) Elevation() string {
	return s.elevation
}

// CommandLine returns the argv the process is launched with.
func (s *Supervisor) CommandLine() []string {
	return CommandLine(s.spec, s.elevation, s.keepalive.Name())
}

// Start launches the process in the background. It returns once the
// supervisor has left the idle state; use Done or Wait to observe the end.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	go s.run(ctx) //nolint:errcheck // outcome is reported through events and Stats
	return nil
}

// Run launches the process and blocks until it has terminated and every event
// has been delivered. It returns an error only when the process could not be
// started; how it exited is reported through events.
//
// Cancelling ctx kills the process. This is logged and handled like a forced stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.run(ctx)
}

// Done returns a channel closed after the terminal event has been delivered.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until Done is closed.
func (s *Supervisor) Wait() {
	<-s.done
}

func (s *Supervisor) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.dispatch = newDispatcher(s.sink, s.logger)
	return nil
}

func (s *Supervisor) run(ctx context.Context) error {
	defer close(s.done)
	defer s.dispatch.close()

	s.keepalive.Start()

	s.emit(Event{Type: EventStarting})

	stdout := newCaptureBuffer("stdout", s.config.MaxOutputBytes, s.logger)
	stderr := newCaptureBuffer("stderr", s.config.MaxOutputBytes, s.logger)

	cmd, stdin, err := s.spawn(ctx, stdout, stderr)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		s.logger.Error("error starting process",
			"instance", s.config.Instance,
			"error", err,
		)
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		s.emit(Event{Type: EventError, Err: err, ExitCode: -1})
		s.terminate(nil)
		return err
	}

	writer := NewCommandWriter(stdin)

	s.mu.Lock()
	s.cmd = cmd
	s.writer = writer
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("process started",
		"instance", s.config.Instance,
		"pid", cmd.Process.Pid,
	)
	s.emit(Event{Type: EventStarted})

	s.handshake(writer)

	s.mu.Lock()
	s.state = StateRunning
	pending := s.stopPending
	s.mu.Unlock()

	if pending {
		s.logger.Debug("applying stop requested during start", "instance", s.config.Instance)
		s.requestStop()
	}

	waitErr := cmd.Wait()
	s.finishWait(ctx, cmd, waitErr, stdout, stderr)
	return nil
}

// spawn creates the child process with stdout and stderr going to the capture
// buffers so a chatty child never blocks on a full pipe.
func (s *Supervisor) spawn(ctx context.Context, stdout, stderr *captureBuffer) (*exec.Cmd, io.WriteCloser, error) {
	argv := CommandLine(s.spec, s.elevation, s.keepalive.Name())
	if s.spec.AsRoot && s.elevation == "" {
		s.logger.Warn("elevation requested but no helper found, starting unprivileged",
			"instance", s.config.Instance,
			"candidates", s.config.ElevationCandidates,
		)
	}

	s.logger.Info("starting process",
		"instance", s.config.Instance,
		"command", strings.Join(argv, " "),
		"dir", s.spec.Dir,
	)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // command comes from operator configuration

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		s.logger.Info("wait for process interrupted, destroying it",
			"instance", s.config.Instance,
			"reason", context.Cause(ctx),
		)
		s.mu.Lock()
		s.forcedKill = true
		s.mu.Unlock()
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = s.config.WaitDelay

	if s.spec.Env != nil {
		cmd.Env = append(os.Environ(), s.spec.Env...)
	}
	if s.spec.Dir != "" {
		cmd.Dir = s.spec.Dir
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	pipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, pipe, nil
}

// handshake sends a fresh password to the process. Failure leaves the
// password absent and does not affect the lifecycle.
func (s *Supervisor) handshake(w *CommandWriter) {
	password, err := s.config.SecretProvider(s.config.SecretLength)
	if err != nil {
		s.logger.Warn("could not generate password",
			"instance", s.config.Instance,
			"error", err,
		)
		return
	}

	if err := w.Send(CommandPass, password); err != nil {
		s.logger.Warn("could not send password to process",
			"instance", s.config.Instance,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	s.password = password
	s.hasPassword = true
	s.mu.Unlock()

	s.logger.Debug("password sent to process", "instance", s.config.Instance)
}

// StopProcess asks the process to quit and arms the force-kill timer.
// A stop requested while starting is applied once the process exists.
// It returns ErrNotRunning before Start and after termination.
func (s *Supervisor) StopProcess() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateTerminated:
		s.mu.Unlock()
		return ErrNotRunning
	case StateStarting:
		s.stopPending = true
		s.mu.Unlock()
		s.logger.Debug("stop requested while starting", "instance", s.config.Instance)
		return nil
	}
	s.mu.Unlock()

	s.requestStop()
	return nil
}

func (s *Supervisor) requestStop() {
	s.mu.Lock()
	if s.cmd == nil || s.exited {
		s.mu.Unlock()
		return
	}
	if s.state == StateRunning {
		s.state = StateStopping
	}
	if s.killTimer == nil {
		s.killTimer = time.AfterFunc(s.config.ForceKillTimeout, func() {
			s.forceKill("process did not exit in time")
		})
	}
	w := s.writer
	s.mu.Unlock()

	s.logger.Info("stopping process", "instance", s.config.Instance)

	if err := w.Send(CommandQuit); err != nil {
		s.logger.Warn("could not send quit command to process",
			"instance", s.config.Instance,
			"error", err,
		)
		s.forceKill("quit command failed")
		return
	}
	if err := w.Close(); err != nil {
		s.logger.Debug("closing process stdin",
			"instance", s.config.Instance,
			"error", err,
		)
	}
}

// forceKill destroys the process group if the process has not exited yet.
// Wait may already have reaped the child while output is still draining, so
// that is checked as well as the exited flag.
func (s *Supervisor) forceKill(reason string) {
	s.mu.Lock()
	cmd := s.cmd
	if cmd == nil || s.exited || reaped(cmd.Process) {
		s.mu.Unlock()
		return
	}
	s.forcedKill = true
	s.mu.Unlock()

	s.logger.Warn("destroying process",
		"instance", s.config.Instance,
		"pid", cmd.Process.Pid,
		"reason", reason,
	)
	if err := killProcessGroup(cmd.Process.Pid); err != nil {
		s.logger.Error("error destroying process",
			"instance", s.config.Instance,
			"error", err,
		)
	}
}

// finishWait records the exit, drains output and emits the terminal event.
func (s *Supervisor) finishWait(ctx context.Context, cmd *exec.Cmd, waitErr error, stdout, stderr *captureBuffer) {
	s.mu.Lock()
	s.exited = true
	if s.state == StateRunning {
		s.state = StateStopping
	}
	timer := s.killTimer
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.As(waitErr, &exitErr):
	case errors.Is(waitErr, exec.ErrWaitDelay):
		s.logger.Warn("process output still open after exit, truncating",
			"instance", s.config.Instance,
		)
	case ctx.Err() != nil:
		// Interrupted wait, already logged by the cancel hook.
	default:
		s.logger.Warn("error reading process output",
			"instance", s.config.Instance,
			"error", waitErr,
		)
	}

	for _, c := range []*captureBuffer{stdout, stderr} {
		if c.Truncated() {
			s.logger.Warn("process output truncated",
				"instance", s.config.Instance,
				"stream", c.stream,
				"limit", c.limit,
			)
		}
	}

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	ev := Event{
		Type:     EventStopped,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: code,
	}
	if code != 0 {
		ev.Type = EventError
		s.mu.Lock()
		s.lastError = fmt.Errorf("process exited with status %d", code)
		s.mu.Unlock()
	}

	s.logger.Info("process exited",
		"instance", s.config.Instance,
		"exit_code", code,
	)

	s.emit(ev)
	s.terminate(cmd)
}

// terminate destroys anything left in the process group and releases the handle.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := killProcessGroup(cmd.Process.Pid); err != nil {
			s.logger.Debug("cleaning up process group",
				"instance", s.config.Instance,
				"error", err,
			)
		}
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		s.exitCode = &code
	}
	if s.writer != nil {
		_ = s.writer.Close() //nolint:errcheck // pipe already closed by Wait
	}
	s.cmd = nil
	s.exitTime = time.Now()
	s.state = StateTerminated
}

func (s *Supervisor) emit(ev Event) {
	ev.Instance = s.config.Instance
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.logger.Debug("process event",
		"instance", ev.Instance,
		"event", string(ev.Type),
	)
	s.dispatch.emit(ev)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Password returns the handshake password and whether the handshake succeeded.
func (s *Supervisor) Password() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password, s.hasPassword
}

// PID returns the process ID, or 0 if no process is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// Stats contains runtime statistics for a supervised process.
type Stats struct {
	Instance       string        `json:"instance"`
	State          State         `json:"state"`
	PID            int           `json:"pid,omitempty"`
	Uptime         time.Duration `json:"uptime,omitempty"`
	HasPassword    bool          `json:"has_password"`
	KeepaliveName  string        `json:"keepalive_name"`
	KeepaliveAlive bool          `json:"keepalive_alive"`
	Elevated       bool          `json:"elevated"`
	ForcedKill     bool          `json:"forced_kill"`
	ExitCode       *int          `json:"exit_code,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the supervisor.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Instance:       s.config.Instance,
		State:          s.state,
		HasPassword:    s.hasPassword,
		KeepaliveName:  s.keepalive.Name(),
		KeepaliveAlive: s.keepalive.Alive(),
		Elevated:       s.elevation != "",
		ForcedKill:     s.forcedKill,
		ExitCode:       s.exitCode,
	}

	if s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
	}
	if !s.startTime.IsZero() {
		end := time.Now()
		if !s.exitTime.IsZero() {
			end = s.exitTime
		}
		stats.Uptime = end.Sub(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
