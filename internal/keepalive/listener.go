package keepalive

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Logger defines the logging interface for the keepalive listener.
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

// Listener is a uniquely named local socket that accepts and discards
// connections for the lifetime of the program.
type Listener struct {
	name    string
	address string
	logger  Logger

	startOnce sync.Once
	alive     atomic.Bool
	accepted  atomic.Int64

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	// bound is closed once the bind attempt has finished, successfully or not.
	bound chan struct{}
	// done is closed when the accept loop returns.
	done chan struct{}
}

// New creates a Listener with a freshly generated name.
// The socket is not bound until Start is called.
func New() *Listener {
	return newListener(uuid.NewString())
}

func newListener(name string) *Listener {
	return &Listener{
		name:    name,
		address: Address(name),
		logger:  noopLogger{},
		bound:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Name returns the listener's unique name. This is the value passed to the
// supervised process with "-s".
func (l *Listener) Name() string {
	return l.name
}

// Addr returns the unix socket address the listener binds to.
func (l *Listener) Addr() string {
	return l.address
}

// Start binds the socket and launches the accept loop in the background.
// Calling Start more than once has no further effect.
func (l *Listener) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Started reports whether Start has been called and the bind attempt has
// completed. It does not block.
func (l *Listener) Started() bool {
	select {
	case <-l.bound:
		return true
	default:
		return false
	}
}

// WaitBound blocks until the bind attempt initiated by Start has finished.
// It returns true if the socket is listening.
func (l *Listener) WaitBound() bool {
	<-l.bound
	return l.alive.Load()
}

// Alive reports whether the accept loop is running.
func (l *Listener) Alive() bool {
	return l.alive.Load()
}

// Accepted returns the number of connections accepted so far.
func (l *Listener) Accepted() int64 {
	return l.accepted.Load()
}

// Close stops the accept loop and releases the socket. The supervisor never
// calls Close; it exists for program shutdown and tests.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	ln := l.listener
	l.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	<-l.done
	cleanupAddress(l.address)
	return err
}

// run binds the socket and accepts connections until the listener is closed.
func (l *Listener) run() {
	defer close(l.done)

	l.logger.Debug("keepalive listener starting", "name", l.name)

	ln, err := listen(l.address)
	if err != nil {
		l.logger.Error("error while creating the keepalive socket",
			"name", l.name,
			"address", l.address,
			"error", err,
		)
		close(l.bound)
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		ln.Close() //nolint:errcheck // closed before bind finished
		close(l.bound)
		return
	}
	l.listener = ln
	l.mu.Unlock()

	l.alive.Store(true)
	defer l.alive.Store(false)
	close(l.bound)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.logger.Debug("keepalive listener closed", "name", l.name)
				return
			}
			l.logger.Debug("failed to accept keepalive connection", "name", l.name, "error", err)
			continue
		}

		l.accepted.Add(1)
		l.logger.Debug("accepted keepalive connection", "name", l.name)
		conn.Close() //nolint:errcheck // nothing is exchanged on this socket
	}
}

// listen binds a unix stream socket at address.
func listen(address string) (net.Listener, error) {
	return net.Listen("unix", address)
}
