package keepalive

import (
	"net"
	"testing"
	"time"
)

// recordingLogger captures error messages for assertions.
type recordingLogger struct {
	noopLogger
	errors chan string
}

func (r *recordingLogger) Error(msg string, _ ...any) {
	select {
	case r.errors <- msg:
	default:
	}
}

func TestNew_UniqueNames(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		l := New()
		if l.Name() == "" {
			t.Fatal("Name() is empty")
		}
		if seen[l.Name()] {
			t.Fatalf("duplicate keepalive name %q", l.Name())
		}
		seen[l.Name()] = true
	}
}

func TestNew_NameAvailableBeforeStart(t *testing.T) {
	l := New()

	if l.Name() == "" {
		t.Error("Name() empty before Start()")
	}
	if l.Alive() {
		t.Error("Alive() = true before Start()")
	}
	if l.Started() {
		t.Error("Started() = true before Start()")
	}
}

func TestListener_AcceptsAndDrops(t *testing.T) {
	l := New()
	l.Start()
	defer l.Close()

	if !l.WaitBound() {
		t.Fatal("listener failed to bind")
	}

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("unix", l.Addr())
		if err != nil {
			t.Fatalf("Dial #%d error: %v", i, err)
		}

		// The listener closes its end straight away, so a read sees EOF.
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 1)
		if n, err := conn.Read(buf); err == nil {
			t.Errorf("Read #%d returned %d bytes, want EOF", i, n)
		}
		conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.Accepted() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := l.Accepted(); got != 3 {
		t.Errorf("Accepted() = %d, want 3", got)
	}
}

func TestListener_StartIsIdempotent(t *testing.T) {
	l := New()
	l.Start()
	l.Start()
	defer l.Close()

	if !l.WaitBound() {
		t.Fatal("listener failed to bind")
	}
	if !l.Alive() {
		t.Error("Alive() = false after Start()")
	}
}

func TestListener_BindFailureIsNotFatal(t *testing.T) {
	first := New()
	first.Start()
	defer first.Close()
	if !first.WaitBound() {
		t.Fatal("first listener failed to bind")
	}

	logger := &recordingLogger{errors: make(chan string, 1)}
	second := newListener(first.Name())
	second.SetLogger(logger)
	second.Start()

	if second.WaitBound() {
		t.Fatal("second listener bound a name that is already in use")
	}
	if second.Alive() {
		t.Error("Alive() = true after bind failure")
	}

	select {
	case <-logger.errors:
	case <-time.After(time.Second):
		t.Error("bind failure was not logged")
	}

	// The first listener keeps serving.
	conn, err := net.Dial("unix", first.Addr())
	if err != nil {
		t.Fatalf("Dial after collision error: %v", err)
	}
	conn.Close()

	if err := second.Close(); err != nil {
		t.Errorf("Close() on dead listener error = %v, want nil", err)
	}
}

func TestListener_Close(t *testing.T) {
	l := New()
	l.Start()
	if !l.WaitBound() {
		t.Fatal("listener failed to bind")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if l.Alive() {
		t.Error("Alive() = true after Close()")
	}

	if conn, err := net.Dial("unix", l.Addr()); err == nil {
		conn.Close()
		t.Error("Dial succeeded after Close()")
	}
}
