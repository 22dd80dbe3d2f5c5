package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
	"github.com/nerrad567/nodeward/internal/infrastructure/logging"
	"github.com/nerrad567/nodeward/internal/infrastructure/mqtt"
	"github.com/nerrad567/nodeward/internal/process"
)

const quitScript = `#!/bin/sh
while read cmd rest; do
  [ "$cmd" = "quit" ] && exit 0
done
exit 0
`

const failingScript = `#!/bin/sh
echo "oops" >&2
exit 3
`

// writeConfig writes a child script and a config that runs it with every
// optional backend disabled.
func writeConfig(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "child.sh"), []byte(script), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("write script: %v", err)
	}

	content := fmt.Sprintf(`
supervisor:
  instance: test-app
  dir: %q
  exec: ./child.sh
  script: app.js
  args: ["--port", "8080"]
  force_kill_timeout: 500ms
  wait_delay: 500ms

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`, dir, filepath.Join(dir, "nodeward.db"))

	path := filepath.Join(dir, "nodeward.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantConfig  string
		wantVersion bool
		wantErr     bool
	}{
		{"none", nil, "", false, false},
		{"long config", []string{"--config", "/etc/nodeward.yaml"}, "/etc/nodeward.yaml", false, false},
		{"short config", []string{"-c", "x.yaml"}, "x.yaml", false, false},
		{"version", []string{"--version"}, "", true, false},
		{"unknown flag", []string{"--bogus"}, "", false, true},
		{"positional", []string{"extra"}, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.configPath != tt.wantConfig || opts.showVersion != tt.wantVersion {
				t.Errorf("parseFlags() = %+v", opts)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "nodeward dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/path/nodeward.yaml"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_ProcessExitsCleanly(t *testing.T) {
	path := writeConfig(t, "#!/bin/sh\nexit 0\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, []string{"--config", path}, &bytes.Buffer{}); err != nil {
		t.Errorf("run() error = %v", err)
	}
}

func TestRun_ProcessFailure(t *testing.T) {
	path := writeConfig(t, failingScript)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", path}, &bytes.Buffer{})
	if !errors.Is(err, errProcessFailed) {
		t.Fatalf("run() error = %v, want errProcessFailed", err)
	}
	if !strings.Contains(err.Error(), "exit code 3") {
		t.Errorf("run() error = %v, want exit code 3", err)
	}
}

func TestRun_ShutdownStopsProcess(t *testing.T) {
	path := writeConfig(t, quitScript)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", path}, &bytes.Buffer{})
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after shutdown")
	}
}

type fakeStopper struct {
	mu    sync.Mutex
	err   error
	stops int
	done  chan struct{}
}

func (f *fakeStopper) Instance() string { return "test-app" }

func (f *fakeStopper) StopProcess() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.err
}

func (f *fakeStopper) Done() <-chan struct{} { return f.done }

type fakeController struct {
	instance string
	handler  mqtt.ControlHandler
}

func (f *fakeController) HandleControl(instance string, handler mqtt.ControlHandler) error {
	f.instance, f.handler = instance, handler
	return nil
}

func TestHandleControl(t *testing.T) {
	ctl := &fakeController{}
	sup := &fakeStopper{}

	if err := handleControl(ctl, sup, testLogger()); err != nil {
		t.Fatalf("handleControl() error = %v", err)
	}
	if ctl.instance != "test-app" {
		t.Errorf("routed instance = %q, want test-app", ctl.instance)
	}

	if err := ctl.handler(mqtt.ActionStop, nil); err != nil {
		t.Errorf("handler() error = %v", err)
	}
	if sup.stops != 1 {
		t.Errorf("StopProcess called %d times, want 1", sup.stops)
	}
}

func TestControlHandler(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		stopErr   error
		wantErr   bool
		wantStops int
	}{
		{"stop", mqtt.ActionStop, nil, false, 1},
		{"not running is ignored", mqtt.ActionStop, process.ErrNotRunning, false, 1},
		{"other errors surface", mqtt.ActionStop, errors.New("broken pipe"), true, 1},
		{"unknown action", "restart", nil, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &fakeStopper{err: tt.stopErr}
			h := controlHandler(sup, testLogger())
			if err := h(tt.action, nil); (err != nil) != tt.wantErr {
				t.Errorf("handler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sup.stops != tt.wantStops {
				t.Errorf("StopProcess called %d times, want %d", sup.stops, tt.wantStops)
			}
		})
	}
}

func TestShutdown_CancelsWhenStuck(t *testing.T) {
	sup := &fakeStopper{done: make(chan struct{})}
	cancelled := make(chan struct{})
	cancel := func() {
		close(cancelled)
		close(sup.done)
	}

	cfg := config.SupervisorConfig{ForceKillTimeout: 10 * time.Millisecond, WaitDelay: 10 * time.Millisecond}
	start := time.Now()
	shutdown(sup, cancel, cfg, testLogger())

	select {
	case <-cancelled:
	default:
		t.Fatal("shutdown() did not cancel a stuck supervisor")
	}
	if elapsed := time.Since(start); elapsed < shutdownGrace {
		t.Errorf("shutdown() cancelled after %v, before the grace period", elapsed)
	}
	if sup.stops != 1 {
		t.Errorf("StopProcess called %d times, want 1", sup.stops)
	}
}

func TestShutdown_ReturnsWhenDone(t *testing.T) {
	sup := &fakeStopper{done: make(chan struct{})}
	close(sup.done)

	shutdown(sup, func() { t.Error("cancel called for a finished supervisor") }, config.SupervisorConfig{}, testLogger())
}

func TestExitResult(t *testing.T) {
	zero, three, killed := 0, 3, -1

	tests := []struct {
		name    string
		stats   process.Stats
		wantErr bool
	}{
		{"clean exit", process.Stats{ExitCode: &zero}, false},
		{"non-zero exit", process.Stats{ExitCode: &three, LastError: "exit status 3"}, true},
		{"spawn failure", process.Stats{LastError: "spawn failed"}, true},
		{"killed after stop", process.Stats{ExitCode: &killed, ForcedKill: true, LastError: "process exited with status -1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitResult(tt.stats, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("exitResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errProcessFailed) {
				t.Errorf("exitResult() error = %v, want errProcessFailed", err)
			}
		})
	}
}
