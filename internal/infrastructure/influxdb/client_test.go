package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
// A non-zero rejectWith makes every write fail with that status.
type fakeInflux struct {
	rejectWith int

	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		if f.rejectWith != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.rejectWith)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"rejected by test server"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func newFakeServer(t *testing.T, fake *fakeInflux) config.InfluxDBConfig {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "nodeward-test-token",
		Org:           "nodeward",
		Bucket:        "nodeward",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func waitForLines(t *testing.T, fake *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lines := fake.received(); len(lines) >= n {
			return lines
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, got %v", n, fake.received())
	return nil
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false}, nil)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:59999", Org: "o", Bucket: "b"}

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_AndHealthCheck(t *testing.T) {
	cfg := newFakeServer(t, &fakeInflux{})
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 10, 2, 10, 2000},
		{"defaults", 0, -1, defaultBatchSize, defaultFlushSeconds * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", got, tt.wantFlush)
			}
		})
	}
}

func TestLifecyclePoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	code := 3

	tests := []struct {
		name     string
		sample   LifecycleSample
		want     []string
		excluded string
	}{
		{
			name:     "started has no exit code",
			sample:   LifecycleSample{Instance: "app", Event: "started", Time: at},
			want:     []string{"process_lifecycle,event=started,instance=app ", "count=1i", "stdout_bytes=0i"},
			excluded: "exit_code",
		},
		{
			name: "error carries exit code and output sizes",
			sample: LifecycleSample{
				Instance: "app", Event: "error", ExitCode: &code,
				StdoutBytes: 12, StderrBytes: 5, Time: at,
			},
			want: []string{"event=error", "exit_code=3i", "stdout_bytes=12i", "stderr_bytes=5i", " 1700000000000000000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(lifecyclePoint(tt.sample), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			if tt.excluded != "" && strings.Contains(line, tt.excluded) {
				t.Errorf("line %q should not contain %q", line, tt.excluded)
			}
		})
	}
}

func TestWriteLifecycle_FlushedOnClose(t *testing.T) {
	fake := &fakeInflux{}
	cfg := newFakeServer(t, fake)
	cfg.FlushInterval = 60

	var mu sync.Mutex
	var writeErrs []error
	client, err := Connect(cfg, func(err error) {
		mu.Lock()
		writeErrs = append(writeErrs, err)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	code := 0
	client.WriteLifecycle(LifecycleSample{Instance: "app", Event: "starting"})
	client.WriteLifecycle(LifecycleSample{Instance: "app", Event: "stopped", ExitCode: &code})

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := waitForLines(t, fake, 2)
	if !strings.HasPrefix(lines[0], "process_lifecycle,event=starting,instance=app ") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "exit_code=0i") {
		t.Errorf("second line = %q", lines[1])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(writeErrs) != 0 {
		t.Errorf("write errors = %v", writeErrs)
	}
}

func TestWriteLifecycle_ReportsRejectedBatch(t *testing.T) {
	cfg := newFakeServer(t, &fakeInflux{rejectWith: http.StatusBadRequest})

	failed := make(chan error, 1)
	client, err := Connect(cfg, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteLifecycle(LifecycleSample{Instance: "app", Event: "error"})

	select {
	case err := <-failed:
		if err == nil {
			t.Error("write error callback got nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rejected batch was not reported")
	}
}

func TestClose(t *testing.T) {
	cfg := newFakeServer(t, &fakeInflux{})

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrClosed", err)
	}

	// Dropped, not panicking on a closed writer.
	client.WriteLifecycle(LifecycleSample{Instance: "app", Event: "started"})
}

func TestClose_ZeroClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
