package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/nodeward/internal/eventlog"
	"github.com/nerrad567/nodeward/internal/infrastructure/influxdb"
	"github.com/nerrad567/nodeward/internal/process"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == s {
			return true
		}
	}
	return false
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, v any) error {
	return p.publish(topic, v, false)
}

func (p *fakePublisher) PublishRetained(topic string, v any) error {
	return p.publish(topic, v, true)
}

func (p *fakePublisher) publish(topic string, v any, retained bool) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: b, retained: retained})
	return nil
}

type fakeMetrics struct {
	samples []influxdb.LifecycleSample
}

func (m *fakeMetrics) WriteLifecycle(s influxdb.LifecycleSample) {
	m.samples = append(m.samples, s)
}

type fakeRepo struct {
	entries []*eventlog.Entry
	err     error
}

func (r *fakeRepo) Create(_ context.Context, e *eventlog.Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRepo) List(context.Context, eventlog.Filter) (*eventlog.ListResult, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var testTime = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func stoppedEvent() process.Event {
	return process.Event{
		Type:     process.EventStopped,
		Instance: "app",
		Time:     testTime,
		Stdout:   "hello\n",
		ExitCode: 0,
	}
}

func failedEvent() process.Event {
	return process.Event{
		Type:     process.EventError,
		Instance: "app",
		Time:     testTime,
		Stderr:   "oops\n",
		ExitCode: 3,
	}
}

func TestFanout_DeliversInOrder(t *testing.T) {
	var got []string
	sink := func(name string) process.EventSink {
		return process.EventSinkFunc(func(ev process.Event) {
			got = append(got, name+":"+string(ev.Type))
		})
	}

	f := NewFanout(nil, sink("a"), nil, sink("b"))
	f.Add(sink("c"))
	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}

	f.HandleEvent(process.Event{Type: process.EventStarted})

	want := "a:started b:started c:started"
	if strings.Join(got, " ") != want {
		t.Errorf("delivery = %v, want %s", got, want)
	}
}

func TestFanout_PanicIsContained(t *testing.T) {
	logger := &recordingLogger{}
	var delivered bool

	f := NewFanout(logger,
		process.EventSinkFunc(func(process.Event) { panic("sink broke") }),
		process.EventSinkFunc(func(process.Event) { delivered = true }),
	)
	f.HandleEvent(stoppedEvent())

	if !delivered {
		t.Error("sink after panicking sink did not receive the event")
	}
	if !logger.contains("ERROR event sink panic recovered") {
		t.Errorf("panic not logged: %v", logger.lines)
	}
}

func TestLogSink(t *testing.T) {
	tests := []struct {
		name string
		ev   process.Event
		want string
	}{
		{"starting", process.Event{Type: process.EventStarting, Instance: "app"}, "INFO process starting"},
		{"started", process.Event{Type: process.EventStarted, Instance: "app"}, "INFO process started"},
		{"stopped", stoppedEvent(), "INFO process stopped"},
		{"error", failedEvent(), "ERROR process failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			NewLogSink(logger).HandleEvent(tt.ev)
			if !logger.contains(tt.want) {
				t.Errorf("log lines = %v, want %q", logger.lines, tt.want)
			}
		})
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"ascii", "abcdef", 3, "def"},
		{"shorter than limit", "ab", 3, "ab"},
		{"cut inside rune", "aé€", 4, "€"},
		{"cut on rune start", "aé€", 5, "é€"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tail(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("tail(%q, %d) = %q, not valid UTF-8", tt.in, tt.n, got)
			}
		})
	}
}

func TestCapOutput_KeepsValidUTF8(t *testing.T) {
	out, cut := capOutput("日本語", 4)
	if !cut {
		t.Error("capOutput() truncated = false, want true")
	}
	if out != "語" {
		t.Errorf("capOutput() = %q, want %q", out, "語")
	}
}

func TestMQTTSink_PublishesEventAndState(t *testing.T) {
	tests := []struct {
		name      string
		ev        process.Event
		topic     string
		state     string
		wantCode  bool
		wantField string
	}{
		{
			name:  "starting",
			ev:    process.Event{Type: process.EventStarting, Instance: "app", Time: testTime},
			topic: "nodeward/lifecycle/app/starting",
			state: "starting",
		},
		{
			name:  "started",
			ev:    process.Event{Type: process.EventStarted, Instance: "app", Time: testTime},
			topic: "nodeward/lifecycle/app/started",
			state: "running",
		},
		{
			name:      "stopped",
			ev:        stoppedEvent(),
			topic:     "nodeward/lifecycle/app/stopped",
			state:     "terminated",
			wantCode:  true,
			wantField: `"stdout":"hello\n"`,
		},
		{
			name:      "error",
			ev:        failedEvent(),
			topic:     "nodeward/lifecycle/app/error",
			state:     "terminated",
			wantCode:  true,
			wantField: `"exit_code":3`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			NewMQTTSink(pub, nil).HandleEvent(tt.ev)

			if len(pub.msgs) != 2 {
				t.Fatalf("published %d messages, want 2", len(pub.msgs))
			}

			event := pub.msgs[0]
			if event.topic != tt.topic || event.retained {
				t.Errorf("event message = %s retained=%v, want %s not retained", event.topic, event.retained, tt.topic)
			}

			var msg LifecycleMessage
			if err := json.Unmarshal(event.payload, &msg); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if (msg.ExitCode != nil) != tt.wantCode {
				t.Errorf("ExitCode present = %v, want %v", msg.ExitCode != nil, tt.wantCode)
			}
			if tt.wantField != "" && !strings.Contains(string(event.payload), tt.wantField) {
				t.Errorf("payload %s missing %s", event.payload, tt.wantField)
			}

			state := pub.msgs[1]
			if state.topic != "nodeward/state/app" || !state.retained {
				t.Errorf("state message = %s retained=%v", state.topic, state.retained)
			}
			if !strings.Contains(string(state.payload), fmt.Sprintf(`"state":%q`, tt.state)) {
				t.Errorf("state payload = %s, want state %s", state.payload, tt.state)
			}
		})
	}
}

func TestMQTTSink_TruncatesOutput(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, nil)
	sink.SetOutputLimit(4)

	ev := stoppedEvent()
	ev.Stdout = "0123456789"
	sink.HandleEvent(ev)

	var msg LifecycleMessage
	if err := json.Unmarshal(pub.msgs[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Stdout != "6789" || !msg.Truncated {
		t.Errorf("Stdout = %q Truncated = %v, want 6789 true", msg.Stdout, msg.Truncated)
	}
}

func TestMQTTSink_PublishErrorIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	pub := &fakePublisher{err: errors.New("mqtt: client not connected")}

	NewMQTTSink(pub, logger).HandleEvent(stoppedEvent())

	if !logger.contains("WARN publishing lifecycle event failed") {
		t.Errorf("lifecycle failure not logged: %v", logger.lines)
	}
	if !logger.contains("WARN publishing process state failed") {
		t.Errorf("state failure not logged: %v", logger.lines)
	}
}

func TestMetricsSink(t *testing.T) {
	m := &fakeMetrics{}
	sink := NewMetricsSink(m)

	sink.HandleEvent(process.Event{Type: process.EventStarted, Instance: "app", Time: testTime})
	sink.HandleEvent(failedEvent())

	if len(m.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(m.samples))
	}
	if m.samples[0].ExitCode != nil {
		t.Error("started sample has an exit code")
	}
	got := m.samples[1]
	if got.Event != "error" || got.ExitCode == nil || *got.ExitCode != 3 || got.StderrBytes != 5 {
		t.Errorf("error sample = %+v", got)
	}
	if !got.Time.Equal(testTime) {
		t.Errorf("Time = %v, want %v", got.Time, testTime)
	}
}

func TestEventLogSink(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewEventLogSink(repo, nil)

	sink.HandleEvent(process.Event{Type: process.EventStarting, Instance: "app", Time: testTime})
	sink.HandleEvent(failedEvent())

	if len(repo.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(repo.entries))
	}
	if repo.entries[0].ExitCode != nil {
		t.Error("starting entry has an exit code")
	}
	e := repo.entries[1]
	if e.Event != "error" || e.Stderr != "oops\n" || e.ExitCode == nil || *e.ExitCode != 3 {
		t.Errorf("error entry = %+v", e)
	}
}

func TestEventLogSink_SpawnError(t *testing.T) {
	ev := process.Event{
		Type:     process.EventError,
		Instance: "app",
		ExitCode: -1,
		Err:      errors.New("exec: \"node\": executable file not found in $PATH"),
	}

	e := EntryFromEvent(ev)
	if e.Error == "" || *e.ExitCode != -1 {
		t.Errorf("entry = %+v", e)
	}
}

func TestEventLogSink_CreateErrorIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	repo := &fakeRepo{err: errors.New("database is locked")}

	NewEventLogSink(repo, logger).HandleEvent(stoppedEvent())

	if !logger.contains("ERROR storing lifecycle event failed") {
		t.Errorf("failure not logged: %v", logger.lines)
	}
}
