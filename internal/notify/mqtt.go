package notify

import (
	"time"

	"github.com/nerrad567/nodeward/internal/infrastructure/mqtt"
	"github.com/nerrad567/nodeward/internal/process"
)

// DefaultMQTTOutputLimit caps each output stream in a published payload.
const DefaultMQTTOutputLimit = 64 * 1024

// Publisher is the subset of the MQTT client MQTTSink uses.
type Publisher interface {
	PublishJSON(topic string, v any) error
	PublishRetained(topic string, v any) error
}

// LifecycleMessage is the JSON payload published for every event.
type LifecycleMessage struct {
	Instance  string    `json:"instance"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
}

// StateMessage is the retained payload on nodeward/state/{instance}.
type StateMessage struct {
	Instance  string    `json:"instance"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTSink publishes lifecycle events and keeps a retained state topic
// current for each instance.
type MQTTSink struct {
	pub         Publisher
	logger      Logger
	outputLimit int
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher, logger Logger) *MQTTSink {
	return &MQTTSink{
		pub:         pub,
		logger:      orNoop(logger),
		outputLimit: DefaultMQTTOutputLimit,
	}
}

// SetOutputLimit changes the per-stream output cap. Zero or less publishes
// output uncapped.
func (s *MQTTSink) SetOutputLimit(n int) {
	s.outputLimit = n
}

// HandleEvent implements process.EventSink.
func (s *MQTTSink) HandleEvent(ev process.Event) {
	msg := s.lifecycleMessage(ev)
	topic := mqtt.Topics{}.Lifecycle(ev.Instance, string(ev.Type))
	if err := s.pub.PublishJSON(topic, msg); err != nil {
		s.logger.Warn("publishing lifecycle event failed",
			"topic", topic,
			"error", err,
		)
	}

	state := StateMessage{
		Instance:  ev.Instance,
		State:     stateFor(ev.Type),
		Timestamp: msg.Timestamp,
	}
	stateTopic := mqtt.Topics{}.State(ev.Instance)
	if err := s.pub.PublishRetained(stateTopic, state); err != nil {
		s.logger.Warn("publishing process state failed",
			"topic", stateTopic,
			"error", err,
		)
	}
}

func (s *MQTTSink) lifecycleMessage(ev process.Event) LifecycleMessage {
	msg := LifecycleMessage{
		Instance:  ev.Instance,
		Event:     string(ev.Type),
		Timestamp: ev.Time.UTC(),
		Error:     ev.ErrorString(),
	}
	if ev.Type.Terminal() {
		code := ev.ExitCode
		msg.ExitCode = &code

		var cut bool
		msg.Stdout, cut = capOutput(ev.Stdout, s.outputLimit)
		msg.Truncated = cut
		msg.Stderr, cut = capOutput(ev.Stderr, s.outputLimit)
		msg.Truncated = msg.Truncated || cut
	}
	return msg
}

// capOutput keeps at most the last limit bytes of out.
func capOutput(out string, limit int) (string, bool) {
	if limit <= 0 || len(out) <= limit {
		return out, false
	}
	return tail(out, limit), true
}

// stateFor maps an event to the process state it leaves behind.
func stateFor(t process.EventType) string {
	switch t {
	case process.EventStarting:
		return string(process.StateStarting)
	case process.EventStarted:
		return string(process.StateRunning)
	default:
		return string(process.StateTerminated)
	}
}
