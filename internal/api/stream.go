package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
	"github.com/nerrad567/nodeward/internal/infrastructure/logging"
	"github.com/nerrad567/nodeward/internal/process"
)

// Frame kinds on the lifecycle stream.
const (
	FrameSnapshot  = "snapshot"
	FrameLifecycle = "lifecycle"
)

// streamQueueSize bounds the frames buffered for one watcher. A watcher
// that lets it fill up is dropped.
const streamQueueSize = 64

// Frame is one JSON text message sent to a stream watcher. A connection
// opens with a snapshot frame and then carries one lifecycle frame per event.
type Frame struct {
	Type  string          `json:"type"`
	Stats *process.Stats  `json:"stats,omitempty"`
	Event *LifecycleFrame `json:"event,omitempty"`
}

// LifecycleFrame is the wire form of a process.Event.
type LifecycleFrame struct {
	Instance string `json:"instance"`
	Event    string `json:"event"`
	Time     string `json:"time"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

func lifecycleFrame(ev process.Event) Frame {
	lf := &LifecycleFrame{
		Instance: ev.Instance,
		Event:    string(ev.Type),
		Time:     ev.Time.UTC().Format(time.RFC3339Nano),
		Error:    ev.ErrorString(),
		Stdout:   ev.Stdout,
		Stderr:   ev.Stderr,
	}
	if ev.Type.Terminal() {
		code := ev.ExitCode
		lf.ExitCode = &code
	}
	return Frame{Type: FrameLifecycle, Event: lf}
}

// Hub fans lifecycle events out to every connected watcher. The stream is
// one-way: anything a watcher sends only keeps its connection alive.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	done     bool
}

// watcher is one stream connection. Its queue is closed only by the hub,
// with the hub lock held, after the watcher has left the set.
type watcher struct {
	conn  *websocket.Conn
	queue chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already filtered by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		watchers: make(map[*watcher]struct{}),
	}
}

// Run blocks until ctx is cancelled and then disconnects every watcher.
// Connections attempted afterwards are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	for w := range h.watchers {
		h.dropLocked(w)
	}
}

// ClientCount returns the number of connected watchers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// HandleEvent implements process.EventSink. It never blocks: a watcher whose
// queue is full is disconnected.
func (h *Hub) HandleEvent(ev process.Event) {
	data, err := json.Marshal(lifecycleFrame(ev))
	if err != nil {
		h.logger.Error("encoding lifecycle frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		select {
		case w.queue <- data:
		default:
			h.logger.Warn("dropping slow stream watcher", "event", ev.Type)
			h.dropLocked(w)
		}
	}
}

// join registers a watcher with first already queued, so nothing can be
// delivered ahead of it. It returns nil once the hub has shut down.
func (h *Hub) join(conn *websocket.Conn, first []byte) *watcher {
	w := &watcher{conn: conn, queue: make(chan []byte, streamQueueSize)}
	w.queue <- first

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}
	h.watchers[w] = struct{}{}
	h.logger.Debug("stream watcher connected", "watchers", len(h.watchers))
	return w
}

// leave removes w if the hub has not already dropped it.
func (h *Hub) leave(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		h.dropLocked(w)
	}
	h.logger.Debug("stream watcher disconnected", "watchers", len(h.watchers))
}

func (h *Hub) dropLocked(w *watcher) {
	delete(h.watchers, w)
	close(w.queue)
}

// handleWebSocket upgrades the request and starts streaming. The first frame
// is a snapshot of the supervisor so a watcher never has to guess the state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	stats := s.supervisor.Stats()
	snapshot, err := json.Marshal(Frame{Type: FrameSnapshot, Stats: &stats})
	if err != nil {
		s.logger.Error("encoding snapshot frame", "error", err)
		conn.Close()
		return
	}

	wt := s.hub.join(conn, snapshot)
	if wt == nil {
		//nolint:errcheck // Best-effort close frame
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go s.hub.send(wt)
	go s.hub.drain(wt)
}

// keepalive returns the ping period and the read deadline derived from it.
func (h *Hub) keepalive() (ping, wait time.Duration) {
	ping = time.Duration(h.cfg.PingInterval) * time.Second
	wait = ping + time.Duration(h.cfg.PongTimeout)*time.Second
	return ping, wait
}

// drain discards inbound messages until the connection fails. Reading is
// still required so control frames (pong, close) are processed.
func (h *Hub) drain(w *watcher) {
	defer func() {
		h.leave(w)
		w.conn.Close()
	}()

	_, wait := h.keepalive()
	extend := func() error { return w.conn.SetReadDeadline(time.Now().Add(wait)) }

	w.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	extend() //nolint:errcheck // Deadline errors surface on the next read
	w.conn.SetPongHandler(func(string) error { return extend() })

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("stream watcher read failed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // Deadline errors surface on the next read
	}
}

// send writes queued frames and periodic pings. It returns when the hub
// closes the queue or a write fails.
func (h *Hub) send(w *watcher) {
	ping, wait := h.keepalive()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case data, ok := <-w.queue:
			w.conn.SetWriteDeadline(time.Now().Add(wait)) //nolint:errcheck // Write reports it
			if !ok {
				//nolint:errcheck // Best-effort close frame
				w.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(wait)) //nolint:errcheck // Write reports it
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
