package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/nodeward/internal/eventlog"
	"github.com/nerrad567/nodeward/internal/process"
)

// validEvents lists the accepted values of the event filter.
var validEvents = map[string]bool{
	string(process.EventStarting): true,
	string(process.EventStarted):  true,
	string(process.EventStopped):  true,
	string(process.EventError):    true,
}

// handleListEvents returns stored lifecycle events, most recent first.
//
// Query parameters: instance, event, limit (default 50, max 200), offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event log not available")
		return
	}

	q := r.URL.Query()
	filter := eventlog.Filter{
		Instance: q.Get("instance"),
		Event:    q.Get("event"),
	}

	if filter.Event != "" && !validEvents[filter.Event] {
		writeBadRequest(w, "event must be one of starting, started, stopped, error")
		return
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.eventLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing lifecycle events failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value is invalid.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// PruneRequest selects which events POST /events/prune deletes.
type PruneRequest struct {
	// OlderThan is a Go duration such as "720h".
	OlderThan string `json:"older_than"`
}

// handlePruneEvents deletes events older than the requested age.
func (s *Server) handlePruneEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event log not available")
		return
	}

	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	age, err := time.ParseDuration(req.OlderThan)
	if err != nil || age <= 0 {
		writeBadRequest(w, "older_than must be a positive duration")
		return
	}

	before := time.Now().Add(-age)
	deleted, err := s.eventLog.Prune(r.Context(), before)
	if err != nil {
		s.logger.Error("pruning lifecycle events failed", "error", err)
		writeInternalError(w, "failed to prune events")
		return
	}

	s.logger.Info("lifecycle events pruned", "deleted", deleted, "before", before.UTC().Format(time.RFC3339))
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
	})
}
