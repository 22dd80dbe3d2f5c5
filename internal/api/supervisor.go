package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/nodeward/internal/process"
)

// SupervisorResponse is returned by GET /supervisor.
type SupervisorResponse struct {
	process.Stats
	CommandLine []string `json:"command_line"`
}

// handleGetSupervisor returns the supervised process status.
func (s *Server) handleGetSupervisor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SupervisorResponse{
		Stats:       s.supervisor.Stats(),
		CommandLine: s.supervisor.CommandLine(),
	})
}

// handleGetPassword returns the password handed to the child during the
// handshake. It is 404 until the handshake has succeeded.
func (s *Server) handleGetPassword(w http.ResponseWriter, _ *http.Request) {
	password, ok := s.supervisor.Password()
	if !ok {
		writeNotFound(w, "no password has been issued")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"password": password})
}

// handleStopProcess requests a graceful stop. A second request while the
// process is stopping destroys it immediately.
func (s *Server) handleStopProcess(w http.ResponseWriter, _ *http.Request) {
	if err := s.supervisor.StopProcess(); err != nil {
		if errors.Is(err, process.ErrNotRunning) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "process is not running")
			return
		}
		s.logger.Error("stop request failed", "error", err)
		writeInternalError(w, "failed to stop process")
		return
	}

	s.logger.Info("stop requested via API")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "stopping",
		"state":  s.supervisor.State(),
	})
}
