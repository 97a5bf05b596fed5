package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jdziat/swipe-sync/pkg/core"
)

type queueResponse struct {
	core.QueueStatus
	Online  bool                 `json:"online"`
	Pending []*core.QueuedAction `json:"pending"`
}

// Health reports liveness and connectivity.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": s.online(),
	})
}

func (s *Server) online() bool {
	if s.monitor == nil {
		return true
	}
	return s.monitor.Online()
}

// QueueStatus returns the queue status and pending actions.
func (s *Server) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueResponse{
		QueueStatus: s.queue.Status(),
		Online:      s.online(),
		Pending:     s.queue.Pending(),
	})
}

// ProcessQueue starts a processing loop if none is running.
func (s *Server) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	s.queue.Trigger()
	writeJSON(w, http.StatusAccepted, s.queue.Status())
}

// ClearQueue drops every pending action.
func (s *Server) ClearQueue(w http.ResponseWriter, r *http.Request) {
	s.queue.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// State returns the optimistic state snapshot.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// DismissError clears the operation error.
func (s *Server) DismissError(w http.ResponseWriter, r *http.Request) {
	s.ctrl.DismissError(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// SetConnectivity overrides the monitor's connectivity.
func (s *Server) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeError(w, http.StatusNotImplemented, errors.New("connectivity monitor disabled"))
		return
	}
	var req struct {
		Online bool `json:"online"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.monitor.Set(req.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.monitor.Online()})
}

// LoadJobs reloads the deck from the backend.
func (s *Server) LoadJobs(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.LoadJobs(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// Refresh merges the backend's collections into the state.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Refresh(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// Swipe accepts, rejects or skips the job on top of the deck.
func (s *Server) Swipe(w http.ResponseWriter, r *http.Request) {
	var (
		job core.Job
		err error
	)
	switch chi.URLParam(r, "decision") {
	case "accept":
		job, err = s.ctrl.Accept(r.Context())
	case "reject":
		job, err = s.ctrl.Reject(r.Context())
	case "skip":
		job, err = s.ctrl.Skip(r.Context())
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown decision"))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// Undo rolls back the most recent swipe.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	last, err := s.ctrl.Undo(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, last)
}

// ToggleSave saves or unsaves the job in the request body.
func (s *Server) ToggleSave(w http.ResponseWriter, r *http.Request) {
	var job core.Job
	if err := decodeJSON(w, r, &job); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := s.ctrl.ToggleSave(r.Context(), job)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "saved": saved})
}

// Report flags a job.
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Job    core.Job `json:"job"`
		Reason string   `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.Report(r.Context(), req.Job, req.Reason); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Unreport withdraws a report.
func (s *Server) Unreport(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Unreport(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Unskip removes a job from the skipped collection.
func (s *Server) Unskip(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Unskip(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
