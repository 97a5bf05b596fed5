// Package api serves the local status and control API: queue inspection
// and flushing, the optimistic state, swipe operations, connectivity
// overrides and a websocket stream of queue events.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/online"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/swipe"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 1 << 20

// Server holds the components the API exposes.
type Server struct {
	queue   *queue.Queue
	ctrl    *swipe.Controller
	monitor *online.Monitor
	logger  *slog.Logger
}

// NewServer creates a Server. monitor may be nil.
func NewServer(q *queue.Queue, ctrl *swipe.Controller, monitor *online.Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{queue: q, ctrl: ctrl, monitor: monitor, logger: logger}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.Health)

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", s.QueueStatus)
		r.Post("/process", s.ProcessQueue)
		r.Delete("/", s.ClearQueue)
	})

	r.Route("/state", func(r chi.Router) {
		r.Get("/", s.State)
		r.Delete("/error", s.DismissError)
	})

	r.Post("/connectivity", s.SetConnectivity)

	r.Post("/jobs/load", s.LoadJobs)
	r.Post("/refresh", s.Refresh)
	r.Post("/swipe/{decision}", s.Swipe)
	r.Post("/undo", s.Undo)
	r.Post("/saved/toggle", s.ToggleSave)
	r.Post("/reported", s.Report)
	r.Delete("/reported/{jobID}", s.Unreport)
	r.Delete("/skipped/{jobID}", s.Unskip)

	r.Get("/events", s.Events)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, swipe.ErrDeckEmpty), errors.Is(err, core.ErrNothingToUndo):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidJobID),
		errors.Is(err, core.ErrJobIDTooLong),
		errors.Is(err, core.ErrPayloadTooLarge),
		errors.Is(err, core.ErrUnknownActionType):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
