// Package ops exposes the operational HTTP surface: liveness derived from
// the heartbeat file, the current rotation position, and Prometheus metrics.
package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

// HeartbeatReader reads the liveness timestamp the scheduler writes.
type HeartbeatReader interface {
	Read() (time.Time, error)
}

// Server wires the ops handlers to the state stores.
type Server struct {
	router       chi.Router
	heartbeat    HeartbeatReader
	continuation runner.ContinuationStore
	clock        runner.Clock
	maxAge       time.Duration
	logger       *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(heartbeat HeartbeatReader, continuation runner.ContinuationStore, clock runner.Clock, maxAge time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		heartbeat:    heartbeat,
		continuation: continuation,
		clock:        clock,
		maxAge:       maxAge,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthz reports ok while the heartbeat is fresh. A missing or stale beat
// means the scheduler is wedged, so monitors should restart the process.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	beat, err := s.heartbeat.Read()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "no heartbeat recorded",
		})
		return
	}
	age := s.clock.Now().Sub(beat)
	if age > s.maxAge {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "heartbeat stale",
			"age":    age.Round(time.Second).String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"age":    age.Round(time.Second).String(),
	})
}

// status reports the rotation position: the last processed account and when.
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	rec, err := s.continuation.Load()
	if err != nil {
		s.logger.Error("continuation record unreadable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "continuation record unreadable",
		})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"last_account": "",
			"note":         "no cycles completed yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
