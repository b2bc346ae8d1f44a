// Package httpapi exposes a read-only stats/debug surface over a
// prioritized replay buffer, in the teacher's go-chi/chi idiom
// (orchestrator-go/internal/http/server.go). The replay core itself never
// imports net/http; this package is process wiring around it.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Stats is the observer surface a PrioritizedReplay exposes: current
// size and total admitted. It is intentionally narrower
// than the full internal state described in spec.md §3 — this is a
// debug/ops view, not a way to drive the buffer.
type Stats interface {
	Size() int
	NumAdd() int64
}

// Server wires HTTP handlers to a replay buffer's observer surface.
type Server struct {
	stats  Stats
	logger *zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(stats Stats, logger *zerolog.Logger) *Server {
	return &Server{stats: stats, logger: logger}
}

// Routes builds the HTTP router for the stats/debug surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"size":    int64(s.stats.Size()),
		"num_add": s.stats.NumAdd(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.logger != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
