// Package server exposes the engine's call contracts over HTTP for host
// adapters: intake, session end, query, and feedback.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/store"
)

// Server is the engram HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	ranker  *engine.Ranker
	router  chi.Router
	version string
	started time.Time
	log     *zap.Logger
}

// New creates a new Server with the given components and version string.
func New(db *store.DB, eng *engine.Engine, ranker *engine.Ranker, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:      db,
		engine:  eng,
		ranker:  ranker,
		version: version,
		started: time.Now(),
		log:     logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Post("/candidates", s.handleCandidates)
		r.Get("/sessions", s.handleSessions)
		r.Post("/sessions/init", s.handleSessionInit)
		r.Post("/sessions/{sessionID}/end", s.handleSessionEnd)

		r.Get("/memories", s.handleRetrieveIndex)
		r.Get("/memories/scoped", s.handleRetrieveScoped)
		r.Post("/memories/details", s.handleRetrieveDetails)
		r.Post("/memories/{memoryID}/feedback", s.handleFeedback)
		r.Post("/memories/{memoryID}/reconsolidate", s.handleReconsolidate)
		r.Post("/memories/{memoryID}/utility", s.handleUtility)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountByStoreAndStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
