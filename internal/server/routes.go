package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/engine"
)

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates   []engine.Candidate `json:"candidates"`
		SessionID    string             `json:"session_id"`
		ProjectScope string             `json:"project_scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "candidates required")
		return
	}

	units, err := s.engine.ProcessCandidates(req.Candidates, engine.IntakeOptions{
		SessionID:    req.SessionID,
		ProjectScope: req.ProjectScope,
	})
	if err != nil {
		s.log.Error("candidate intake failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"memories": units})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.db.GetRecentSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Project   string `json:"project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	sess, err := s.db.InitSession(req.SessionID, req.Project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.SessionID,
		"status":     sess.Status,
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	res, err := s.engine.EndSession(sessionID)
	if err != nil {
		s.log.Error("session end failed", zap.String("session", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRetrieveIndex(w http.ResponseWriter, r *http.Request) {
	q := engine.IndexQuery{
		Text:  r.URL.Query().Get("q"),
		Store: r.URL.Query().Get("store"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			q.Limit = limit
		}
	}
	if v := r.URL.Query().Get("min_strength"); v != "" {
		if min, err := strconv.ParseFloat(v, 64); err == nil {
			q.MinStrength = min
		}
	}
	if v := r.URL.Query()["classification"]; len(v) > 0 {
		q.Classifications = v
	}
	if v := r.URL.Query()["tag"]; len(v) > 0 {
		q.Tags = v
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if since, err := time.Parse(time.RFC3339, v); err == nil {
			q.Since = since
		}
	}

	items, err := s.ranker.RetrieveIndex(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": items})
}

func (s *Server) handleRetrieveScoped(w http.ResponseWriter, r *http.Request) {
	opts := engine.ScopeOptions{
		ProjectScope: r.URL.Query().Get("project"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			opts.Limit = limit
		}
	}

	text := r.URL.Query().Get("q")
	items, err := s.ranker.SearchByScope(text, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": items})
}

func (s *Server) handleRetrieveDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs       []string `json:"ids"`
		SessionID string   `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}

	details, err := s.ranker.RetrieveDetails(req.IDs, req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": details})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.engine.AddFeedback(req.Kind, memoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if !res.Applied {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReconsolidate(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	var req engine.ReconsolidateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.engine.Reconsolidate(memoryID, req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if res.Outcome == engine.OutcomeNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

func (s *Server) handleUtility(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	var req struct {
		WasUsed bool `json:"was_used"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	unit, err := s.engine.UpdateUtility(memoryID, req.WasUsed)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memory": unit})
}
