package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session represents one agent session observed by the engine.
type Session struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	Project        string `json:"project,omitempty"`
	StartedAt      int64  `json:"started_at"`
	EndedAt        *int64 `json:"ended_at,omitempty"`
	Status         string `json:"status"`
	ConsolidatedAt *int64 `json:"consolidated_at,omitempty"`
}

// InitSession creates or resumes a session. If the session_id already exists
// and is active, it returns the existing session.
func (q *Queries) InitSession(sessionID, project string) (*Session, error) {
	now := time.Now().UnixMilli()

	var s Session
	err := q.r.QueryRow(`
		SELECT id, session_id, project, started_at, ended_at, status, consolidated_at
		FROM sessions WHERE session_id = ? AND status = 'active'
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.Project, &s.StartedAt, &s.EndedAt, &s.Status, &s.ConsolidatedAt)
	if err == nil {
		return &s, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	result, err := q.r.Exec(`
		INSERT INTO sessions (session_id, project, started_at, status)
		VALUES (?, ?, ?, 'active')
	`, sessionID, project, now)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Session{
		ID:        id,
		SessionID: sessionID,
		Project:   project,
		StartedAt: now,
		Status:    "active",
	}, nil
}

// GetSession returns a session by its session_id, or nil if not found.
func (q *Queries) GetSession(sessionID string) (*Session, error) {
	var s Session
	err := q.r.QueryRow(`
		SELECT id, session_id, project, started_at, ended_at, status, consolidated_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.Project, &s.StartedAt, &s.EndedAt, &s.Status, &s.ConsolidatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// CompleteSession marks an active session as completed.
func (q *Queries) CompleteSession(sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := q.r.Exec(`
		UPDATE sessions SET status = 'completed', ended_at = COALESCE(ended_at, ?)
		WHERE session_id = ? AND status = 'active'
	`, now, sessionID)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// MarkConsolidated sets the consolidation watermark, preventing duplicate
// session-end processing.
func (q *Queries) MarkConsolidated(sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := q.r.Exec(`UPDATE sessions SET consolidated_at = ? WHERE session_id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("mark consolidated: %w", err)
	}
	return nil
}

// GetRecentSessions returns the most recent sessions, started_at descending.
func (q *Queries) GetRecentSessions(limit int) ([]Session, error) {
	rows, err := q.r.Query(`
		SELECT id, session_id, project, started_at, ended_at, status, consolidated_at
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Project, &s.StartedAt, &s.EndedAt, &s.Status, &s.ConsolidatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RetrievalEvent records one detail access of a memory within a session.
type RetrievalEvent struct {
	ID        int64
	SessionID string
	MemoryID  string
	CreatedAt int64
}

// AddRetrievalEvent logs a detail access. Observational only — the utility
// feedback loop does not read it back.
func (q *Queries) AddRetrievalEvent(sessionID, memoryID string) error {
	now := time.Now().UnixMilli()
	_, err := q.r.Exec(`
		INSERT INTO retrieval_events (session_id, memory_id, created_at)
		VALUES (?, ?, ?)
	`, sessionID, memoryID, now)
	if err != nil {
		return fmt.Errorf("add retrieval event: %w", err)
	}
	return nil
}

// GetRetrievalEvents returns all retrieval events for a session, oldest first.
func (q *Queries) GetRetrievalEvents(sessionID string) ([]RetrievalEvent, error) {
	rows, err := q.r.Query(`
		SELECT id, session_id, memory_id, created_at
		FROM retrieval_events WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get retrieval events: %w", err)
	}
	defer rows.Close()

	var events []RetrievalEvent
	for rows.Next() {
		var e RetrievalEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MemoryID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan retrieval event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
