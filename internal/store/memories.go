package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store values.
const (
	StoreSTM = "stm"
	StoreLTM = "ltm"
)

// Status values. Units are never physically deleted — "decayed" and
// "forgotten" are terminal statuses, "pinned" exempts a unit from decay
// and reconsolidation.
const (
	StatusActive    = "active"
	StatusPinned    = "pinned"
	StatusDecayed   = "decayed"
	StatusForgotten = "forgotten"
)

// Classifications forms the closed classification set.
var Classifications = map[string]bool{
	"bugfix": true, "learning": true, "decision": true, "preference": true,
	"constraint": true, "procedural": true, "semantic": true, "episodic": true,
}

// UserLevelClassifications are always user-level: their project_scope must
// stay empty regardless of the scope requested at intake.
var UserLevelClassifications = map[string]bool{
	"constraint": true, "preference": true, "learning": true, "procedural": true,
}

// Feedback kinds.
const (
	FeedbackPin      = "pin"
	FeedbackForget   = "forget"
	FeedbackRemember = "remember"
)

// MemoryUnit is a persistent memory record.
type MemoryUnit struct {
	ID             string   `json:"id"`
	Store          string   `json:"store"`
	Classification string   `json:"classification"`
	Summary        string   `json:"summary"`
	Status         string   `json:"status"`
	Strength       float64  `json:"strength"`
	Importance     float64  `json:"importance"`
	Utility        float64  `json:"utility"`
	Novelty        float64  `json:"novelty"`
	Confidence     float64  `json:"confidence"`
	Interference   float64  `json:"interference"`
	Frequency      int      `json:"frequency"`
	Tags           []string `json:"tags,omitempty"`
	ProjectScope   string   `json:"project_scope,omitempty"` // empty ⇒ user-level
	SourceEventIDs []string `json:"source_event_ids,omitempty"`
	CreatedAt      int64    `json:"created_at"` // ms epoch
	UpdatedAt      int64    `json:"updated_at"`
	LastDecayAt    int64    `json:"last_decay_at"` // reference point for incremental decay
}

const memoryColumns = `id, store, classification, summary, status,
	strength, importance, utility, novelty, confidence, interference, frequency,
	tags, project_scope, source_event_ids, created_at, updated_at, last_decay_at`

// CreateMemory inserts a new memory unit. Assigns a UUID when the id is
// empty and initializes the decay reference point to creation time.
func (q *Queries) CreateMemory(u *MemoryUnit) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	now := time.Now().UnixMilli()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.LastDecayAt = now

	_, err := q.r.Exec(`
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?)
	`, u.ID, u.Store, u.Classification, u.Summary, u.Status,
		u.Strength, u.Importance, u.Utility, u.Novelty, u.Confidence, u.Interference, u.Frequency,
		marshalStrings(u.Tags), u.ProjectScope, marshalStrings(u.SourceEventIDs),
		u.CreatedAt, u.UpdatedAt, u.LastDecayAt)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// GetMemory returns a unit by id, or nil if not found.
func (q *Queries) GetMemory(id string) (*MemoryUnit, error) {
	row := q.r.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	u, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return u, nil
}

// GetMemoriesByStore returns all units in the given store, strength descending.
func (q *Queries) GetMemoriesByStore(storeKind string) ([]MemoryUnit, error) {
	rows, err := q.r.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE store = ?
		ORDER BY strength DESC, created_at DESC, id
	`, storeKind)
	if err != nil {
		return nil, fmt.Errorf("get memories by store: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetTopMemories returns up to limit active or pinned units, strength
// descending. This is the bounded corpus for novelty, interference, and
// unscoped ranking pools.
func (q *Queries) GetTopMemories(limit int) ([]MemoryUnit, error) {
	rows, err := q.r.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE status IN ('active', 'pinned')
		ORDER BY strength DESC, created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get top memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetMemoriesByScope returns active or pinned units visible in the given
// project scope: user-level units plus units whose scope matches. An empty
// scope yields user-level units only.
func (q *Queries) GetMemoriesByScope(projectScope string, limit int) ([]MemoryUnit, error) {
	rows, err := q.r.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE status IN ('active', 'pinned')
		  AND (project_scope IS NULL OR project_scope = NULLIF(?, ''))
		ORDER BY strength DESC, created_at DESC, id
		LIMIT ?
	`, projectScope, limit)
	if err != nil {
		return nil, fmt.Errorf("get memories by scope: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListDecayable returns all active units — the decay targets. Pinned,
// decayed, and forgotten units are excluded by status.
func (q *Queries) ListDecayable() ([]MemoryUnit, error) {
	rows, err := q.r.Query(`
		SELECT ` + memoryColumns + ` FROM memories
		WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("list decayable: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// PromoteToLTM moves a unit to the long-term store.
func (q *Queries) PromoteToLTM(id string) error {
	return q.execOne(`
		UPDATE memories SET store = 'ltm', updated_at = ?
		WHERE id = ?
	`, "promote to ltm", time.Now().UnixMilli(), id)
}

// UpdateMemoryStatus sets a unit's status.
func (q *Queries) UpdateMemoryStatus(id, status string) error {
	return q.execOne(`
		UPDATE memories SET status = ?, updated_at = ?
		WHERE id = ?
	`, "update status", status, time.Now().UnixMilli(), id)
}

// UpdateMemoryStrength sets a unit's strength.
func (q *Queries) UpdateMemoryStrength(id string, strength float64) error {
	return q.execOne(`
		UPDATE memories SET strength = ?, updated_at = ?
		WHERE id = ?
	`, "update strength", strength, time.Now().UnixMilli(), id)
}

// ApplyDecayedStrength records a decayed strength and advances the unit's
// decay reference point so the next pass is incremental.
func (q *Queries) ApplyDecayedStrength(id string, strength float64, nowMs int64) error {
	return q.execOne(`
		UPDATE memories SET strength = ?, last_decay_at = ?, updated_at = ?
		WHERE id = ?
	`, "apply decay", strength, nowMs, nowMs, id)
}

// IncrementFrequency bumps a unit's repetition counter.
func (q *Queries) IncrementFrequency(id string) error {
	return q.execOne(`
		UPDATE memories SET frequency = frequency + 1, updated_at = ?
		WHERE id = ?
	`, "increment frequency", time.Now().UnixMilli(), id)
}

// UpdateReconsolidation records a reconsolidation outcome: new confidence,
// possibly annotated summary, possibly appended source event.
func (q *Queries) UpdateReconsolidation(id, summary string, confidence float64, sourceEventIDs []string) error {
	return q.execOne(`
		UPDATE memories SET summary = ?, confidence = ?, source_event_ids = ?, updated_at = ?
		WHERE id = ?
	`, "update reconsolidation", summary, confidence, marshalStrings(sourceEventIDs), time.Now().UnixMilli(), id)
}

// UpdateUtilityAndStrength records a utility adjustment together with the
// recomputed strength.
func (q *Queries) UpdateUtilityAndStrength(id string, utility, strength float64) error {
	return q.execOne(`
		UPDATE memories SET utility = ?, strength = ?, updated_at = ?
		WHERE id = ?
	`, "update utility", utility, strength, time.Now().UnixMilli(), id)
}

// AddFeedback applies explicit user feedback to a unit:
// pin sets status=pinned, forget sets status=forgotten, and remember moves
// the unit to ltm with boosted importance. Unknown ids yield ErrNotFound,
// unknown kinds an error.
func (q *Queries) AddFeedback(kind, id string) error {
	now := time.Now().UnixMilli()
	switch kind {
	case FeedbackPin:
		return q.execOne(`
			UPDATE memories SET status = 'pinned', updated_at = ?
			WHERE id = ?
		`, "pin", now, id)
	case FeedbackForget:
		return q.execOne(`
			UPDATE memories SET status = 'forgotten', updated_at = ?
			WHERE id = ?
		`, "forget", now, id)
	case FeedbackRemember:
		return q.execOne(`
			UPDATE memories SET store = 'ltm', importance = min(1.0, importance + 0.2), updated_at = ?
			WHERE id = ?
		`, "remember", now, id)
	default:
		return fmt.Errorf("unknown feedback kind %q", kind)
	}
}

// StatusCounts tallies units by store and status, covering aged-out facts.
type StatusCounts struct {
	Store  string `json:"store"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// CountByStoreAndStatus returns unit counts grouped by store and status.
func (q *Queries) CountByStoreAndStatus() ([]StatusCounts, error) {
	rows, err := q.r.Query(`
		SELECT store, status, COUNT(*) FROM memories
		GROUP BY store, status
		ORDER BY store, status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by store/status: %w", err)
	}
	defer rows.Close()

	var counts []StatusCounts
	for rows.Next() {
		var c StatusCounts
		if err := rows.Scan(&c.Store, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// execOne runs a single-row mutation and maps zero affected rows to
// ErrNotFound.
func (q *Queries) execOne(query, op string, args ...any) error {
	result, err := q.r.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*MemoryUnit, error) {
	var u MemoryUnit
	var tags, sourceEvents string
	var scope sql.NullString
	err := row.Scan(&u.ID, &u.Store, &u.Classification, &u.Summary, &u.Status,
		&u.Strength, &u.Importance, &u.Utility, &u.Novelty, &u.Confidence, &u.Interference, &u.Frequency,
		&tags, &scope, &sourceEvents, &u.CreatedAt, &u.UpdatedAt, &u.LastDecayAt)
	if err != nil {
		return nil, err
	}
	u.ProjectScope = scope.String
	u.Tags = unmarshalStrings(tags)
	u.SourceEventIDs = unmarshalStrings(sourceEvents)
	return &u, nil
}

func scanMemories(rows *sql.Rows) ([]MemoryUnit, error) {
	var units []MemoryUnit
	for rows.Next() {
		u, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}
