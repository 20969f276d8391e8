package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: unified short/long-term memory units",
		SQL: `
CREATE TABLE memories (
    id              TEXT PRIMARY KEY,
    store           TEXT NOT NULL CHECK (store IN ('stm', 'ltm')),
    classification  TEXT NOT NULL CHECK (classification IN
        ('bugfix', 'learning', 'decision', 'preference',
         'constraint', 'procedural', 'semantic', 'episodic')),
    summary         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'pinned', 'decayed', 'forgotten')),

    -- Feature scores, all clamped to [0,1] by the engine
    strength        REAL NOT NULL DEFAULT 0,
    importance      REAL NOT NULL DEFAULT 0,
    utility         REAL NOT NULL DEFAULT 0,
    novelty         REAL NOT NULL DEFAULT 0,
    confidence      REAL NOT NULL DEFAULT 0,
    interference    REAL NOT NULL DEFAULT 0,
    frequency       INTEGER NOT NULL DEFAULT 1,

    -- Provenance and scope
    tags             TEXT NOT NULL DEFAULT '[]',
    project_scope    TEXT,
    source_event_ids TEXT NOT NULL DEFAULT '[]',

    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    last_decay_at   INTEGER NOT NULL
);

CREATE INDEX idx_memories_status_strength ON memories(status, strength DESC);
CREATE INDEX idx_memories_store           ON memories(store);
CREATE INDEX idx_memories_scope           ON memories(project_scope);
`,
	},
	{
		Version:     2,
		Description: "sessions: session tracking with consolidation watermark",
		SQL: `
CREATE TABLE sessions (
    id              INTEGER PRIMARY KEY,
    session_id      TEXT NOT NULL UNIQUE,
    project         TEXT,
    started_at      INTEGER NOT NULL,
    ended_at        INTEGER,
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    consolidated_at INTEGER
);

CREATE INDEX idx_sessions_status     ON sessions(status);
CREATE INDEX idx_sessions_started_at ON sessions(started_at DESC);
`,
	},
	{
		Version:     3,
		Description: "retrieval_events: detail accesses per session",
		SQL: `
CREATE TABLE retrieval_events (
    id          INTEGER PRIMARY KEY,
    session_id  TEXT NOT NULL,
    memory_id   TEXT NOT NULL,
    created_at  INTEGER NOT NULL,

    FOREIGN KEY (memory_id) REFERENCES memories(id)
);

CREATE INDEX idx_retrieval_session ON retrieval_events(session_id);
CREATE INDEX idx_retrieval_memory  ON retrieval_events(memory_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.DB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.DB.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.DB.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
