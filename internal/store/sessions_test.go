package store

import (
	"testing"
)

func TestInitSession(t *testing.T) {
	db := testDB(t)

	s, err := db.InitSession("sess-001", "proj-a")
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if s.Status != "active" {
		t.Errorf("status = %q, want active", s.Status)
	}

	// Re-init resumes the same active session.
	again, err := db.InitSession("sess-001", "proj-a")
	if err != nil {
		t.Fatalf("InitSession resume: %v", err)
	}
	if again.ID != s.ID {
		t.Errorf("resumed id = %d, want %d", again.ID, s.ID)
	}
}

func TestCompleteAndConsolidateSession(t *testing.T) {
	db := testDB(t)

	if _, err := db.InitSession("sess-002", ""); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if err := db.CompleteSession("sess-002"); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if err := db.MarkConsolidated("sess-002"); err != nil {
		t.Fatalf("MarkConsolidated: %v", err)
	}

	s, err := db.GetSession("sess-002")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.Status != "completed" {
		t.Errorf("status = %q, want completed", s.Status)
	}
	if s.EndedAt == nil {
		t.Error("expected ended_at set")
	}
	if s.ConsolidatedAt == nil {
		t.Error("expected consolidated_at set")
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := testDB(t)

	s, err := db.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s != nil {
		t.Error("expected nil for unknown session")
	}
}

func TestGetRecentSessions(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"sess-r1", "sess-r2", "sess-r3"} {
		if _, err := db.InitSession(id, ""); err != nil {
			t.Fatalf("InitSession %s: %v", id, err)
		}
	}

	sessions, err := db.GetRecentSessions(2)
	if err != nil {
		t.Fatalf("GetRecentSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.Status != "active" {
			t.Errorf("status = %q, want active", s.Status)
		}
	}
}

func TestRetrievalEvents(t *testing.T) {
	db := testDB(t)

	u := seedMemory(t, db, MemoryUnit{Summary: "accessed unit"})

	if err := db.AddRetrievalEvent("sess-003", u.ID); err != nil {
		t.Fatalf("AddRetrievalEvent: %v", err)
	}
	if err := db.AddRetrievalEvent("sess-003", u.ID); err != nil {
		t.Fatalf("AddRetrievalEvent: %v", err)
	}

	events, err := db.GetRetrievalEvents("sess-003")
	if err != nil {
		t.Fatalf("GetRetrievalEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].MemoryID != u.ID {
		t.Errorf("memory id = %q, want %q", events[0].MemoryID, u.ID)
	}
}
