package store

import (
	"errors"
	"testing"
)

func seedMemory(t *testing.T, db *DB, u MemoryUnit) *MemoryUnit {
	t.Helper()
	if u.Store == "" {
		u.Store = StoreSTM
	}
	if u.Classification == "" {
		u.Classification = "bugfix"
	}
	if u.Summary == "" {
		u.Summary = "placeholder summary"
	}
	if err := db.CreateMemory(&u); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return &u
}

func TestCreateAndGetMemory(t *testing.T) {
	db := testDB(t)

	u := seedMemory(t, db, MemoryUnit{
		Store:          StoreLTM,
		Classification: "learning",
		Summary:        "user prefers tabs over spaces",
		Strength:       0.7,
		Importance:     0.8,
		Confidence:     0.9,
		Frequency:      1,
		Tags:           []string{"explicit-request"},
		SourceEventIDs: []string{"evt-1", "evt-2"},
	})

	if u.ID == "" {
		t.Fatal("expected assigned id")
	}
	if u.CreatedAt == 0 || u.LastDecayAt == 0 {
		t.Error("expected timestamps set")
	}

	found, err := db.GetMemory(u.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if found == nil {
		t.Fatal("expected unit, got nil")
	}
	if found.Summary != "user prefers tabs over spaces" {
		t.Errorf("summary = %q", found.Summary)
	}
	if found.Status != StatusActive {
		t.Errorf("status = %q, want active", found.Status)
	}
	if len(found.Tags) != 1 || found.Tags[0] != "explicit-request" {
		t.Errorf("tags = %v", found.Tags)
	}
	if len(found.SourceEventIDs) != 2 {
		t.Errorf("source events = %v", found.SourceEventIDs)
	}
	if found.ProjectScope != "" {
		t.Errorf("project scope = %q, want empty", found.ProjectScope)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	db := testDB(t)

	found, err := db.GetMemory("no-such-id")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if found != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestGetTopMemoriesExcludesTerminal(t *testing.T) {
	db := testDB(t)

	active := seedMemory(t, db, MemoryUnit{Summary: "active unit", Strength: 0.5})
	pinned := seedMemory(t, db, MemoryUnit{Summary: "pinned unit", Strength: 0.3, Status: StatusPinned})
	seedMemory(t, db, MemoryUnit{Summary: "decayed unit", Strength: 0.9, Status: StatusDecayed})
	seedMemory(t, db, MemoryUnit{Summary: "forgotten unit", Strength: 0.9, Status: StatusForgotten})

	top, err := db.GetTopMemories(10)
	if err != nil {
		t.Fatalf("GetTopMemories: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d units, want 2 (active+pinned)", len(top))
	}
	if top[0].ID != active.ID {
		t.Errorf("top unit = %s, want strongest active %s", top[0].ID, active.ID)
	}
	if top[1].ID != pinned.ID {
		t.Errorf("second unit = %s, want %s", top[1].ID, pinned.ID)
	}
}

func TestGetMemoriesByScope(t *testing.T) {
	db := testDB(t)

	userLevel := seedMemory(t, db, MemoryUnit{Classification: "preference", Summary: "user-level", Strength: 0.9})
	projA := seedMemory(t, db, MemoryUnit{Summary: "project a fact", Strength: 0.8, ProjectScope: "proj-a"})
	seedMemory(t, db, MemoryUnit{Summary: "project b fact", Strength: 0.7, ProjectScope: "proj-b"})

	// Scope proj-a sees user-level plus its own.
	units, err := db.GetMemoriesByScope("proj-a", 10)
	if err != nil {
		t.Fatalf("GetMemoriesByScope: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if units[0].ID != userLevel.ID || units[1].ID != projA.ID {
		t.Errorf("scoped order = %s, %s", units[0].ID, units[1].ID)
	}

	// Omitted scope sees user-level only.
	units, err = db.GetMemoriesByScope("", 10)
	if err != nil {
		t.Fatalf("GetMemoriesByScope(empty): %v", err)
	}
	if len(units) != 1 || units[0].ID != userLevel.ID {
		t.Errorf("user-level query returned %d units", len(units))
	}
}

func TestPromoteToLTM(t *testing.T) {
	db := testDB(t)
	u := seedMemory(t, db, MemoryUnit{Summary: "promote me", Strength: 0.8})

	if err := db.PromoteToLTM(u.ID); err != nil {
		t.Fatalf("PromoteToLTM: %v", err)
	}
	found, _ := db.GetMemory(u.ID)
	if found.Store != StoreLTM {
		t.Errorf("store = %q, want ltm", found.Store)
	}

	if err := db.PromoteToLTM("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("promote unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestIncrementFrequency(t *testing.T) {
	db := testDB(t)
	u := seedMemory(t, db, MemoryUnit{Summary: "count me", Frequency: 1})

	if err := db.IncrementFrequency(u.ID); err != nil {
		t.Fatalf("IncrementFrequency: %v", err)
	}
	found, _ := db.GetMemory(u.ID)
	if found.Frequency != 2 {
		t.Errorf("frequency = %d, want 2", found.Frequency)
	}
}

func TestApplyDecayedStrength(t *testing.T) {
	db := testDB(t)
	u := seedMemory(t, db, MemoryUnit{Summary: "decay me", Strength: 0.8})

	if err := db.ApplyDecayedStrength(u.ID, 0.6, u.LastDecayAt+1000); err != nil {
		t.Fatalf("ApplyDecayedStrength: %v", err)
	}
	found, _ := db.GetMemory(u.ID)
	if found.Strength != 0.6 {
		t.Errorf("strength = %v, want 0.6", found.Strength)
	}
	if found.LastDecayAt != u.LastDecayAt+1000 {
		t.Errorf("last decay = %d, want %d", found.LastDecayAt, u.LastDecayAt+1000)
	}
}

func TestAddFeedback(t *testing.T) {
	db := testDB(t)

	pin := seedMemory(t, db, MemoryUnit{Summary: "pin target"})
	if err := db.AddFeedback(FeedbackPin, pin.ID); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if found, _ := db.GetMemory(pin.ID); found.Status != StatusPinned {
		t.Errorf("status = %q, want pinned", found.Status)
	}

	forget := seedMemory(t, db, MemoryUnit{Summary: "forget target"})
	if err := db.AddFeedback(FeedbackForget, forget.ID); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if found, _ := db.GetMemory(forget.ID); found.Status != StatusForgotten {
		t.Errorf("status = %q, want forgotten", found.Status)
	}

	remember := seedMemory(t, db, MemoryUnit{Summary: "remember target", Importance: 0.5})
	if err := db.AddFeedback(FeedbackRemember, remember.ID); err != nil {
		t.Fatalf("remember: %v", err)
	}
	found, _ := db.GetMemory(remember.ID)
	if found.Store != StoreLTM {
		t.Errorf("store = %q, want ltm", found.Store)
	}
	if found.Importance != 0.7 {
		t.Errorf("importance = %v, want 0.7", found.Importance)
	}

	// Boost saturates at 1.
	high := seedMemory(t, db, MemoryUnit{Summary: "already important", Importance: 0.95})
	db.AddFeedback(FeedbackRemember, high.ID)
	if found, _ := db.GetMemory(high.ID); found.Importance != 1.0 {
		t.Errorf("importance = %v, want 1.0", found.Importance)
	}

	if err := db.AddFeedback(FeedbackPin, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("feedback unknown id: err = %v, want ErrNotFound", err)
	}
	if err := db.AddFeedback("promote", pin.ID); err == nil {
		t.Error("expected error for unknown feedback kind")
	}
}

func TestCountByStoreAndStatus(t *testing.T) {
	db := testDB(t)

	seedMemory(t, db, MemoryUnit{Summary: "a"})
	seedMemory(t, db, MemoryUnit{Summary: "b"})
	seedMemory(t, db, MemoryUnit{Summary: "c", Store: StoreLTM, Status: StatusDecayed})

	counts, err := db.CountByStoreAndStatus()
	if err != nil {
		t.Fatalf("CountByStoreAndStatus: %v", err)
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}
