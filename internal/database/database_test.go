package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "pivoice.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

func TestRecordAndRecentAttempts(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	attempts := []Attempt{
		{ID: "a", CreatedAt: base, Kind: KindEnroll, UserKey: "alice"},
		{ID: "b", CreatedAt: base.Add(time.Minute), Kind: KindCommand, UserKey: "alice0", Matched: true,
			Similarity: 91.5, Transcript: "turn on led 1", Command: "turn on led 1", Outcome: "sent"},
		{ID: "c", CreatedAt: base.Add(2 * time.Minute), Kind: KindCommand, UserKey: "none", Similarity: 12.25,
			Outcome: "no match"},
	}
	for _, a := range attempts {
		if err := db.RecordAttempt(a); err != nil {
			t.Fatalf("RecordAttempt(%s) failed: %v", a.ID, err)
		}
	}

	got, err := db.RecentAttempts(2)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s, %s; want c, b", got[0].ID, got[1].ID)
	}
	b := got[1]
	if !b.Matched || b.Similarity != 91.5 || b.Command != "turn on led 1" || !b.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("attempt b = %+v", b)
	}
}

func TestRecordAttempt_RequiresID(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordAttempt(Attempt{Kind: KindDelete}); err == nil {
		t.Error("expected error for attempt without ID")
	}
}

func TestRecordAttempt_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordAttempt(Attempt{ID: "x", Kind: KindDelete}); err != nil {
		t.Fatalf("first RecordAttempt failed: %v", err)
	}
	if err := db.RecordAttempt(Attempt{ID: "x", Kind: KindDelete}); err == nil {
		t.Error("expected primary key conflict")
	}
}
