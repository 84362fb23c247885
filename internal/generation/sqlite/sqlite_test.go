package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tamoray/tamoray-api/internal/generation"
)

func TestRecordAndListRecent(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	records := []generation.Record{
		{ID: "g1", UserID: "u1", Prompt: "old", Count: 1, TokensCharged: 10, URLs: []string{"https://m/1.png"}, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "g2", UserID: "u1", Prompt: "mid", Style: "flat", Count: 2, TokensCharged: 20, URLs: []string{"https://m/2.png", "https://m/3.png"}, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "g3", UserID: "u2", Prompt: "other user", Count: 1, TokensCharged: 10, URLs: []string{"https://m/4.png"}, CreatedAt: time.Now()},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record %s: %v", rec.ID, err)
		}
	}

	recent, err := store.ListRecent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records for u1, got %d", len(recent))
	}
	if recent[0].ID != "g2" || recent[1].ID != "g1" {
		t.Fatalf("unexpected ordering %s, %s", recent[0].ID, recent[1].ID)
	}
	if len(recent[0].URLs) != 2 || recent[0].URLs[1] != "https://m/3.png" {
		t.Fatalf("urls not round-tripped: %v", recent[0].URLs)
	}
	if recent[0].Style != "flat" {
		t.Fatalf("style not round-tripped: %q", recent[0].Style)
	}
}

func TestRecordValidation(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Record(context.Background(), generation.Record{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}
