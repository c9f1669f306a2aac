package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if REVIEWLENS_TEST_PG_DSN is set
	dsn := os.Getenv("REVIEWLENS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: REVIEWLENS_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()

	rec := &storage.Record{
		ID:         "testpg1234",
		Key:        "logitech mx master 3s",
		Product:    "Logitech MX Master 3S",
		ModelUsed:  "openrouter",
		SourceKind: "corpus",
		Answer:     "Verdict: recommended. Rating: 9/10.",
		Sources:    []string{"http://example-pg.com/review"},
		Duration:   50 * time.Millisecond,
		CreatedAt:  now,
	}

	err = b.Save(ctx, rec)
	if err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	// Test Query
	filter := storage.Filter{
		Key: "logitech mx master 3s",
	}

	records, err := b.Query(ctx, filter)
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}

	// Can be more than 1 if tests run repeatedly, so we just check the most recent
	if len(records) < 1 {
		t.Fatalf("Expected at least 1 record, got %d", len(records))
	}

	got := records[0]
	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
	if got.Key != rec.Key {
		t.Errorf("Expected Key %s, got %s", rec.Key, got.Key)
	}
	if got.Product != rec.Product {
		t.Errorf("Expected Product %s, got %s", rec.Product, got.Product)
	}
	if got.ModelUsed != rec.ModelUsed {
		t.Errorf("Expected ModelUsed %s, got %s", rec.ModelUsed, got.ModelUsed)
	}
	if got.SourceKind != rec.SourceKind {
		t.Errorf("Expected SourceKind %s, got %s", rec.SourceKind, got.SourceKind)
	}
	if got.Answer != rec.Answer {
		t.Errorf("Expected Answer %s, got %s", rec.Answer, got.Answer)
	}
	if len(got.Sources) != 1 || got.Sources[0] != rec.Sources[0] {
		t.Errorf("Expected Sources %v, got %v", rec.Sources, got.Sources)
	}
	// Note: precision might be lost if we only store ms
	if got.Duration.Milliseconds() != rec.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}

	// Postgres timestamps might differ slightly in sub-millisecond precision
	// compared to Go time.Now(), checking Unix seconds is usually safe enough
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	// Test Since filter
	past := now.Add(-1 * time.Hour)
	filterSince := storage.Filter{Key: "logitech mx master 3s", Since: &past}
	recordsSince, err := b.Query(ctx, filterSince)
	if err != nil {
		t.Fatalf("Failed to query records with Since: %v", err)
	}
	if len(recordsSince) < 1 {
		t.Fatalf("Expected at least 1 record, got %d", len(recordsSince))
	}
}
