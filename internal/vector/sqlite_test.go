package vector

import (
	"context"
	"database/sql"
	"math"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	index, err := NewSQLiteIndex(db)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return index
}

func TestQueryOrdersByCosineSimilarity(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	err := index.Upsert(ctx, []Record{
		{ID: "exact", Text: "exact match", Embedding: []float32{1, 0, 0}},
		{ID: "close", Text: "close match", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Text: "far away", Embedding: []float32{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := index.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "exact" || matches[1].ID != "close" {
		t.Fatalf("wrong order: %s, %s", matches[0].ID, matches[1].ID)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-9 {
		t.Fatalf("exact match score should be 1.0, got %f", matches[0].Score)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.Upsert(ctx, []Record{{ID: "doc", Text: "old", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := index.Upsert(ctx, []Record{{ID: "doc", Text: "new", Embedding: []float32{0, 1}}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	matches, err := index.Query(ctx, []float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "new" {
		t.Fatalf("expected replaced document, got %+v", matches)
	}
}

func TestDeleteRemovesDocuments(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	err := index.Upsert(ctx, []Record{
		{ID: "a", Text: "a", Embedding: []float32{1, 0}},
		{ID: "b", Text: "b", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := index.Delete(ctx, []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	matches, err := index.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "b" {
		t.Fatalf("expected only b to remain, got %+v", matches)
	}
}

func TestQueryRejectsNothingOnDimensionMismatch(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.Upsert(ctx, []Record{{ID: "a", Text: "a", Embedding: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// mismatched dimensions are skipped, not an error
	matches, err := index.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches across dimensions, got %+v", matches)
	}
}
