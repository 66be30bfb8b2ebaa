package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/vector"
)

func newTestResearchAgent(t *testing.T, chat *mockChat, embed *mockEmbed, store *mockStore, index *mockIndex) *ResearchAgent {
	t.Helper()
	return NewResearchAgent(chat, embed, store, index, testLogger(t))
}

func TestResearchMergesBothSources(t *testing.T) {
	store := &mockStore{
		clients: []models.Client{{ID: 1, Name: "Acme Corp", Email: "ops@acme.test"}},
		invoices: map[int64][]models.Invoice{
			1: {{ID: 9, Amount: 1200, DueDate: time.Now(), ClientID: 1}},
		},
	}
	index := &mockIndex{matches: []vector.Match{{ID: "note-1", Text: "Acme renewal notes", Score: 0.91}}}
	chat := &mockChat{responses: []string{"Acme Corp has one open invoice and a renewal note."}}
	agent := newTestResearchAgent(t, chat, &mockEmbed{embedding: []float32{1, 0}}, store, index)

	result, err := agent.Research(context.Background(), "acme", models.SearchTypeGeneral, 10)
	if err != nil {
		t.Fatalf("research: %v", err)
	}

	if len(result.DatabaseResults) != 2 {
		t.Fatalf("database results = %d, want client + invoice", len(result.DatabaseResults))
	}
	if len(result.VectorResults) != 1 {
		t.Fatalf("vector results = %d, want 1", len(result.VectorResults))
	}
	if result.TotalResults != 3 {
		t.Fatalf("total = %d, want 3", result.TotalResults)
	}
	if result.Summary != "Acme Corp has one open invoice and a renewal note." {
		t.Fatalf("summary = %q", result.Summary)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %d, want database and vector_store", len(result.Sources))
	}
}

func TestResearchSuppressesBranchFailures(t *testing.T) {
	store := &mockStore{
		findClientsErr:  errors.New("db offline"),
		findInvoicesErr: errors.New("db offline"),
	}
	index := &mockIndex{matches: []vector.Match{{ID: "doc", Text: "something relevant", Score: 0.8}}}
	chat := &mockChat{err: errors.New("llm offline")}
	agent := newTestResearchAgent(t, chat, &mockEmbed{embedding: []float32{1}}, store, index)

	result, err := agent.Research(context.Background(), "anything", models.SearchTypeGeneral, 10)
	if err != nil {
		t.Fatalf("research must absorb branch failures: %v", err)
	}
	if len(result.DatabaseResults) != 0 {
		t.Fatalf("db branch failed, results must be empty: %+v", result.DatabaseResults)
	}
	if len(result.VectorResults) != 1 {
		t.Fatalf("vector branch must survive db failure: %+v", result.VectorResults)
	}

	// llm summary failed too: deterministic fallback
	want := fmt.Sprintf("Found 0 database results and 1 vector results for query %q", "anything")
	if result.Summary != want {
		t.Fatalf("summary = %q, want %q", result.Summary, want)
	}
}

func TestResearchEmbeddingFailureLeavesDatabaseResults(t *testing.T) {
	store := &mockStore{clients: []models.Client{{ID: 1, Name: "Acme Corp"}}}
	agent := newTestResearchAgent(t,
		&mockChat{responses: []string{"summary"}},
		&mockEmbed{err: errors.New("embeddings offline")},
		store,
		&mockIndex{matches: []vector.Match{{ID: "x", Text: "y", Score: 1}}},
	)

	result, err := agent.Research(context.Background(), "acme", models.SearchTypeClient, 10)
	if err != nil {
		t.Fatalf("research: %v", err)
	}
	if len(result.VectorResults) != 0 {
		t.Fatal("vector branch should be empty when embedding fails")
	}
	if len(result.DatabaseResults) != 1 {
		t.Fatalf("database branch must survive, got %+v", result.DatabaseResults)
	}
}

func TestResearchConfidenceMonotonicAndBounded(t *testing.T) {
	prev := 0.0
	for db := 0; db <= 10; db++ {
		confidence := researchConfidence(db, 1)
		if confidence < prev {
			t.Fatalf("confidence decreased at db=%d: %f < %f", db, confidence, prev)
		}
		if confidence > 1 {
			t.Fatalf("confidence above 1 at db=%d: %f", db, confidence)
		}
		prev = confidence
	}

	// saturation: each source's share is capped
	if researchConfidence(100, 0) != 0.6 {
		t.Fatalf("db share should cap at 0.6, got %f", researchConfidence(100, 0))
	}
	if researchConfidence(0, 100) != 0.4 {
		t.Fatalf("vector share should cap at 0.4, got %f", researchConfidence(0, 100))
	}
	if researchConfidence(100, 100) != 1.0 {
		t.Fatalf("combined shares should cap at 1.0, got %f", researchConfidence(100, 100))
	}
	if researchConfidence(0, 0) != 0 {
		t.Fatalf("no results means zero confidence, got %f", researchConfidence(0, 0))
	}
}

func TestAmountThreshold(t *testing.T) {
	cases := []struct {
		query string
		want  float64
	}{
		{"invoices over 5000", 5000},
		{"invoices over $1,200", 0}, // separators are not parsed
		{"show me $250 invoices", 250},
		{"acme invoices", 0},
	}
	for _, tc := range cases {
		if got := amountThreshold(tc.query); got != tc.want {
			t.Fatalf("amountThreshold(%q) = %f, want %f", tc.query, got, tc.want)
		}
	}
}

func TestIndexDocumentsEmbedsBeforeUpsert(t *testing.T) {
	index := &mockIndex{}
	agent := newTestResearchAgent(t, &mockChat{}, &mockEmbed{embedding: []float32{0.5, 0.5}}, &mockStore{}, index)

	err := agent.IndexDocuments(context.Background(), []vector.Record{{ID: "doc-1", Text: "quarterly summary"}})
	if err != nil {
		t.Fatalf("index documents: %v", err)
	}
	if len(index.records) != 1 || len(index.records[0].Embedding) != 2 {
		t.Fatalf("record not embedded before upsert: %+v", index.records)
	}
}

func TestIndexDocumentsFailsWithoutEmbeddings(t *testing.T) {
	agent := newTestResearchAgent(t, &mockChat{}, &mockEmbed{err: errors.New("offline")}, &mockStore{}, &mockIndex{})

	err := agent.IndexDocuments(context.Background(), []vector.Record{{ID: "doc-1", Text: "text"}})
	if err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if !strings.Contains(err.Error(), "doc-1") {
		t.Fatalf("error should name the failing document: %v", err)
	}
}
