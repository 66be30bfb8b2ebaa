package vector

import "context"

// Record is one embedded document in the index.
type Record struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
}

// Match is a query hit ordered by similarity.
type Match struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index is the semantic search surface consumed by the research agent.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
}
