package models

import "fmt"

// SearchResult is one hit from either the structured store or the vector
// index, normalized for synthesis.
type SearchResult struct {
	ID      string                 `json:"id"`
	Kind    string                 `json:"kind"` // client | invoice | document
	Title   string                 `json:"title"`
	Snippet string                 `json:"snippet,omitempty"`
	Score   float64                `json:"score,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Source describes where a share of the research answer came from.
type Source struct {
	Name        string  `json:"name"` // database | vector_store
	ResultCount int     `json:"result_count"`
	Confidence  float64 `json:"confidence"`
	TimeShare   float64 `json:"time_share"`
}

type ResearchResult struct {
	DatabaseResults  []SearchResult `json:"database_results"`
	VectorResults    []SearchResult `json:"vector_results"`
	Summary          string         `json:"summary"`
	Confidence       float64        `json:"confidence"`
	TotalResults     int            `json:"total_results"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Sources          []Source       `json:"sources"`
}

func (r *ResearchResult) Summarize() string {
	return fmt.Sprintf("Research Summary: %s\nFound %d relevant results with %.1f%% confidence.",
		r.Summary, r.TotalResults, r.Confidence*100)
}

// ConfidenceScore feeds the coordinator's overall confidence average.
func (r *ResearchResult) ConfidenceScore() float64 {
	return r.Confidence
}
