package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/vector"
)

const defaultResearchLimit = 10

// ResearchAgent answers a query from two sources at once: the structured
// CRM store and the semantic vector index. Each branch suppresses its own
// failure to an empty slice so one source going down never empties the
// other.
type ResearchAgent struct {
	chat   ChatClient
	embed  EmbeddingClient
	store  DataStore
	index  vector.Index
	logger *logger.Logger
}

func NewResearchAgent(chat ChatClient, embed EmbeddingClient, store DataStore, index vector.Index, log *logger.Logger) *ResearchAgent {
	return &ResearchAgent{chat: chat, embed: embed, store: store, index: index, logger: log}
}

func (r *ResearchAgent) Research(ctx context.Context, query string, searchType models.SearchType, limit int) (*models.ResearchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = defaultResearchLimit
	}

	var (
		dbResults     []models.SearchResult
		vectorResults []models.SearchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := r.searchDatabase(gctx, query, searchType, limit)
		if err != nil {
			r.logger.Warn("database search failed, continuing with vector results", "error", err.Error())
			return nil
		}
		dbResults = results
		return nil
	})
	g.Go(func() error {
		results, err := r.searchVectors(gctx, query, limit)
		if err != nil {
			r.logger.Warn("vector search failed, continuing with database results", "error", err.Error())
			return nil
		}
		vectorResults = results
		return nil
	})
	// both branches swallow their own errors above
	_ = g.Wait()

	if dbResults == nil {
		dbResults = []models.SearchResult{}
	}
	if vectorResults == nil {
		vectorResults = []models.SearchResult{}
	}

	summary := r.summarize(ctx, query, dbResults, vectorResults)
	confidence := researchConfidence(len(dbResults), len(vectorResults))
	elapsed := time.Since(start)

	result := &models.ResearchResult{
		DatabaseResults:  dbResults,
		VectorResults:    vectorResults,
		Summary:          summary,
		Confidence:       confidence,
		TotalResults:     len(dbResults) + len(vectorResults),
		ProcessingTimeMs: elapsed.Milliseconds(),
		Sources: []models.Source{
			{Name: "database", ResultCount: len(dbResults), Confidence: 0.8, TimeShare: 0.6},
			{Name: "vector_store", ResultCount: len(vectorResults), Confidence: 0.7, TimeShare: 0.4},
		},
	}

	r.logger.LogService("research_agent", "research", elapsed, map[string]interface{}{
		"search_type":    string(searchType),
		"db_results":     len(dbResults),
		"vector_results": len(vectorResults),
		"confidence":     confidence,
	}, nil)
	return result, nil
}

// researchConfidence is deterministic and saturating: each source
// contributes up to a fixed share, and more results never lower it.
func researchConfidence(dbCount, vectorCount int) float64 {
	dbShare := float64(dbCount) * 0.3
	if dbShare > 0.6 {
		dbShare = 0.6
	}
	vectorShare := float64(vectorCount) * 0.2
	if vectorShare > 0.4 {
		vectorShare = 0.4
	}
	return clamp01(dbShare + vectorShare)
}

func (r *ResearchAgent) searchDatabase(ctx context.Context, query string, searchType models.SearchType, limit int) ([]models.SearchResult, error) {
	switch searchType {
	case models.SearchTypeClient:
		clients, err := r.store.FindClients(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return clientResults(clients), nil

	case models.SearchTypeInvoice:
		invoices, err := r.store.FindInvoices(ctx, amountThreshold(query), query, limit)
		if err != nil {
			return nil, err
		}
		return invoiceResults(invoices), nil

	default:
		// general (and analytics, which has no table of its own): both
		// lookups, each capped at half the limit
		half := limit / 2
		if half < 1 {
			half = 1
		}

		var (
			clients  []models.Client
			invoices []models.Invoice
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			clients, err = r.store.FindClients(gctx, query, half)
			return err
		})
		g.Go(func() error {
			var err error
			invoices, err = r.store.FindInvoices(gctx, amountThreshold(query), query, half)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return append(clientResults(clients), invoiceResults(invoices)...), nil
	}
}

func (r *ResearchAgent) searchVectors(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	embedding, err := r.embed.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Query(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, len(matches))
	for i, match := range matches {
		fields := make(map[string]interface{}, len(match.Metadata))
		for k, v := range match.Metadata {
			fields[k] = v
		}
		results[i] = models.SearchResult{
			ID:      match.ID,
			Kind:    "document",
			Title:   match.ID,
			Snippet: match.Text,
			Score:   match.Score,
			Fields:  fields,
		}
	}
	return results, nil
}

func (r *ResearchAgent) summarize(ctx context.Context, query string, dbResults, vectorResults []models.SearchResult) string {
	fallback := fmt.Sprintf("Found %d database results and %d vector results for query %q",
		len(dbResults), len(vectorResults), query)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nDatabase results (%d):\n", query, len(dbResults))
	for _, res := range dbResults {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", res.Kind, res.Title, res.Snippet)
	}
	fmt.Fprintf(&sb, "\nSemantic results (%d):\n", len(vectorResults))
	for _, res := range vectorResults {
		fmt.Fprintf(&sb, "- %s (score %.2f)\n", res.Snippet, res.Score)
	}

	messages := []ChatMessage{
		{Role: "system", Content: "You are a research assistant for a CRM. Summarize the findings below in two or three sentences, plainly and without speculation."},
		{Role: "user", Content: sb.String()},
	}

	summary, err := r.chat.CreateChatCompletion(ctx, messages)
	if err != nil || strings.TrimSpace(summary) == "" {
		return fallback
	}
	return strings.TrimSpace(summary)
}

// IndexDocuments embeds and upserts documents into the vector index.
func (r *ResearchAgent) IndexDocuments(ctx context.Context, docs []vector.Record) error {
	for i := range docs {
		embedding, err := r.embed.CreateEmbedding(ctx, docs[i].Text)
		if err != nil {
			return models.WrapExternalError("INDEX_EMBED_FAILED",
				fmt.Sprintf("embedding document %q failed", docs[i].ID), err)
		}
		docs[i].Embedding = embedding
	}
	return r.index.Upsert(ctx, docs)
}

func (r *ResearchAgent) DeleteDocuments(ctx context.Context, ids []string) error {
	return r.index.Delete(ctx, ids)
}

func clientResults(clients []models.Client) []models.SearchResult {
	results := make([]models.SearchResult, len(clients))
	for i, c := range clients {
		results[i] = models.SearchResult{
			ID:      fmt.Sprintf("client:%d", c.ID),
			Kind:    "client",
			Title:   c.Name,
			Snippet: strings.TrimSpace(c.Email + " " + c.Company),
			Fields:  map[string]interface{}{"client_id": c.ID},
		}
	}
	return results
}

func invoiceResults(invoices []models.Invoice) []models.SearchResult {
	results := make([]models.SearchResult, len(invoices))
	for i, inv := range invoices {
		status := "unpaid"
		if inv.Paid {
			status = "paid"
		}
		results[i] = models.SearchResult{
			ID:      fmt.Sprintf("invoice:%d", inv.ID),
			Kind:    "invoice",
			Title:   fmt.Sprintf("Invoice #%d ($%.2f)", inv.ID, inv.Amount),
			Snippet: fmt.Sprintf("due %s, %s", inv.DueDate.Format("2006-01-02"), status),
			Fields:  map[string]interface{}{"invoice_id": inv.ID, "client_id": inv.ClientID},
		}
	}
	return results
}

// amountThreshold pulls the first number out of the query so "invoices
// over 5000" filters by amount. Zero means no threshold.
func amountThreshold(query string) float64 {
	for _, token := range strings.Fields(query) {
		token = strings.Trim(token, "$,.?!")
		if value, err := strconv.ParseFloat(token, 64); err == nil && value > 0 {
			return value
		}
	}
	return 0
}
