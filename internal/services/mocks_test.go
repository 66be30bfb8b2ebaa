package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm-agent-pipeline/internal/config"
	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/vector"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("test logger: %v", err)
	}
	return log
}

// mockChat returns canned completions and records every prompt it saw.
type mockChat struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]ChatMessage
}

func (m *mockChat) CreateChatCompletion(_ context.Context, messages []ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	response := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return response, nil
}

func (m *mockChat) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockChat) lastCall() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

type mockEmbed struct {
	embedding []float32
	err       error
}

func (m *mockEmbed) CreateEmbedding(context.Context, string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding, nil
}

// mockStore is an in-memory DataStore with per-method error injection.
type mockStore struct {
	clients  []models.Client
	invoices map[int64][]models.Invoice // by client id

	findClientsErr  error
	findInvoicesErr error
	clientErr       error

	total       int
	activeSince int
	overdue     int
}

func (m *mockStore) FindClients(_ context.Context, _ string, limit int) ([]models.Client, error) {
	if m.findClientsErr != nil {
		return nil, m.findClientsErr
	}
	if limit > 0 && len(m.clients) > limit {
		return m.clients[:limit], nil
	}
	return m.clients, nil
}

func (m *mockStore) FindInvoices(_ context.Context, _ float64, _ string, limit int) ([]models.Invoice, error) {
	if m.findInvoicesErr != nil {
		return nil, m.findInvoicesErr
	}
	var all []models.Invoice
	for _, invoices := range m.invoices {
		all = append(all, invoices...)
	}
	if limit > 0 && len(all) > limit {
		return all[:limit], nil
	}
	return all, nil
}

func (m *mockStore) CountClients(context.Context) (int, error) {
	return m.total, nil
}

func (m *mockStore) CountClientsActiveSince(context.Context, time.Time) (int, error) {
	return m.activeSince, nil
}

func (m *mockStore) RecentClients(_ context.Context, limit int) ([]models.Client, error) {
	if limit > 0 && len(m.clients) > limit {
		return m.clients[:limit], nil
	}
	return m.clients, nil
}

func (m *mockStore) ClientWithInvoices(_ context.Context, id int64, _ int) (*models.Client, []models.Invoice, error) {
	if m.clientErr != nil {
		return nil, nil, m.clientErr
	}
	for _, client := range m.clients {
		if client.ID == id {
			return &client, m.invoices[id], nil
		}
	}
	return nil, nil, models.NewNotFoundError("CLIENT_NOT_FOUND", "client not found")
}

func (m *mockStore) CountOverdueInvoices(context.Context, int64, int) (int, error) {
	return m.overdue, nil
}

type mockIndex struct {
	matches []vector.Match
	err     error
	deleted []string
	records []vector.Record
}

func (m *mockIndex) Upsert(_ context.Context, records []vector.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockIndex) Query(_ context.Context, _ []float32, topK int) ([]vector.Match, error) {
	if m.err != nil {
		return nil, m.err
	}
	if topK > 0 && len(m.matches) > topK {
		return m.matches[:topK], nil
	}
	return m.matches, nil
}

func (m *mockIndex) Delete(_ context.Context, ids []string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

// mockPublisher records updates and states the coordinator publishes.
type mockPublisher struct {
	mu      sync.Mutex
	updates []models.AgentUpdate
	states  []*models.WorkflowState
	err     error
}

func (m *mockPublisher) PublishAgentUpdate(_ context.Context, update models.AgentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *mockPublisher) StoreWorkflowState(_ context.Context, state *models.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.states = append(m.states, state)
	return nil
}

// stub agents for coordinator tests

type stubAnalytics struct {
	tone     *models.ToneAnalysis
	toneErr  error
	analysis *models.AnalyticsResult
	err      error
	panics   bool
}

func (s *stubAnalytics) AnalyzeTone(context.Context, string) (*models.ToneAnalysis, error) {
	if s.panics {
		panic("analytics blew up")
	}
	if s.tone == nil {
		return &models.ToneAnalysis{Sentiment: models.SentimentNeutral, Confidence: 0.5, Emotions: []string{}, Urgency: models.PriorityMedium}, s.toneErr
	}
	return s.tone, s.toneErr
}

func (s *stubAnalytics) ComprehensiveAnalysis(context.Context, string, *int64, map[string]interface{}) (*models.AnalyticsResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

type stubResearch struct {
	result *models.ResearchResult
	err    error
}

func (s *stubResearch) Research(context.Context, string, models.SearchType, int) (*models.ResearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubCommunication struct {
	response *models.CommunicationResponse
	err      error
}

func (s *stubCommunication) GenerateResponse(context.Context, string, *models.EnrichedContext) (*models.CommunicationResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}
