package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

const (
	churnInvoiceWindow     = 20
	activityWindowDays     = 180
	noInvoiceDaysSinceLast = 365
	batchChurnDefaultLimit = 50
	batchChurnConcurrency  = 5
)

// AnalyticsAgent computes tone, priority and churn risk. Tone and priority
// go through the generative-text capability with strict-JSON prompts and
// documented fallbacks; churn scoring is deterministic arithmetic over the
// invoice history.
type AnalyticsAgent struct {
	chat   ChatClient
	store  DataStore
	logger *logger.Logger
}

func NewAnalyticsAgent(chat ChatClient, store DataStore, log *logger.Logger) *AnalyticsAgent {
	return &AnalyticsAgent{chat: chat, store: store, logger: log}
}

func fallbackTone() *models.ToneAnalysis {
	return &models.ToneAnalysis{
		Sentiment:  models.SentimentNeutral,
		Confidence: 0.5,
		Emotions:   []string{},
		Urgency:    models.PriorityMedium,
	}
}

func fallbackPriority() *models.PriorityAssessment {
	return &models.PriorityAssessment{
		Priority:           models.PriorityMedium,
		Score:              0.5,
		Factors:            []string{"Unable to assess"},
		EscalationRequired: false,
	}
}

func fallbackChurn() *models.ChurnPrediction {
	return &models.ChurnPrediction{
		ChurnProbability: 0.5,
		RiskLevel:        models.RiskMedium,
		Factors:          []string{"Unable to calculate churn risk"},
		Recommendations:  []string{"Manual review required"},
	}
}

// AnalyzeTone classifies sentiment, emotions and urgency. Any call or
// parse failure yields the neutral fallback with a nil error.
func (a *AnalyticsAgent) AnalyzeTone(ctx context.Context, text string) (*models.ToneAnalysis, error) {
	start := time.Now()

	messages := []ChatMessage{
		{Role: "system", Content: `You are a sentiment analysis expert. Analyze the tone of the message and respond ONLY with strict JSON in this exact shape:
{"sentiment": "positive|negative|neutral", "confidence": 0.0, "emotions": ["..."], "urgency": "low|medium|high"}`},
		{Role: "user", Content: text},
	}

	raw, err := a.chat.CreateChatCompletion(ctx, messages)
	if err != nil {
		a.logger.LogService("analytics_agent", "analyze_tone", time.Since(start), nil, err)
		return fallbackTone(), nil
	}

	var tone models.ToneAnalysis
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &tone); err != nil {
		a.logger.LogService("analytics_agent", "analyze_tone", time.Since(start), map[string]interface{}{"raw": raw}, err)
		return fallbackTone(), nil
	}
	if !validSentiment(tone.Sentiment) || !validUrgency(tone.Urgency) {
		a.logger.Warn("tone analysis returned invalid enum values", "sentiment", tone.Sentiment, "urgency", tone.Urgency)
		return fallbackTone(), nil
	}
	if tone.Emotions == nil {
		tone.Emotions = []string{}
	}
	tone.Confidence = clamp01(tone.Confidence)

	a.logger.LogService("analytics_agent", "analyze_tone", time.Since(start), map[string]interface{}{
		"sentiment": tone.Sentiment,
		"urgency":   tone.Urgency,
	}, nil)
	return &tone, nil
}

// AssessPriority scores how urgent a message is. When a client id is
// known, the prompt is enriched with the client's overdue invoice count.
func (a *AnalyticsAgent) AssessPriority(ctx context.Context, text string, clientID *int64, metadata map[string]interface{}) (*models.PriorityAssessment, error) {
	start := time.Now()

	clientContext := ""
	if clientID != nil {
		if overdue, err := a.store.CountOverdueInvoices(ctx, *clientID, 5); err == nil && overdue > 0 {
			clientContext = fmt.Sprintf("\nContext: the client has %d overdue invoices.", overdue)
		}
	}

	messages := []ChatMessage{
		{Role: "system", Content: `You are a customer priority assessment expert. Assess the priority of the message and respond ONLY with strict JSON in this exact shape:
{"priority": "low|medium|high|critical", "score": 0.0, "factors": ["..."], "escalation_required": false}`},
		{Role: "user", Content: text + clientContext},
	}

	raw, err := a.chat.CreateChatCompletion(ctx, messages)
	if err != nil {
		a.logger.LogService("analytics_agent", "assess_priority", time.Since(start), nil, err)
		return fallbackPriority(), nil
	}

	var assessment models.PriorityAssessment
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &assessment); err != nil {
		a.logger.LogService("analytics_agent", "assess_priority", time.Since(start), map[string]interface{}{"raw": raw}, err)
		return fallbackPriority(), nil
	}
	if !validAssessedPriority(assessment.Priority) {
		a.logger.Warn("priority assessment returned invalid enum value", "priority", assessment.Priority)
		return fallbackPriority(), nil
	}
	if assessment.Factors == nil {
		assessment.Factors = []string{}
	}
	assessment.Score = clamp01(assessment.Score)

	a.logger.LogService("analytics_agent", "assess_priority", time.Since(start), map[string]interface{}{
		"priority":   assessment.Priority,
		"escalation": assessment.EscalationRequired,
	}, nil)
	return &assessment, nil
}

// CalculateChurnProbability scores churn risk from stored invoice history.
// Purely deterministic. Store errors collapse into the manual-review
// fallback with a nil error.
func (a *AnalyticsAgent) CalculateChurnProbability(ctx context.Context, clientID int64) (*models.ChurnPrediction, error) {
	start := time.Now()

	_, invoices, err := a.store.ClientWithInvoices(ctx, clientID, churnInvoiceWindow)
	if err != nil {
		a.logger.LogService("analytics_agent", "calculate_churn", time.Since(start), map[string]interface{}{"client_id": clientID}, err)
		return fallbackChurn(), nil
	}

	globalRate, err := a.globalChurnRate(ctx)
	if err != nil {
		a.logger.Warn("global churn rate unavailable, ignoring market term", "error", err.Error())
		globalRate = 0
	}

	prediction := scoreChurn(invoices, globalRate, time.Now().UTC())

	a.logger.LogService("analytics_agent", "calculate_churn", time.Since(start), map[string]interface{}{
		"client_id":   clientID,
		"probability": prediction.ChurnProbability,
		"risk_level":  prediction.RiskLevel,
	}, nil)
	return prediction, nil
}

// scoreChurn is the additive churn model. Each rule triggers
// independently; the final score is clamped to [0,1].
func scoreChurn(invoices []models.Invoice, globalChurnRate float64, now time.Time) *models.ChurnPrediction {
	total := len(invoices)

	var overdue, paid, recent int
	for _, inv := range invoices {
		if inv.IsOverdue(now) {
			overdue++
		}
		if inv.Paid {
			paid++
		}
		if inv.DueDate.After(now.AddDate(0, 0, -activityWindowDays)) {
			recent++
		}
	}

	overdueRate := 0.0
	paymentRatio := 1.0 // no history counts as good standing
	if total > 0 {
		overdueRate = float64(overdue) / float64(total)
		paymentRatio = float64(paid) / float64(total)
	}
	recentActivityScore := float64(recent) / 6.0

	daysSinceLastInvoice := noInvoiceDaysSinceLast
	if total > 0 {
		// invoices arrive ordered by due date desc
		daysSinceLastInvoice = int(now.Sub(invoices[0].DueDate).Hours() / 24)
	}

	score := 0.0
	var factors, recommendations []string

	if overdueRate > 0.3 {
		score += 0.30
		factors = append(factors, fmt.Sprintf("High overdue invoice rate: %.0f%%", overdueRate*100))
		recommendations = append(recommendations, "Address outstanding invoices promptly")
	}
	if paymentRatio < 0.7 {
		score += 0.25
		factors = append(factors, fmt.Sprintf("Low payment ratio: %.0f%%", paymentRatio*100))
		recommendations = append(recommendations, "Review payment terms with client")
	}
	if daysSinceLastInvoice > 90 {
		score += 0.20
		factors = append(factors, fmt.Sprintf("No recent invoices: %d days since last", daysSinceLastInvoice))
		recommendations = append(recommendations, "Re-engage client with new proposals")
	}
	if recentActivityScore < 0.5 {
		score += 0.15
		factors = append(factors, "Low recent activity")
		recommendations = append(recommendations, "Increase engagement frequency")
	}
	if globalChurnRate > 0.2 {
		score += 0.10
		factors = append(factors, fmt.Sprintf("Elevated churn across client base: %.0f%%", globalChurnRate*100))
	}

	// positive signals are informational only, never subtracted
	if paymentRatio > 0.9 {
		factors = append(factors, "Excellent payment history")
		recommendations = append(recommendations, "Consider loyalty incentives")
	}
	if recentActivityScore > 1 {
		factors = append(factors, "High recent activity")
		recommendations = append(recommendations, "Opportunity for upsell")
	}

	score = clamp01(score)

	riskLevel := models.RiskHigh
	switch {
	case score < 0.3:
		riskLevel = models.RiskLow
	case score < 0.6:
		riskLevel = models.RiskMedium
	}

	if factors == nil {
		factors = []string{}
	}
	if recommendations == nil {
		recommendations = []string{}
	}

	return &models.ChurnPrediction{
		ChurnProbability: score,
		RiskLevel:        riskLevel,
		Factors:          factors,
		Recommendations:  recommendations,
	}
}

// globalChurnRate is the fraction of all clients with no invoice due in
// the activity window.
func (a *AnalyticsAgent) globalChurnRate(ctx context.Context) (float64, error) {
	total, err := a.store.CountClients(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	active, err := a.store.CountClientsActiveSince(ctx, time.Now().UTC().AddDate(0, 0, -activityWindowDays))
	if err != nil {
		return 0, err
	}
	return float64(total-active) / float64(total), nil
}

// ComprehensiveAnalysis runs tone and priority concurrently and, when a
// client id is present, churn as well. Sub-calls carry their own
// fallbacks, so the aggregate only fails on systemic errors.
func (a *AnalyticsAgent) ComprehensiveAnalysis(ctx context.Context, text string, clientID *int64, metadata map[string]interface{}) (*models.AnalyticsResult, error) {
	result := &models.AnalyticsResult{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Tone, _ = a.AnalyzeTone(ctx, text)
	}()
	go func() {
		defer wg.Done()
		result.Priority, _ = a.AssessPriority(ctx, text, clientID, metadata)
	}()

	if clientID != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Churn, _ = a.CalculateChurnProbability(ctx, *clientID)
		}()
	}

	wg.Wait()
	return result, nil
}

// BatchChurnAnalysis scores churn for the newest clients, concurrently,
// and returns entries sorted by probability descending.
func (a *AnalyticsAgent) BatchChurnAnalysis(ctx context.Context, limit int) ([]models.ChurnAnalysisEntry, error) {
	if limit <= 0 {
		limit = batchChurnDefaultLimit
	}

	clients, err := a.store.RecentClients(ctx, limit)
	if err != nil {
		return nil, models.WrapExternalError("BATCH_CHURN_FAILED", "could not load clients", err)
	}

	entries := make([]models.ChurnAnalysisEntry, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchChurnConcurrency)

	for i, client := range clients {
		g.Go(func() error {
			prediction, _ := a.CalculateChurnProbability(gctx, client.ID)
			entries[i] = models.ChurnAnalysisEntry{
				ClientID:   client.ID,
				ClientName: client.Name,
				Prediction: prediction,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Prediction.ChurnProbability > entries[j].Prediction.ChurnProbability
	})
	return entries, nil
}

// stripJSONFences removes markdown code fences some models wrap JSON in.
func stripJSONFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func validSentiment(s models.Sentiment) bool {
	switch s {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral:
		return true
	}
	return false
}

func validUrgency(p models.Priority) bool {
	switch p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return true
	}
	return false
}

func validAssessedPriority(p models.Priority) bool {
	switch p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
		return true
	}
	return false
}
