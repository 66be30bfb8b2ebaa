package services

import (
	"context"
	"strings"
	"time"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

const noResponseApology = "I apologize, but I'm unable to generate a response right now. Please try again."

var toneInstructions = map[models.Tone]string{
	models.ToneProfessional: "Write in a professional, courteous business tone.",
	models.ToneFriendly:     "Write in a warm, friendly and approachable tone.",
	models.ToneFormal:       "Write in a formal, precise tone suitable for official correspondence.",
	models.ToneEmpathetic:   "Write in an understanding, empathetic tone that acknowledges the recipient's concerns.",
}

var formalWords = []string{"therefore", "furthermore", "regarding", "pursuant", "sincerely", "accordingly", "hereby", "respectfully"}

var casualWords = []string{"hey", "yeah", "cool", "awesome", "gonna", "wanna", "thanks", "btw"}

// CommunicationAgent produces customer-facing text: coordinated workflow
// replies, standalone drafts, and analytics-informed variants of both.
type CommunicationAgent struct {
	chat      ChatClient
	research  *ResearchAgent
	analytics *AnalyticsAgent
	logger    *logger.Logger
}

func NewCommunicationAgent(chat ChatClient, research *ResearchAgent, analytics *AnalyticsAgent, log *logger.Logger) *CommunicationAgent {
	return &CommunicationAgent{chat: chat, research: research, analytics: analytics, logger: log}
}

// GenerateResponse answers a query grounded in research context. When the
// enriched context already carries research (upstream agent ran first),
// that is used; otherwise the agent fetches its own.
func (c *CommunicationAgent) GenerateResponse(ctx context.Context, query string, enriched *models.EnrichedContext) (*models.CommunicationResponse, error) {
	start := time.Now()

	var research *models.ResearchResult
	var analytics *models.AnalyticsResult
	if enriched != nil {
		research = enriched.Research
		analytics = enriched.Analytics
	}
	if research == nil {
		research, _ = c.research.Research(ctx, query, models.SearchTypeGeneral, 5)
	}

	tone := selectTone(analytics)

	system := "You are a helpful CRM assistant. Answer the user's question using the research context below. " +
		toneInstructions[tone]
	if research != nil {
		system += "\n\nResearch context:\n" + research.Summary
	}
	if analytics != nil && analytics.Summarize() != "" {
		system += "\n\nAnalysis of the request:\n" + analytics.Summarize()
	}

	text, err := c.chat.CreateChatCompletion(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		text = noResponseApology
	}

	response := &models.CommunicationResponse{
		Response: text,
		Tone:     tone,
		Metadata: textDetails(text),
	}

	c.logger.LogService("communication_agent", "generate_response", time.Since(start), map[string]interface{}{
		"tone":       string(tone),
		"word_count": response.Metadata.WordCount,
	}, nil)
	return response, nil
}

// GenerateDraft writes a standalone message draft in the requested tone.
func (c *CommunicationAgent) GenerateDraft(ctx context.Context, req models.DraftRequest) (*models.DraftResponse, error) {
	start := time.Now()

	tone := req.Tone
	if _, ok := toneInstructions[tone]; !ok {
		tone = models.ToneProfessional
	}

	system := "You are drafting a message on behalf of a CRM user. " + toneInstructions[tone] +
		" Return only the message body, no commentary."
	user := "Subject: " + req.Subject
	if req.Recipient != "" {
		user += "\nRecipient: " + req.Recipient
	}
	if req.Context != "" {
		user += "\nContext: " + req.Context
	}

	draft, err := c.chat.CreateChatCompletion(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	draft = strings.TrimSpace(draft)
	if err != nil || draft == "" {
		draft = noResponseApology
	}

	response := &models.DraftResponse{
		Draft:         draft,
		SuggestedTone: tone,
		Metadata:      textDetails(draft),
	}

	c.logger.LogService("communication_agent", "generate_draft", time.Since(start), map[string]interface{}{
		"tone":       string(tone),
		"word_count": response.Metadata.WordCount,
	}, nil)
	return response, nil
}

// GenerateAnalyticsEnhancedResponse folds a comprehensive analysis into
// the generation prompt and attaches rule-based recommended actions.
func (c *CommunicationAgent) GenerateAnalyticsEnhancedResponse(ctx context.Context, query string, clientID *int64) (*models.CommunicationResponse, error) {
	analysis, err := c.analytics.ComprehensiveAnalysis(ctx, query, clientID, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.GenerateResponse(ctx, query, &models.EnrichedContext{ClientID: clientID, Analytics: analysis})
	if err != nil {
		return nil, err
	}

	response.Metadata.RecommendedActions = recommendedActions(analysis)
	return response, nil
}

// GenerateSmartDraft is an analytics-informed draft with recommended
// actions and a follow-up suggestion.
func (c *CommunicationAgent) GenerateSmartDraft(ctx context.Context, req models.DraftRequest) (*models.SmartDraft, error) {
	analysisInput := req.Subject
	if req.Context != "" {
		analysisInput += "\n" + req.Context
	}
	analysis, err := c.analytics.ComprehensiveAnalysis(ctx, analysisInput, req.ClientID, nil)
	if err != nil {
		return nil, err
	}

	if req.Tone == "" {
		req.Tone = suggestDraftTone(analysis)
	}
	if req.Context == "" {
		req.Context = analysis.Summarize()
	} else if summary := analysis.Summarize(); summary != "" {
		req.Context += "\n" + summary
	}

	draft, err := c.GenerateDraft(ctx, req)
	if err != nil {
		return nil, err
	}

	smart := &models.SmartDraft{
		Draft:              draft.Draft,
		SuggestedTone:      draft.SuggestedTone,
		RecommendedActions: recommendedActions(analysis),
		FollowUp:           suggestFollowUp(analysis),
		Analysis:           analysis,
		Metadata:           draft.Metadata,
	}
	return smart, nil
}

// selectTone picks the reply tone from upstream analytics; without
// analytics the default is professional.
func selectTone(analysis *models.AnalyticsResult) models.Tone {
	if analysis == nil {
		return models.ToneProfessional
	}
	if analysis.Tone != nil && analysis.Tone.Sentiment == models.SentimentNegative {
		return models.ToneEmpathetic
	}
	if analysis.Priority != nil && analysis.Priority.EscalationRequired {
		return models.ToneProfessional
	}
	if analysis.Tone != nil && analysis.Tone.Sentiment == models.SentimentPositive {
		return models.ToneFriendly
	}
	return models.ToneProfessional
}

func suggestDraftTone(analysis *models.AnalyticsResult) models.Tone {
	tone := selectTone(analysis)
	if analysis != nil && analysis.Churn != nil && analysis.Churn.RiskLevel == models.RiskHigh {
		return models.ToneEmpathetic
	}
	return tone
}

// recommendedActions derives next steps from the analysis. Churn
// recommendations are appended verbatim.
func recommendedActions(analysis *models.AnalyticsResult) []string {
	if analysis == nil {
		return nil
	}

	var actions []string
	if analysis.Priority != nil && analysis.Priority.EscalationRequired {
		actions = append(actions, "Escalate to senior staff immediately")
	}
	if analysis.Churn != nil && analysis.Churn.RiskLevel == models.RiskHigh {
		actions = append(actions, "Schedule a retention call")
		actions = append(actions, "Review account for upsell opportunities")
	}
	if analysis.Tone != nil && analysis.Tone.Sentiment == models.SentimentNegative {
		actions = append(actions, "Follow up within 24 hours")
	}
	if analysis.Churn != nil {
		actions = append(actions, analysis.Churn.Recommendations...)
	}
	return actions
}

func suggestFollowUp(analysis *models.AnalyticsResult) *models.FollowUpSuggestion {
	if analysis == nil {
		return nil
	}

	if analysis.Priority != nil && analysis.Priority.EscalationRequired {
		return &models.FollowUpSuggestion{Timing: "within 24 hours", Method: "phone call", Priority: models.PriorityUrgent}
	}
	if analysis.Churn != nil && analysis.Churn.RiskLevel == models.RiskHigh {
		return &models.FollowUpSuggestion{Timing: "within 24 hours", Method: "phone call", Priority: models.PriorityHigh}
	}
	if analysis.Tone != nil && analysis.Tone.Sentiment == models.SentimentNegative {
		return &models.FollowUpSuggestion{Timing: "within 24 hours", Method: "email", Priority: models.PriorityHigh}
	}
	return &models.FollowUpSuggestion{Timing: "within 3 business days", Method: "email", Priority: models.PriorityMedium}
}

// textDetails computes word count, estimated read time at 200 wpm, and a
// formality score from fixed word lists.
func textDetails(text string) models.CommunicationDetails {
	words := strings.Fields(text)

	readTime := len(words) / 200
	if readTime < 1 {
		readTime = 1
	}

	return models.CommunicationDetails{
		WordCount:         len(words),
		EstimatedReadTime: readTime,
		FormalityScore:    formalityScore(words),
	}
}

// formalityScore is formal-hits / (formal-hits + casual-hits); 0.5 when
// neither list matches.
func formalityScore(words []string) float64 {
	var formal, casual int
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:"))
		for _, f := range formalWords {
			if cleaned == f {
				formal++
			}
		}
		for _, c := range casualWords {
			if cleaned == c {
				casual++
			}
		}
	}

	if formal+casual == 0 {
		return 0.5
	}
	return float64(formal) / float64(formal+casual)
}
