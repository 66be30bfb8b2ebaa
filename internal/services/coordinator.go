package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

const (
	allAgentsFailedApology = "I apologize, but I was unable to process your request due to technical issues. Please try again."
	coordinationErrorReply = "I apologize, but I encountered an error while processing your request. Please try again."
)

// analyticsVocabulary is checked strictly before researchVocabulary; the
// first category with a substring match wins.
var analyticsVocabulary = []string{
	"analytics", "analysis", "churn", "predict", "probability", "risk",
	"statistics", "data", "metrics", "performance", "trends", "sentiment",
}

var researchVocabulary = []string{
	"search", "find", "look up", "information", "details", "history",
	"background", "context", "research", "investigate", "discover",
}

// Agent capabilities the coordinator depends on. The concrete agents in
// this package satisfy them; tests substitute their own.
type AnalyticsRunner interface {
	AnalyzeTone(ctx context.Context, text string) (*models.ToneAnalysis, error)
	ComprehensiveAnalysis(ctx context.Context, text string, clientID *int64, metadata map[string]interface{}) (*models.AnalyticsResult, error)
}

type ResearchRunner interface {
	Research(ctx context.Context, query string, searchType models.SearchType, limit int) (*models.ResearchResult, error)
}

type CommunicationRunner interface {
	GenerateResponse(ctx context.Context, query string, enriched *models.EnrichedContext) (*models.CommunicationResponse, error)
}

// Coordinator routes a natural-language request to the specialized agents:
// classify the query, derive an ordered execution plan, run the agents
// sequentially with per-agent failure isolation, then synthesize a final
// response with an overall confidence.
type Coordinator struct {
	analytics     AnalyticsRunner
	research      ResearchRunner
	communication CommunicationRunner
	publisher     WorkflowPublisher
	logger        *logger.Logger

	activeWorkflows sync.Map
	totalWorkflows  atomic.Int64
	successful      atomic.Int64
	failed          atomic.Int64
}

// CoordinatorStats is a point-in-time snapshot of workflow counters.
type CoordinatorStats struct {
	TotalWorkflows      int64 `json:"total_workflows"`
	SuccessfulWorkflows int64 `json:"successful_workflows"`
	FailedWorkflows     int64 `json:"failed_workflows"`
	ActiveWorkflows     int   `json:"active_workflows"`
}

// NewCoordinator wires the three agents together. publisher may be nil;
// progress publishing is best effort and skipped without one.
func NewCoordinator(analytics AnalyticsRunner, research ResearchRunner, communication CommunicationRunner, publisher WorkflowPublisher, log *logger.Logger) *Coordinator {
	return &Coordinator{
		analytics:     analytics,
		research:      research,
		communication: communication,
		publisher:     publisher,
		logger:        log,
	}
}

// Coordinate runs the full workflow for one request. It never returns an
// error: anything that escapes the per-agent isolation is converted into
// an error-strategy response.
func (c *Coordinator) Coordinate(ctx context.Context, userID string, req *models.CoordinatorRequest) (response *models.CoordinatorResponse) {
	start := time.Now()
	workflowID := newWorkflowID()

	c.totalWorkflows.Add(1)
	c.activeWorkflows.Store(workflowID, start)
	defer c.activeWorkflows.Delete(workflowID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("coordination panic: %v", r)
			c.logger.LogWorkflow(workflowID, userID, "panic", time.Since(start), err)
			c.failed.Add(1)
			response = c.errorResponse(workflowID, start, err)
		}
	}()

	c.logger.LogWorkflow(workflowID, userID, "started", 0, nil)
	c.publishUpdate(ctx, workflowID, userID, "coordinator", "started", req.Query)

	// classification tone: failures never abort coordination, AnalyzeTone
	// already falls back to a neutral default
	tone, _ := c.analytics.AnalyzeTone(ctx, req.Query)

	strategy := chooseStrategy(req.Query, tone, req.Context)
	enriched := newEnrichedContext(req.Context)

	c.storeState(ctx, &models.WorkflowState{
		WorkflowID: workflowID,
		UserID:     userID,
		Query:      req.Query,
		Strategy:   strategy.Type,
		Status:     "running",
		StartedAt:  start.UTC(),
		UpdatedAt:  time.Now().UTC(),
	})

	agentResults := make([]models.AgentExecutionResult, 0, len(strategy.RequiredAgents))
	executedSteps := make([]models.WorkflowStep, 0, len(strategy.RequiredAgents))

	for _, agent := range strategy.RequiredAgents {
		c.publishUpdate(ctx, workflowID, userID, string(agent), "started", "")
		agentStart := time.Now()

		payload, err := c.executeAgent(ctx, agent, req.Query, enriched)
		elapsed := time.Since(agentStart)

		result := models.AgentExecutionResult{
			Agent:            agent,
			Success:          err == nil,
			ProcessingTimeMs: elapsed.Milliseconds(),
			Timestamp:        time.Now().UTC(),
		}
		step := models.WorkflowStep{Agent: agent, Status: "completed", DurationMs: elapsed.Milliseconds()}

		if err != nil {
			result.Error = err.Error()
			step.Status = "failed"
			c.publishUpdate(ctx, workflowID, userID, string(agent), "failed", err.Error())
		} else {
			result.Result = payload
			c.publishUpdate(ctx, workflowID, userID, string(agent), "completed", "")
		}
		c.logger.LogAgent(workflowID, string(agent), "execute", elapsed, nil, err)

		agentResults = append(agentResults, result)
		executedSteps = append(executedSteps, step)
	}

	finalResponse := synthesizeResponse(agentResults)
	confidence := overallConfidence(agentResults)
	anySucceeded := false
	for _, result := range agentResults {
		if result.Success {
			anySucceeded = true
			break
		}
	}

	elapsed := time.Since(start)
	response = &models.CoordinatorResponse{
		Response:         finalResponse,
		WorkflowID:       workflowID,
		Strategy:         strategy.Type,
		ExecutedSteps:    executedSteps,
		AgentResults:     agentResults,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Confidence:       confidence,
		Metadata: models.ResponseMetadata{
			Timestamp:       time.Now().UTC(),
			TotalAgentsUsed: len(agentResults),
			WorkflowSuccess: anySucceeded,
		},
	}

	status := "completed"
	if anySucceeded {
		c.successful.Add(1)
	} else {
		c.failed.Add(1)
		status = "failed"
	}

	c.storeState(ctx, &models.WorkflowState{
		WorkflowID:       workflowID,
		UserID:           userID,
		Query:            req.Query,
		Strategy:         strategy.Type,
		Status:           status,
		ExecutedSteps:    executedSteps,
		Confidence:       confidence,
		ProcessingTimeMs: elapsed.Milliseconds(),
		StartedAt:        start.UTC(),
		UpdatedAt:        time.Now().UTC(),
	})
	c.publishUpdate(ctx, workflowID, userID, "coordinator", status, finalResponse)
	c.logger.LogWorkflow(workflowID, userID, status, elapsed, nil)

	return response
}

// executeAgent dispatches to one agent with panic isolation: a panic in
// agent code is recorded as that agent's failure, not the workflow's.
func (c *Coordinator) executeAgent(ctx context.Context, agent models.AgentKind, query string, enriched *models.EnrichedContext) (payload models.AgentPayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("%s agent panic: %v", agent, r)
		}
	}()

	switch agent {
	case models.AgentResearch:
		result, rerr := c.research.Research(ctx, query, enriched.SearchType, enriched.Limit)
		if rerr != nil {
			return nil, rerr
		}
		enriched.Research = result
		return result, nil

	case models.AgentAnalytics:
		result, aerr := c.analytics.ComprehensiveAnalysis(ctx, query, enriched.ClientID, enriched.Metadata)
		if aerr != nil {
			return nil, aerr
		}
		enriched.Analytics = result
		return result, nil

	case models.AgentCommunication:
		result, cerr := c.communication.GenerateResponse(ctx, query, enriched)
		if cerr != nil {
			return nil, cerr
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unknown agent %q", agent)
	}
}

// chooseStrategy classifies the query against the fixed vocabularies.
// Analytics keywords win over research keywords; neither means a
// communication-focused plan that skips analytics entirely.
func chooseStrategy(query string, tone *models.ToneAnalysis, reqCtx *models.RequestContext) models.Strategy {
	lowered := strings.ToLower(query)

	priority := models.PriorityMedium
	if tone != nil && tone.Urgency != "" {
		priority = tone.Urgency
	}
	if reqCtx != nil && reqCtx.Priority != "" {
		priority = reqCtx.Priority
	}

	if containsAny(lowered, analyticsVocabulary) {
		return models.Strategy{
			Type:           models.StrategyAnalyticsFirst,
			RequiredAgents: []models.AgentKind{models.AgentAnalytics, models.AgentResearch, models.AgentCommunication},
			Priority:       priority,
			Reasoning:      "query contains analytics keywords",
		}
	}
	if containsAny(lowered, researchVocabulary) {
		return models.Strategy{
			Type:           models.StrategyResearchFirst,
			RequiredAgents: []models.AgentKind{models.AgentResearch, models.AgentAnalytics, models.AgentCommunication},
			Priority:       priority,
			Reasoning:      "query contains research keywords",
		}
	}
	return models.Strategy{
		Type:           models.StrategyCommunicationFocused,
		RequiredAgents: []models.AgentKind{models.AgentResearch, models.AgentCommunication},
		Priority:       priority,
		Reasoning:      "no analytics or research keywords, defaulting to communication",
	}
}

func containsAny(text string, vocabulary []string) bool {
	for _, keyword := range vocabulary {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// synthesizeResponse prefers the communication agent's text; otherwise a
// deterministic summary of whatever succeeded; the fixed apology when
// nothing did.
func synthesizeResponse(results []models.AgentExecutionResult) string {
	var analytics *models.AnalyticsResult
	var research *models.ResearchResult

	for _, result := range results {
		if !result.Success || result.Result == nil {
			continue
		}
		switch payload := result.Result.(type) {
		case *models.CommunicationResponse:
			return payload.Response
		case *models.AnalyticsResult:
			analytics = payload
		case *models.ResearchResult:
			research = payload
		}
	}

	if analytics == nil && research == nil {
		return allAgentsFailedApology
	}

	var sb strings.Builder
	sb.WriteString("Based on my analysis:\n")
	if analytics != nil {
		if summary := analytics.Summarize(); summary != "" {
			sb.WriteString("\n" + summary + "\n")
		}
	}
	if research != nil {
		sb.WriteString("\n" + research.Summarize() + "\n")
	}
	return sb.String()
}

// overallConfidence averages the confidence of successful payloads that
// carry one. Successes without a confidence leave a neutral 0.5; zero
// successes mean zero confidence.
func overallConfidence(results []models.AgentExecutionResult) float64 {
	var sum float64
	var carriers, successes int

	for _, result := range results {
		if !result.Success {
			continue
		}
		successes++
		if carrier, ok := result.Result.(models.ConfidenceCarrier); ok {
			sum += carrier.ConfidenceScore()
			carriers++
		}
	}

	if successes == 0 {
		return 0
	}
	if carriers == 0 {
		return 0.5
	}
	return clamp01(sum / float64(carriers))
}

func (c *Coordinator) errorResponse(workflowID string, start time.Time, err error) *models.CoordinatorResponse {
	return &models.CoordinatorResponse{
		Response:         coordinationErrorReply,
		WorkflowID:       workflowID,
		Strategy:         models.StrategyError,
		ExecutedSteps:    []models.WorkflowStep{},
		AgentResults:     []models.AgentExecutionResult{},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Confidence:       0,
		Metadata: models.ResponseMetadata{
			Timestamp:       time.Now().UTC(),
			TotalAgentsUsed: 0,
			WorkflowSuccess: false,
			Error:           err.Error(),
		},
	}
}

func newEnrichedContext(reqCtx *models.RequestContext) *models.EnrichedContext {
	enriched := &models.EnrichedContext{SearchType: models.SearchTypeGeneral}
	if reqCtx == nil {
		return enriched
	}

	enriched.ClientID = reqCtx.ClientID
	enriched.Limit = reqCtx.Limit
	enriched.Metadata = reqCtx.Metadata
	switch reqCtx.SearchType {
	case models.SearchTypeClient, models.SearchTypeInvoice:
		enriched.SearchType = reqCtx.SearchType
	default:
		// analytics has no dedicated table; it searches like general
		enriched.SearchType = models.SearchTypeGeneral
	}
	return enriched
}

// newWorkflowID is time-based with a random suffix; unique enough for
// operational use, not a hard guarantee.
func newWorkflowID() string {
	return fmt.Sprintf("workflow_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func (c *Coordinator) publishUpdate(ctx context.Context, workflowID, userID, agent, status, message string) {
	if c.publisher == nil {
		return
	}
	update := models.AgentUpdate{
		WorkflowID: workflowID,
		UserID:     userID,
		Agent:      agent,
		Status:     status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	}
	if err := c.publisher.PublishAgentUpdate(ctx, update); err != nil {
		c.logger.Warn("agent update publish failed", "workflow_id", workflowID, "agent", agent, "error", err.Error())
	}
}

func (c *Coordinator) storeState(ctx context.Context, state *models.WorkflowState) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.StoreWorkflowState(ctx, state); err != nil {
		c.logger.Warn("workflow state store failed", "workflow_id", state.WorkflowID, "error", err.Error())
	}
}

// HealthCheck probes each agent with a trivial call. Overall status is
// degraded if any probe fails.
func (c *Coordinator) HealthCheck(ctx context.Context) *models.CoordinatorHealth {
	health := &models.CoordinatorHealth{
		Status: "healthy",
		Agents: map[string]string{},
	}

	probes := []struct {
		name  string
		probe func() error
	}{
		{"research", func() error {
			_, err := c.research.Research(ctx, "health check", models.SearchTypeGeneral, 1)
			return err
		}},
		{"analytics", func() error {
			_, err := c.analytics.AnalyzeTone(ctx, "health check")
			return err
		}},
		{"communication", func() error {
			_, err := c.communication.GenerateResponse(ctx, "health check", nil)
			return err
		}},
	}

	for _, p := range probes {
		if err := p.probe(); err != nil {
			health.Agents[p.name] = "error"
			health.Status = "degraded"
			continue
		}
		health.Agents[p.name] = "healthy"
	}
	return health
}

func (c *Coordinator) ActiveWorkflowCount() int {
	count := 0
	c.activeWorkflows.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (c *Coordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		TotalWorkflows:      c.totalWorkflows.Load(),
		SuccessfulWorkflows: c.successful.Load(),
		FailedWorkflows:     c.failed.Load(),
		ActiveWorkflows:     c.ActiveWorkflowCount(),
	}
}

// Close waits for in-flight workflows to drain, up to the timeout.
func (c *Coordinator) Close(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for c.ActiveWorkflowCount() > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("%d workflows still active after %s", c.ActiveWorkflowCount(), timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
