package models

import "time"

// AgentKind identifies one of the specialized agents. Closed set.
type AgentKind string

const (
	AgentResearch      AgentKind = "research"
	AgentAnalytics     AgentKind = "analytics"
	AgentCommunication AgentKind = "communication"
)

// StrategyType names the coordinator's routing decision for a request.
type StrategyType string

const (
	StrategyAnalyticsFirst       StrategyType = "analytics-first"
	StrategyResearchFirst        StrategyType = "research-first"
	StrategyCommunicationFocused StrategyType = "communication-focused"
	StrategyError                StrategyType = "error"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
	// PriorityCritical only appears in priority assessments.
	PriorityCritical Priority = "critical"
)

// SearchType selects the structured-store branch for research lookups.
type SearchType string

const (
	SearchTypeGeneral   SearchType = "general"
	SearchTypeClient    SearchType = "client"
	SearchTypeInvoice   SearchType = "invoice"
	SearchTypeAnalytics SearchType = "analytics"
)

// CoordinatorRequest is immutable once submitted to Coordinate.
type CoordinatorRequest struct {
	Query   string          `json:"query" binding:"required"`
	Context *RequestContext `json:"context,omitempty"`
}

type RequestContext struct {
	ClientID   *int64                 `json:"client_id,omitempty"`
	SearchType SearchType             `json:"search_type,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Priority   Priority               `json:"priority,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Strategy is derived once per request and never mutated afterwards.
type Strategy struct {
	Type           StrategyType `json:"type"`
	RequiredAgents []AgentKind  `json:"required_agents"`
	Priority       Priority     `json:"priority"`
	Reasoning      string       `json:"reasoning"`
}

// AgentPayload is what each agent hands back to the coordinator. Summarize
// returns the human-readable line used when synthesizing a fallback
// response.
type AgentPayload interface {
	Summarize() string
}

// ConfidenceCarrier is implemented by payloads whose confidence should
// contribute to the coordinator's overall confidence average. Only research
// results carry one today; analytics and communication payloads stay out of
// the average on purpose.
type ConfidenceCarrier interface {
	ConfidenceScore() float64
}

// AgentExecutionResult records one agent invocation inside a workflow.
// Entries are appended in execution order.
type AgentExecutionResult struct {
	Agent            AgentKind    `json:"agent"`
	Result           AgentPayload `json:"result,omitempty"`
	Success          bool         `json:"success"`
	Error            string       `json:"error,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Timestamp        time.Time    `json:"timestamp"`
}

// WorkflowStep is the per-agent diagnostic entry in the response.
type WorkflowStep struct {
	Agent      AgentKind `json:"agent"`
	Status     string    `json:"status"` // completed | failed
	DurationMs int64     `json:"duration_ms"`
}

// EnrichedContext is the request-scoped context passed to each agent in
// plan order. Prior successful agents fill their slot; later agents read
// whatever they need.
type EnrichedContext struct {
	ClientID   *int64
	SearchType SearchType
	Limit      int
	Metadata   map[string]interface{}
	Research   *ResearchResult
	Analytics  *AnalyticsResult
}

type CoordinatorResponse struct {
	Response         string                 `json:"response"`
	WorkflowID       string                 `json:"workflow_id"`
	Strategy         StrategyType           `json:"strategy"`
	ExecutedSteps    []WorkflowStep         `json:"executed_steps"`
	AgentResults     []AgentExecutionResult `json:"agent_results"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	Confidence       float64                `json:"confidence"`
	Metadata         ResponseMetadata       `json:"metadata"`
}

type ResponseMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalAgentsUsed int       `json:"total_agents_used"`
	WorkflowSuccess bool      `json:"workflow_success"`
	Error           string    `json:"error,omitempty"`
}

// AgentUpdate is the message published to the per-workflow Redis stream as
// agents start and finish.
type AgentUpdate struct {
	WorkflowID string    `json:"workflow_id"`
	UserID     string    `json:"user_id"`
	Agent      string    `json:"agent"`
	Status     string    `json:"status"` // started | completed | failed
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowState is the Redis-persisted snapshot of a workflow. It carries
// no interface-typed fields so it round-trips through JSON.
type WorkflowState struct {
	WorkflowID       string         `json:"workflow_id"`
	UserID           string         `json:"user_id"`
	Query            string         `json:"query"`
	Strategy         StrategyType   `json:"strategy"`
	Status           string         `json:"status"` // running | completed | failed
	ExecutedSteps    []WorkflowStep `json:"executed_steps"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	StartedAt        time.Time      `json:"started_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CoordinatorHealth reports a trivial-call probe of each agent.
type CoordinatorHealth struct {
	Status string            `json:"status"` // healthy | degraded
	Agents map[string]string `json:"agents"` // agent -> healthy | error
}
