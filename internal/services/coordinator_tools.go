package services

import (
	"context"
	"fmt"
	"sort"

	"crm-agent-pipeline/internal/models"
)

// ToolArgs is the common argument shape tools accept.
type ToolArgs struct {
	Query      string                 `json:"query"`
	UserID     string                 `json:"user_id,omitempty"`
	ClientID   *int64                 `json:"client_id,omitempty"`
	SearchType models.SearchType      `json:"search_type,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolOutput pairs a tool's typed result with a short human-readable
// description of what happened.
type ToolOutput struct {
	Result      interface{} `json:"result"`
	Description string      `json:"description"`
}

type ToolHandler func(ctx context.Context, args ToolArgs) (*ToolOutput, error)

// ParameterSpec describes one tool parameter declaratively.
type ParameterSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ParameterSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]ParameterSpec `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// Tool is a named handler with a declarative parameter schema. Dispatch is
// a plain map lookup.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      ParameterSchema `json:"schema"`
	Handler     ToolHandler     `json:"-"`
}

// ToolRegistry exposes the coordination surface as named tools.
type ToolRegistry struct {
	coordinator *Coordinator
	tools       map[string]Tool
}

func NewToolRegistry(coordinator *Coordinator) *ToolRegistry {
	r := &ToolRegistry{coordinator: coordinator, tools: make(map[string]Tool)}

	querySchema := ParameterSchema{
		Type: "object",
		Properties: map[string]ParameterSpec{
			"query":       {Type: "string", Description: "Natural-language request"},
			"client_id":   {Type: "integer", Description: "Optional client identifier"},
			"search_type": {Type: "string", Description: "Structured search branch", Enum: []string{"general", "client", "invoice", "analytics"}},
			"limit":       {Type: "integer", Description: "Maximum results per source"},
		},
		Required: []string{"query"},
	}

	r.register(Tool{
		Name:        "coordinate",
		Description: "Route a request through the full multi-agent workflow",
		Schema:      querySchema,
		Handler:     r.coordinate,
	})
	r.register(Tool{
		Name:        "analytics_coordination",
		Description: "Run tone, priority and churn analysis for a request",
		Schema:      querySchema,
		Handler:     r.analyticsCoordination,
	})
	r.register(Tool{
		Name:        "research_coordination",
		Description: "Search the CRM store and the semantic index for a request",
		Schema:      querySchema,
		Handler:     r.researchCoordination,
	})
	r.register(Tool{
		Name:        "communication_coordination",
		Description: "Generate a customer-facing reply for a request",
		Schema:      querySchema,
		Handler:     r.communicationCoordination,
	})
	r.register(Tool{
		Name:        "health_check",
		Description: "Probe every agent and report per-agent health",
		Schema:      ParameterSchema{Type: "object", Properties: map[string]ParameterSpec{}},
		Handler:     r.healthCheck,
	})

	return r
}

func (r *ToolRegistry) register(tool Tool) {
	r.tools[tool.Name] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (r *ToolRegistry) Invoke(ctx context.Context, name string, args ToolArgs) (*ToolOutput, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, models.NewNotFoundError("TOOL_NOT_FOUND", fmt.Sprintf("tool %q is not registered", name))
	}
	return tool.Handler(ctx, args)
}

func (r *ToolRegistry) coordinate(ctx context.Context, args ToolArgs) (*ToolOutput, error) {
	response := r.coordinator.Coordinate(ctx, args.UserID, &models.CoordinatorRequest{
		Query: args.Query,
		Context: &models.RequestContext{
			ClientID:   args.ClientID,
			SearchType: args.SearchType,
			Limit:      args.Limit,
			Metadata:   args.Metadata,
		},
	})

	return &ToolOutput{
		Result: response,
		Description: fmt.Sprintf("Coordinated %d agents with %s strategy (confidence %.2f)",
			response.Metadata.TotalAgentsUsed, response.Strategy, response.Confidence),
	}, nil
}

func (r *ToolRegistry) analyticsCoordination(ctx context.Context, args ToolArgs) (*ToolOutput, error) {
	analysis, err := r.coordinator.analytics.ComprehensiveAnalysis(ctx, args.Query, args.ClientID, args.Metadata)
	if err != nil {
		return nil, err
	}

	description := "Analytics completed"
	if analysis.Tone != nil && analysis.Priority != nil {
		description = fmt.Sprintf("Detected %s sentiment with %s priority", analysis.Tone.Sentiment, analysis.Priority.Priority)
	}
	if analysis.Churn != nil {
		description += fmt.Sprintf("; churn risk %s (%.0f%%)", analysis.Churn.RiskLevel, analysis.Churn.ChurnProbability*100)
	}

	return &ToolOutput{Result: analysis, Description: description}, nil
}

func (r *ToolRegistry) researchCoordination(ctx context.Context, args ToolArgs) (*ToolOutput, error) {
	searchType := args.SearchType
	if searchType == "" {
		searchType = models.SearchTypeGeneral
	}

	result, err := r.coordinator.research.Research(ctx, args.Query, searchType, args.Limit)
	if err != nil {
		return nil, err
	}

	return &ToolOutput{
		Result: result,
		Description: fmt.Sprintf("Found %d results (%d database, %d semantic) with confidence %.2f",
			result.TotalResults, len(result.DatabaseResults), len(result.VectorResults), result.Confidence),
	}, nil
}

func (r *ToolRegistry) communicationCoordination(ctx context.Context, args ToolArgs) (*ToolOutput, error) {
	response, err := r.coordinator.communication.GenerateResponse(ctx, args.Query, &models.EnrichedContext{
		ClientID:   args.ClientID,
		SearchType: args.SearchType,
		Limit:      args.Limit,
		Metadata:   args.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return &ToolOutput{
		Result:      response,
		Description: fmt.Sprintf("Generated a %d-word %s reply", response.Metadata.WordCount, response.Tone),
	}, nil
}

func (r *ToolRegistry) healthCheck(ctx context.Context, _ ToolArgs) (*ToolOutput, error) {
	health := r.coordinator.HealthCheck(ctx)
	return &ToolOutput{
		Result:      health,
		Description: fmt.Sprintf("Coordinator is %s", health.Status),
	}, nil
}
