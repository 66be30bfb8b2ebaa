package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crm-agent-pipeline/internal/models"
)

func newTestRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	coordinator := newTestCoordinator(t,
		&stubAnalytics{analysis: healthyAnalysis()},
		&stubResearch{result: healthyResearch()},
		&stubCommunication{response: &models.CommunicationResponse{Response: "done", Tone: models.ToneProfessional, Metadata: models.CommunicationDetails{WordCount: 1}}},
	)
	return NewToolRegistry(coordinator)
}

func TestRegistryListsToolsSorted(t *testing.T) {
	registry := newTestRegistry(t)
	tools := registry.List()

	want := []string{
		"analytics_coordination",
		"communication_coordination",
		"coordinate",
		"health_check",
		"research_coordination",
	}
	if len(tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Fatalf("tools[%d] = %s, want %s", i, tools[i].Name, name)
		}
	}
}

func TestRegistrySchemasRequireQuery(t *testing.T) {
	registry := newTestRegistry(t)

	for _, name := range []string{"coordinate", "analytics_coordination", "research_coordination", "communication_coordination"} {
		tool, ok := registry.Get(name)
		if !ok {
			t.Fatalf("tool %s not registered", name)
		}
		if len(tool.Schema.Required) != 1 || tool.Schema.Required[0] != "query" {
			t.Fatalf("tool %s should require query, got %v", name, tool.Schema.Required)
		}
		if _, ok := tool.Schema.Properties["query"]; !ok {
			t.Fatalf("tool %s schema missing query property", name)
		}
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Invoke(context.Background(), "does_not_exist", ToolArgs{})
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeNotFound {
		t.Fatalf("expected not_found AppError, got %v", err)
	}
}

func TestAnalyticsCoordinationDescription(t *testing.T) {
	registry := newTestRegistry(t)

	output, err := registry.Invoke(context.Background(), "analytics_coordination", ToolArgs{Query: "how risky is this account"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(output.Description, "negative sentiment") {
		t.Fatalf("description should summarize the tone: %q", output.Description)
	}
	if !strings.Contains(output.Description, "churn risk high") {
		t.Fatalf("description should summarize churn: %q", output.Description)
	}
	if _, ok := output.Result.(*models.AnalyticsResult); !ok {
		t.Fatalf("result has wrong type: %T", output.Result)
	}
}

func TestResearchCoordinationDescription(t *testing.T) {
	registry := newTestRegistry(t)

	output, err := registry.Invoke(context.Background(), "research_coordination", ToolArgs{Query: "find acme"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(output.Description, "Found 2 results") {
		t.Fatalf("description should report the result count: %q", output.Description)
	}
}

func TestCoordinateToolRunsFullWorkflow(t *testing.T) {
	registry := newTestRegistry(t)

	output, err := registry.Invoke(context.Background(), "coordinate", ToolArgs{Query: "analyze churn for acme", UserID: "user-1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	response, ok := output.Result.(*models.CoordinatorResponse)
	if !ok {
		t.Fatalf("result has wrong type: %T", output.Result)
	}
	if response.Strategy != models.StrategyAnalyticsFirst {
		t.Fatalf("strategy = %s, want analytics-first", response.Strategy)
	}
	if !strings.Contains(output.Description, "analytics-first") {
		t.Fatalf("description should name the strategy: %q", output.Description)
	}
}
