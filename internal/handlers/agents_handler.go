package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/services"
	"crm-agent-pipeline/internal/vector"
)

// maxBatchRequests caps one batch coordination call.
const maxBatchRequests = 10

// WorkflowStateReader serves stored workflow snapshots.
type WorkflowStateReader interface {
	GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error)
}

// AgentsHandler is the HTTP surface of the coordination subsystem.
type AgentsHandler struct {
	coordinator   *services.Coordinator
	registry      *services.ToolRegistry
	research      *services.ResearchAgent
	communication *services.CommunicationAgent
	states        WorkflowStateReader
	logger        *logger.Logger
}

func NewAgentsHandler(coordinator *services.Coordinator, registry *services.ToolRegistry, research *services.ResearchAgent, communication *services.CommunicationAgent, states WorkflowStateReader, log *logger.Logger) *AgentsHandler {
	return &AgentsHandler{
		coordinator:   coordinator,
		registry:      registry,
		research:      research,
		communication: communication,
		states:        states,
		logger:        log,
	}
}

// Coordinate runs the full multi-agent workflow. Error-strategy responses
// still return 200 with workflow_success=false so callers keep the
// diagnostics; only invalid input is rejected up front.
func (h *AgentsHandler) Coordinate(c *gin.Context) {
	var req models.CoordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}

	response := h.coordinator.Coordinate(c.Request.Context(), currentUserID(c), &req)
	c.JSON(http.StatusOK, response)
}

func (h *AgentsHandler) CoordinateAnalytics(c *gin.Context) {
	h.invokeTool(c, "analytics_coordination")
}

func (h *AgentsHandler) CoordinateResearch(c *gin.Context) {
	h.invokeTool(c, "research_coordination")
}

func (h *AgentsHandler) CoordinateCommunication(c *gin.Context) {
	h.invokeTool(c, "communication_coordination")
}

func (h *AgentsHandler) invokeTool(c *gin.Context, tool string) {
	var args services.ToolArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(args.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}
	args.UserID = currentUserID(c)

	output, err := h.registry.Invoke(c.Request.Context(), tool, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

type batchCoordinationRequest struct {
	Requests []models.CoordinatorRequest `json:"requests" binding:"required,min=1,dive"`
	Parallel bool                        `json:"parallel,omitempty"`
}

// CoordinateBatch runs up to maxBatchRequests workflows in one call,
// sequentially by default or fanned out when parallel is set. Individual
// failures surface per result; the batch itself always returns 200.
func (h *AgentsHandler) CoordinateBatch(c *gin.Context) {
	var req batchCoordinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Requests) > maxBatchRequests {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 10 requests allowed per batch"})
		return
	}

	start := time.Now()
	userID := currentUserID(c)
	results := make([]*models.CoordinatorResponse, len(req.Requests))

	if req.Parallel {
		g, gctx := errgroup.WithContext(c.Request.Context())
		for i := range req.Requests {
			g.Go(func() error {
				results[i] = h.coordinator.Coordinate(gctx, userID, &req.Requests[i])
				return nil
			})
		}
		// Coordinate never returns an error
		_ = g.Wait()
	} else {
		for i := range req.Requests {
			results[i] = h.coordinator.Coordinate(c.Request.Context(), userID, &req.Requests[i])
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":       results,
		"total_time_ms": time.Since(start).Milliseconds(),
	})
}

type smartCoordinationRequest struct {
	Query       string                 `json:"query" binding:"required"`
	Context     *models.RequestContext `json:"context,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// CoordinateSmart folds caller preferences into the request metadata and
// lets the coordinator pick the strategy.
func (h *AgentsHandler) CoordinateSmart(c *gin.Context) {
	var req smartCoordinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}

	reqCtx := req.Context
	if reqCtx == nil {
		reqCtx = &models.RequestContext{}
	}
	if len(req.Preferences) > 0 {
		if reqCtx.Metadata == nil {
			reqCtx.Metadata = map[string]interface{}{}
		}
		reqCtx.Metadata["preferences"] = req.Preferences
	}

	response := h.coordinator.Coordinate(c.Request.Context(), currentUserID(c), &models.CoordinatorRequest{
		Query:   req.Query,
		Context: reqCtx,
	})
	c.JSON(http.StatusOK, response)
}

// ListTools exposes the registry surface so clients can discover tool
// names and parameter schemas.
func (h *AgentsHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.registry.List()})
}

type toolExecutionRequest struct {
	Tool  string            `json:"tool" binding:"required"`
	Input services.ToolArgs `json:"input"`
}

// ExecuteTool dispatches a named tool through the registry. Unknown names
// map to 404 via the registry's not-found error.
func (h *AgentsHandler) ExecuteTool(c *gin.Context) {
	var req toolExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Input.UserID = currentUserID(c)

	output, err := h.registry.Invoke(c.Request.Context(), req.Tool, req.Input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

func (h *AgentsHandler) CoordinatorHealth(c *gin.Context) {
	health := h.coordinator.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *AgentsHandler) WorkflowState(c *gin.Context) {
	state, err := h.states.GetWorkflowState(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type researchRequest struct {
	Query      string            `json:"query" binding:"required"`
	SearchType models.SearchType `json:"search_type,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

func (h *AgentsHandler) Research(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SearchType == "" {
		req.SearchType = models.SearchTypeGeneral
	}

	result, err := h.research.Research(c.Request.Context(), req.Query, req.SearchType, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type indexDocument struct {
	ID       string            `json:"id" binding:"required"`
	Text     string            `json:"text" binding:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type indexDocumentsRequest struct {
	Documents []indexDocument `json:"documents" binding:"required,min=1,dive"`
}

// IndexDocuments embeds the submitted documents and upserts them into the
// vector index, making them visible to the research vector branch.
func (h *AgentsHandler) IndexDocuments(c *gin.Context) {
	var req indexDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docs := make([]vector.Record, len(req.Documents))
	for i, doc := range req.Documents {
		docs[i] = vector.Record{ID: doc.ID, Text: doc.Text, Metadata: doc.Metadata}
	}

	if err := h.research.IndexDocuments(c.Request.Context(), docs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": len(docs)})
}

type deleteDocumentsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *AgentsHandler) DeleteDocuments(c *gin.Context) {
	var req deleteDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.research.DeleteDocuments(c.Request.Context(), req.IDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}

type communicationRequest struct {
	Query    string `json:"query" binding:"required"`
	ClientID *int64 `json:"client_id,omitempty"`
}

func (h *AgentsHandler) CommunicationResponse(c *gin.Context) {
	var req communicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.communication.GenerateAnalyticsEnhancedResponse(c.Request.Context(), req.Query, req.ClientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AgentsHandler) CommunicationDraft(c *gin.Context) {
	var req models.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.communication.GenerateDraft(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (h *AgentsHandler) CommunicationSmartDraft(c *gin.Context) {
	var req models.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.communication.GenerateSmartDraft(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}
