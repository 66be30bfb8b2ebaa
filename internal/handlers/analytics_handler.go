package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/services"
)

type AnalyticsHandler struct {
	analytics *services.AnalyticsAgent
	logger    *logger.Logger
}

func NewAnalyticsHandler(analytics *services.AnalyticsAgent, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: log}
}

type toneRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *AnalyticsHandler) Tone(c *gin.Context) {
	var req toneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tone, err := h.analytics.AnalyzeTone(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tone)
}

type priorityRequest struct {
	Text     string                 `json:"text" binding:"required"`
	ClientID *int64                 `json:"client_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (h *AnalyticsHandler) Priority(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assessment, err := h.analytics.AssessPriority(c.Request.Context(), req.Text, req.ClientID, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *AnalyticsHandler) Comprehensive(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analysis, err := h.analytics.ComprehensiveAnalysis(c.Request.Context(), req.Text, req.ClientID, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *AnalyticsHandler) Churn(c *gin.Context) {
	clientID, err := strconv.ParseInt(c.Param("clientId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}

	prediction, err := h.analytics.CalculateChurnProbability(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prediction)
}

func (h *AnalyticsHandler) BatchChurn(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.analytics.BatchChurnAnalysis(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "results": entries})
}
