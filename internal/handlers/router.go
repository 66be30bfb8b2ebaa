package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

const userIDHeader = "X-User-ID"

// identityMiddleware reads the owning user from the X-User-ID header.
// Authentication itself lives outside this service; the header is trusted.
func identityMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userIDHeader + " header"})
				return
			}
			userID = "anonymous"
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// respondError maps an error to an HTTP status by its AppError type.
func respondError(c *gin.Context, err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case models.ErrorTypeNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": appErr.Message, "code": appErr.Code})
		case models.ErrorTypeTimeout:
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": appErr.Message, "code": appErr.Code})
		case models.ErrorTypeExternal:
			c.JSON(http.StatusBadGateway, gin.H{"error": appErr.Message, "code": appErr.Code})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": appErr.Message, "code": appErr.Code})
		}
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// NewRouter assembles the HTTP surface.
func NewRouter(agents *AgentsHandler, analytics *AnalyticsHandler, crm *CRMHandler, health *HealthHandler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/health", health.Health)

	api := router.Group("/api/v1")

	agentRoutes := api.Group("/agents", identityMiddleware(false))
	{
		agentRoutes.POST("/coordinate", agents.Coordinate)
		agentRoutes.POST("/coordinate/analytics", agents.CoordinateAnalytics)
		agentRoutes.POST("/coordinate/research", agents.CoordinateResearch)
		agentRoutes.POST("/coordinate/communication", agents.CoordinateCommunication)
		agentRoutes.POST("/coordinate/batch", agents.CoordinateBatch)
		agentRoutes.POST("/coordinate/smart", agents.CoordinateSmart)
		agentRoutes.GET("/coordinate/health", agents.CoordinatorHealth)
		agentRoutes.GET("/tools", agents.ListTools)
		agentRoutes.POST("/tools/execute", agents.ExecuteTool)
		agentRoutes.GET("/workflows/:id", agents.WorkflowState)
		agentRoutes.POST("/research", agents.Research)
		agentRoutes.POST("/research/index", agents.IndexDocuments)
		agentRoutes.DELETE("/research/documents", agents.DeleteDocuments)
		agentRoutes.POST("/communication/response", agents.CommunicationResponse)
		agentRoutes.POST("/communication/draft", agents.CommunicationDraft)
		agentRoutes.POST("/communication/smart-draft", agents.CommunicationSmartDraft)
	}

	analyticsRoutes := api.Group("/analytics", identityMiddleware(false))
	{
		analyticsRoutes.POST("/tone", analytics.Tone)
		analyticsRoutes.POST("/priority", analytics.Priority)
		analyticsRoutes.POST("/comprehensive", analytics.Comprehensive)
		analyticsRoutes.GET("/churn/:clientId", analytics.Churn)
		analyticsRoutes.GET("/churn", analytics.BatchChurn)
	}

	crmRoutes := api.Group("", identityMiddleware(true))
	{
		crmRoutes.GET("/clients", crm.ListClients)
		crmRoutes.POST("/clients", crm.CreateClient)
		crmRoutes.DELETE("/clients/:id", crm.DeleteClient)
		crmRoutes.GET("/invoices", crm.ListInvoices)
		crmRoutes.POST("/invoices", crm.CreateInvoice)
		crmRoutes.PATCH("/invoices/:id/pay", crm.PayInvoice)
		crmRoutes.DELETE("/invoices/:id", crm.DeleteInvoice)
	}

	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}
