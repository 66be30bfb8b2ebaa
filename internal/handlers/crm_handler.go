package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

// CRMStore is the CRUD surface the handlers need; the sqlite store
// implements it.
type CRMStore interface {
	CreateClient(ctx context.Context, userID string, req models.CreateClientRequest) (*models.Client, error)
	ListClients(ctx context.Context, userID string) ([]models.Client, error)
	DeleteClient(ctx context.Context, id int64, userID string) error
	CreateInvoice(ctx context.Context, userID string, req models.CreateInvoiceRequest) (*models.Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id int64, userID string) error
	DeleteInvoice(ctx context.Context, id int64, userID string) error
}

type CRMHandler struct {
	store  CRMStore
	logger *logger.Logger
}

func NewCRMHandler(store CRMStore, log *logger.Logger) *CRMHandler {
	return &CRMHandler{store: store, logger: log}
}

func (h *CRMHandler) ListClients(c *gin.Context) {
	clients, err := h.store.ListClients(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if clients == nil {
		clients = []models.Client{}
	}
	c.JSON(http.StatusOK, clients)
}

func (h *CRMHandler) CreateClient(c *gin.Context) {
	var req models.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.store.CreateClient(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *CRMHandler) DeleteClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteClient(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CRMHandler) ListInvoices(c *gin.Context) {
	invoices, err := h.store.ListInvoices(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	c.JSON(http.StatusOK, invoices)
}

func (h *CRMHandler) CreateInvoice(c *gin.Context) {
	var req models.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoice, err := h.store.CreateInvoice(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (h *CRMHandler) PayInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.MarkInvoicePaid(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "paid": true})
}

func (h *CRMHandler) DeleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteInvoice(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
