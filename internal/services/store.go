package services

import (
	"context"
	"time"

	"crm-agent-pipeline/internal/models"
)

// DataStore is the structured-store surface the agents depend on. The
// sqlite store in internal/storage implements it.
type DataStore interface {
	FindClients(ctx context.Context, search string, limit int) ([]models.Client, error)
	FindInvoices(ctx context.Context, minAmount float64, clientName string, limit int) ([]models.Invoice, error)
	CountClients(ctx context.Context) (int, error)
	CountClientsActiveSince(ctx context.Context, since time.Time) (int, error)
	RecentClients(ctx context.Context, limit int) ([]models.Client, error)
	ClientWithInvoices(ctx context.Context, id int64, invoiceLimit int) (*models.Client, []models.Invoice, error)
	CountOverdueInvoices(ctx context.Context, clientID int64, limit int) (int, error)
}
