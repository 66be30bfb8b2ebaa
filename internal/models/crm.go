package models

import "time"

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company,omitempty"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Invoice struct {
	ID        int64     `json:"id"`
	Amount    float64   `json:"amount"`
	DueDate   time.Time `json:"due_date"`
	Paid      bool      `json:"paid"`
	ClientID  int64     `json:"client_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsOverdue reports whether the invoice is unpaid past its due date.
func (i *Invoice) IsOverdue(now time.Time) bool {
	return !i.Paid && i.DueDate.Before(now)
}

type CreateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Company string `json:"company,omitempty"`
}

type CreateInvoiceRequest struct {
	Amount   float64   `json:"amount" binding:"required,gt=0"`
	DueDate  time.Time `json:"due_date" binding:"required"`
	ClientID int64     `json:"client_id" binding:"required"`
}
