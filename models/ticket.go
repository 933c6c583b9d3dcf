package models

import "time"

// Ticket types.
const (
	TicketPayment = "payment"
	TicketSupport = "support"
)

// Ticket statuses. open -> completed|failed -> closed.
const (
	TicketOpen      = "open"
	TicketCompleted = "completed"
	TicketFailed    = "failed"
	TicketClosed    = "closed"
)

// Ticket is a tracked request. Payment tickets carry a plan and amount and,
// once completed, are the path to a new subscription.
type Ticket struct {
	ID          int64
	AccountID   int64
	Type        string
	Status      string
	Plan        string
	Amount      float64
	Subject     string
	Notes       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	ProcessedBy int64
}

// Terminal reports whether the ticket reached completed or failed.
func (t *Ticket) Terminal() bool {
	return t.Status == TicketCompleted || t.Status == TicketFailed
}
