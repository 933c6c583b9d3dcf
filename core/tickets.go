package core

import (
	"context"
	"fmt"
	"strconv"

	"github.com/example/storagegatebot/models"
)

// Tickets runs the open -> completed/failed -> closed workflow. A
// completed payment ticket is the legitimate path to a subscription;
// the activation happens in the same store transaction as the status
// change so a mid-failure cannot strand either side.
type Tickets struct {
	tickets  TicketStore
	registry *Registry
	audit    AuditStore
}

func NewTickets(tickets TicketStore, registry *Registry, audit AuditStore) *Tickets {
	return &Tickets{tickets: tickets, registry: registry, audit: audit}
}

// Open creates a payment ticket for the plan. A second open payment
// ticket for the same account is refused with ErrConflict.
func (t *Tickets) Open(ctx context.Context, accountID int64, planID string) (*models.Ticket, error) {
	plan, ok := models.LookupPlan(planID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", planID, ErrInvalidInput)
	}
	tk := &models.Ticket{
		AccountID: accountID,
		Type:      models.TicketPayment,
		Status:    models.TicketOpen,
		Plan:      plan.ID,
		Amount:    plan.PriceUSD,
	}
	if err := t.tickets.OpenTicket(ctx, tk); err != nil {
		return nil, err
	}
	return tk, nil
}

// OpenSupport creates a support ticket. Support tickets share the
// lifecycle but never touch the subscription ledger.
func (t *Tickets) OpenSupport(ctx context.Context, accountID int64, subject string) (*models.Ticket, error) {
	if subject == "" {
		return nil, fmt.Errorf("empty subject: %w", ErrInvalidInput)
	}
	tk := &models.Ticket{
		AccountID: accountID,
		Type:      models.TicketSupport,
		Status:    models.TicketOpen,
		Subject:   subject,
	}
	if err := t.tickets.OpenTicket(ctx, tk); err != nil {
		return nil, err
	}
	return tk, nil
}

// Complete moves an open ticket to completed. Payment tickets activate
// their plan as part of the same transaction and return the subscription.
func (t *Tickets) Complete(ctx context.Context, actor, ticketID int64, notes string) (*models.Subscription, error) {
	if err := t.registry.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	tk, err := t.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	var plan *models.Plan
	if tk.Type == models.TicketPayment {
		p, ok := models.LookupPlan(tk.Plan)
		if !ok {
			return nil, fmt.Errorf("ticket %d has unknown plan %q: %w", ticketID, tk.Plan, ErrInvalidInput)
		}
		plan = &p
	}
	sub, err := t.tickets.CompleteTicket(ctx, ticketID, actor, notes, plan)
	if err != nil {
		return nil, err
	}
	err = t.audit.Audit(ctx, actor, "ticket_complete", strconv.FormatInt(ticketID, 10), notes)
	return sub, err
}

// Fail moves an open ticket to failed. No subscription side effect.
func (t *Tickets) Fail(ctx context.Context, actor, ticketID int64, notes string) error {
	if err := t.registry.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := t.tickets.FailTicket(ctx, ticketID, actor, notes); err != nil {
		return err
	}
	return t.audit.Audit(ctx, actor, "ticket_fail", strconv.FormatInt(ticketID, 10), notes)
}

// Close archives a ticket that already reached completed or failed.
// Closing an open ticket is an illegal transition and is refused.
func (t *Tickets) Close(ctx context.Context, actor, ticketID int64) error {
	if err := t.registry.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := t.tickets.CloseTicket(ctx, ticketID, actor); err != nil {
		return err
	}
	return t.audit.Audit(ctx, actor, "ticket_close", strconv.FormatInt(ticketID, 10), "")
}

// Get returns a single ticket.
func (t *Tickets) Get(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	return t.tickets.GetTicket(ctx, ticketID)
}

// List returns tickets, optionally filtered by status. Admin-only.
func (t *Tickets) List(ctx context.Context, actor int64, status string) ([]models.Ticket, error) {
	if err := t.registry.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	switch status {
	case "", models.TicketOpen, models.TicketCompleted, models.TicketFailed, models.TicketClosed:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrInvalidInput)
	}
	return t.tickets.ListTickets(ctx, status)
}
