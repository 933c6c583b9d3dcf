package db

import (
	"context"
	"errors"
	"testing"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/models"
)

func openPayment(t *testing.T, d *DB, accountID int64) *models.Ticket {
	t.Helper()
	tk := &models.Ticket{
		AccountID: accountID,
		Type:      models.TicketPayment,
		Status:    models.TicketOpen,
		Plan:      "basic",
		Amount:    2,
	}
	if err := d.OpenTicket(context.Background(), tk); err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return tk
}

func TestOpenSecondPaymentTicketConflicts(t *testing.T) {
	d := newTestDB(t)
	openPayment(t, d, 1)

	dup := &models.Ticket{AccountID: 1, Type: models.TicketPayment, Status: models.TicketOpen, Plan: "pro"}
	if err := d.OpenTicket(context.Background(), dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict for second open payment ticket, got %v", err)
	}

	// Support tickets are not limited.
	sup := &models.Ticket{AccountID: 1, Type: models.TicketSupport, Status: models.TicketOpen, Subject: "help"}
	if err := d.OpenTicket(context.Background(), sup); err != nil {
		t.Fatalf("support ticket alongside payment ticket: %v", err)
	}
}

func TestCompleteActivatesPlan(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	tk := openPayment(t, d, 2)

	plan, _ := models.LookupPlan("basic")
	sub, err := d.CompleteTicket(ctx, tk.ID, 999, "paid", &plan)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sub == nil || sub.Plan != "basic" || !sub.Active {
		t.Fatalf("completion must activate the plan, got %+v", sub)
	}

	got, err := d.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TicketCompleted || got.ProcessedBy != 999 || got.ProcessedAt == nil {
		t.Fatalf("ticket not recorded as completed: %+v", got)
	}

	// A second payment ticket is allowed once the first is terminal.
	openPayment(t, d, 2)
}

func TestCompleteTwiceConflicts(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	tk := openPayment(t, d, 3)

	plan, _ := models.LookupPlan("basic")
	if _, err := d.CompleteTicket(ctx, tk.ID, 999, "", &plan); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := d.CompleteTicket(ctx, tk.ID, 999, "", &plan); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict on double complete, got %v", err)
	}
}

func TestFailThenClose(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	tk := openPayment(t, d, 4)

	if err := d.FailTicket(ctx, tk.ID, 999, "no payment arrived"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := d.CloseTicket(ctx, tk.ID, 999); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ := d.GetTicket(ctx, tk.ID)
	if got.Status != models.TicketClosed {
		t.Fatalf("want closed, got %s", got.Status)
	}
}

func TestCloseOpenTicketIsIllegal(t *testing.T) {
	d := newTestDB(t)
	tk := openPayment(t, d, 5)

	if err := d.CloseTicket(context.Background(), tk.ID, 999); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict closing an open ticket, got %v", err)
	}
}

func TestTicketNotFound(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if _, err := d.GetTicket(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: want ErrNotFound, got %v", err)
	}
	if err := d.FailTicket(ctx, 42, 999, ""); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("fail: want ErrNotFound, got %v", err)
	}
	if err := d.CloseTicket(ctx, 42, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("close: want ErrNotFound, got %v", err)
	}
}

func TestListTicketsByStatus(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	openPayment(t, d, 6)
	tk := openPayment(t, d, 7)
	if err := d.FailTicket(ctx, tk.ID, 999, ""); err != nil {
		t.Fatalf("fail: %v", err)
	}

	open, err := d.ListTickets(ctx, models.TicketOpen)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].AccountID != 6 {
		t.Fatalf("want one open ticket for account 6, got %+v", open)
	}
	all, err := d.ListTickets(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 tickets, got %d", len(all))
	}
}
