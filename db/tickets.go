package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/models"
)

const ticketCols = "id, account_id, type, status, plan, amount, subject, notes, created_at, processed_at, processed_by"

func scanTicket(scan func(dest ...interface{}) error) (*models.Ticket, error) {
	var t models.Ticket
	var createdAt int64
	var processedAt sql.NullInt64
	err := scan(&t.ID, &t.AccountID, &t.Type, &t.Status, &t.Plan, &t.Amount,
		&t.Subject, &t.Notes, &createdAt, &processedAt, &t.ProcessedBy)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.ProcessedAt = unixPtr(processedAt)
	return &t, nil
}

// OpenTicket inserts the ticket. Payment tickets are checked against the
// one-open-per-account rule inside the transaction; the partial unique
// index catches the race when two dispatchers pass the check together.
func (db *DB) OpenTicket(ctx context.Context, t *models.Ticket) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if t.Type == models.TicketPayment {
			var n int
			err := tx.QueryRow(`SELECT COUNT(*) FROM tickets
                                WHERE account_id=? AND type=? AND status=?`,
				t.AccountID, models.TicketPayment, models.TicketOpen).Scan(&n)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("account %d already has an open payment ticket: %w",
					t.AccountID, core.ErrConflict)
			}
		}
		now := time.Now()
		res, err := tx.Exec(`INSERT INTO tickets(account_id, type, status, plan, amount, subject, notes, created_at)
                        VALUES(?,?,?,?,?,?,?,?)`,
			t.AccountID, t.Type, t.Status, t.Plan, t.Amount, t.Subject, t.Notes, now.Unix())
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("account %d already has an open payment ticket: %w",
					t.AccountID, core.ErrConflict)
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = id
		t.CreatedAt = now
		return nil
	})
	return err
}

func (db *DB) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	var t *models.Ticket
	err := retry(ctx, func() error {
		row := db.QueryRowContext(ctx, "SELECT "+ticketCols+" FROM tickets WHERE id=?", id)
		var e error
		t, e = scanTicket(row.Scan)
		return e
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteTicket moves an open ticket to completed and, for payment
// tickets, activates the plan in the same transaction. A mid-failure rolls
// both back.
func (db *DB) CompleteTicket(ctx context.Context, id, adminID int64, notes string, plan *models.Plan) (*models.Subscription, error) {
	var sub *models.Subscription
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+ticketCols+" FROM tickets WHERE id=?", id)
		t, err := scanTicket(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ticket %d: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if t.Status != models.TicketOpen {
			return fmt.Errorf("ticket %d is %s: %w", id, t.Status, core.ErrConflict)
		}
		_, err = tx.Exec(`UPDATE tickets SET status=?, notes=?, processed_at=?, processed_by=?
                        WHERE id=? AND status=?`,
			models.TicketCompleted, notes, time.Now().Unix(), adminID, id, models.TicketOpen)
		if err != nil {
			return err
		}
		if plan != nil {
			sub, err = activateTx(tx, t.AccountID, plan.ID, plan.QuotaBytes, plan.DurationDays)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (db *DB) FailTicket(ctx context.Context, id, adminID int64, notes string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE tickets SET status=?, notes=?, processed_at=?, processed_by=?
                        WHERE id=? AND status=?`,
			models.TicketFailed, notes, time.Now().Unix(), adminID, id, models.TicketOpen)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ticketTransitionErr(tx, id)
		}
		return nil
	})
}

// CloseTicket archives a terminal ticket. open -> closed directly is an
// illegal transition.
func (db *DB) CloseTicket(ctx context.Context, id, adminID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE tickets SET status=?, processed_by=?
                        WHERE id=? AND status IN (?,?)`,
			models.TicketClosed, adminID, id, models.TicketCompleted, models.TicketFailed)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ticketTransitionErr(tx, id)
		}
		return nil
	})
}

// ticketTransitionErr distinguishes a missing ticket from an illegal
// state transition after a guarded update matched nothing.
func ticketTransitionErr(tx *sql.Tx, id int64) error {
	var status string
	err := tx.QueryRow("SELECT status FROM tickets WHERE id=?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ticket %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("ticket %d is %s: %w", id, status, core.ErrConflict)
}

func (db *DB) ListTickets(ctx context.Context, status string) ([]models.Ticket, error) {
	query := "SELECT " + ticketCols + " FROM tickets ORDER BY created_at DESC"
	args := []interface{}{}
	if status != "" {
		query = "SELECT " + ticketCols + " FROM tickets WHERE status=? ORDER BY created_at DESC"
		args = append(args, status)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
