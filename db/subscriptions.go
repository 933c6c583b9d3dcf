package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/models"
)

const subCols = "id, account_id, plan, quota_bytes, bytes_used, bytes_reserved, started_at, expires_at, active"

func scanSub(scan func(dest ...interface{}) error) (*models.Subscription, error) {
	var s models.Subscription
	var started, expires int64
	var active int
	err := scan(&s.ID, &s.AccountID, &s.Plan, &s.QuotaBytes, &s.BytesUsed,
		&s.BytesReserved, &started, &expires, &active)
	if err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(started, 0)
	s.ExpiresAt = time.Unix(expires, 0)
	s.Active = active == 1
	return &s, nil
}

// activateTx deactivates any prior active subscription and inserts the new
// one. The new row starts with bytes_used equal to the account's stored
// file total, so existing files keep counting against the fresh quota.
func activateTx(tx *sql.Tx, accountID int64, plan string, quota int64, days int) (*models.Subscription, error) {
	now := time.Now()
	if _, err := tx.Exec("UPDATE subscriptions SET active=0 WHERE account_id=? AND active=1", accountID); err != nil {
		return nil, err
	}
	res, err := tx.Exec(`INSERT INTO subscriptions(account_id, plan, quota_bytes, bytes_used, started_at, expires_at, active)
                VALUES(?,?,?,(SELECT COALESCE(SUM(size),0) FROM files WHERE account_id=?),?,?,1)`,
		accountID, plan, quota, accountID, now.Unix(), now.AddDate(0, 0, days).Unix())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	row := tx.QueryRow("SELECT "+subCols+" FROM subscriptions WHERE id=?", id)
	return scanSub(row.Scan)
}

func (db *DB) ActivateSubscription(ctx context.Context, accountID int64, plan string, quota int64, days int) (*models.Subscription, error) {
	var sub *models.Subscription
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var e error
		sub, e = activateTx(tx, accountID, plan, quota, days)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("activate %s for account %d: %w", plan, accountID, err)
	}
	return sub, nil
}

// RenewSubscription extends the active subscription from the later of its
// expiry and now, so an expired plan restarts instead of stacking onto
// the past.
func (db *DB) RenewSubscription(ctx context.Context, accountID int64, extraDays int) (*models.Subscription, error) {
	var sub *models.Subscription
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+subCols+" FROM subscriptions WHERE account_id=? AND active=1", accountID)
		cur, err := scanSub(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no active subscription for account %d: %w", accountID, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		base := cur.ExpiresAt
		if now := time.Now(); now.After(base) {
			base = now
		}
		expires := base.AddDate(0, 0, extraDays)
		if _, err := tx.Exec("UPDATE subscriptions SET expires_at=? WHERE id=?", expires.Unix(), cur.ID); err != nil {
			return err
		}
		cur.ExpiresAt = expires
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (db *DB) ActiveSubscription(ctx context.Context, accountID int64) (*models.Subscription, error) {
	var sub *models.Subscription
	err := retry(ctx, func() error {
		row := db.QueryRowContext(ctx, "SELECT "+subCols+" FROM subscriptions WHERE account_id=? AND active=1", accountID)
		var e error
		sub, e = scanSub(row.Scan)
		return e
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no active subscription for account %d: %w", accountID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (db *DB) SweepExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, "UPDATE subscriptions SET active=0, bytes_reserved=0 WHERE active=1 AND expires_at <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReserveBytes is a single conditional update: the quota check and the
// reservation land atomically, so concurrent dispatchers cannot co-admit
// past the ceiling. Zero rows affected means refusal (or no active,
// unexpired subscription), with nothing mutated.
func (db *DB) ReserveBytes(ctx context.Context, accountID int64, size int64) (bool, error) {
	res, err := db.exec(ctx, `UPDATE subscriptions SET bytes_reserved = bytes_reserved + ?
                WHERE account_id=? AND active=1 AND expires_at > ?
                AND bytes_used + bytes_reserved + ? <= quota_bytes`,
		size, accountID, time.Now().Unix(), size)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) CommitBytes(ctx context.Context, accountID int64, size int64) error {
	_, err := db.exec(ctx, `UPDATE subscriptions SET
                bytes_used = bytes_used + ?,
                bytes_reserved = max(bytes_reserved - ?, 0)
                WHERE account_id=? AND active=1`,
		size, size, accountID)
	return err
}

func (db *DB) ReleaseReserved(ctx context.Context, accountID int64, size int64) error {
	_, err := db.exec(ctx, `UPDATE subscriptions SET bytes_reserved = max(bytes_reserved - ?, 0)
                WHERE account_id=? AND active=1`, size, accountID)
	return err
}

func (db *DB) ReleaseBytes(ctx context.Context, accountID int64, size int64) error {
	_, err := db.exec(ctx, `UPDATE subscriptions SET bytes_used = max(bytes_used - ?, 0)
                WHERE account_id=? AND active=1`, size, accountID)
	return err
}
