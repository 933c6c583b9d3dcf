package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/storagegatebot/core"
)

// DB is the sqlite store behind the core repository interfaces.
type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; one pooled connection avoids busy-lock
	// churn and makes :memory: databases behave.
	database.SetMaxOpenConns(1)
	if err := migrate(database); err != nil {
		return nil, err
	}
	return &DB{database}, nil
}

func migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts(
                        id INTEGER PRIMARY KEY,
                        username TEXT NOT NULL DEFAULT '',
                        approved INTEGER NOT NULL DEFAULT 0,
                        banned INTEGER NOT NULL DEFAULT 0,
                        admin INTEGER NOT NULL DEFAULT 0,
                        admin_until INTEGER,
                        created_at INTEGER NOT NULL
                );`,
		`CREATE TABLE IF NOT EXISTS subscriptions(
                        id INTEGER PRIMARY KEY AUTOINCREMENT,
                        account_id INTEGER NOT NULL,
                        plan TEXT NOT NULL,
                        quota_bytes INTEGER NOT NULL,
                        bytes_used INTEGER NOT NULL DEFAULT 0,
                        bytes_reserved INTEGER NOT NULL DEFAULT 0,
                        started_at INTEGER NOT NULL,
                        expires_at INTEGER NOT NULL,
                        active INTEGER NOT NULL DEFAULT 1
                );`,
		`CREATE INDEX IF NOT EXISTS idx_subs_account_active ON subscriptions(account_id, active);`,
		`CREATE TABLE IF NOT EXISTS tickets(
                        id INTEGER PRIMARY KEY AUTOINCREMENT,
                        account_id INTEGER NOT NULL,
                        type TEXT NOT NULL,
                        status TEXT NOT NULL,
                        plan TEXT NOT NULL DEFAULT '',
                        amount REAL NOT NULL DEFAULT 0,
                        subject TEXT NOT NULL DEFAULT '',
                        notes TEXT NOT NULL DEFAULT '',
                        created_at INTEGER NOT NULL,
                        processed_at INTEGER,
                        processed_by INTEGER NOT NULL DEFAULT 0
                );`,
		// Backstop for the one-open-payment-ticket rule under concurrent
		// dispatchers; the business check still runs first.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_payment
                        ON tickets(account_id) WHERE type='payment' AND status='open';`,
		`CREATE TABLE IF NOT EXISTS files(
                        id INTEGER PRIMARY KEY AUTOINCREMENT,
                        account_id INTEGER NOT NULL,
                        name TEXT NOT NULL,
                        kind TEXT NOT NULL DEFAULT '',
                        size INTEGER NOT NULL,
                        file_id TEXT NOT NULL,
                        slug TEXT UNIQUE,
                        notify INTEGER NOT NULL DEFAULT 0,
                        created_at INTEGER NOT NULL
                );`,
		`CREATE TABLE IF NOT EXISTS redeem_codes(
                        code TEXT PRIMARY KEY,
                        plan TEXT NOT NULL,
                        created_by INTEGER NOT NULL,
                        created_at INTEGER NOT NULL,
                        expires_at INTEGER NOT NULL,
                        used_by INTEGER,
                        used_at INTEGER
                );`,
		`CREATE TABLE IF NOT EXISTS audit_log(
                        id INTEGER PRIMARY KEY AUTOINCREMENT,
                        actor INTEGER NOT NULL,
                        action TEXT NOT NULL,
                        target TEXT NOT NULL DEFAULT '',
                        details TEXT NOT NULL DEFAULT '',
                        created_at INTEGER NOT NULL
                );`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const (
	retryAttempts = 3
	retryBase     = 50 * time.Millisecond
)

// transient reports whether err looks like a lock/timeout condition worth
// retrying. Everything else is terminal.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "timeout")
}

// retry runs fn up to retryAttempts times with exponential backoff on
// transient failures; the exhausted error is marked transient for callers.
func retry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBase
	for i := 0; i < retryAttempts; i++ {
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return core.Transient(ctx.Err())
		}
		delay *= 2
	}
	return core.Transient(err)
}

func (db *DB) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := retry(ctx, func() error {
		var e error
		res, e = db.ExecContext(ctx, query, args...)
		return e
	})
	return res, err
}

// withTx runs fn in a transaction, retrying the whole unit on transient
// failures so invariant-bearing read-modify-writes stay atomic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixPtr(sec sql.NullInt64) *time.Time {
	if !sec.Valid {
		return nil
	}
	t := time.Unix(sec.Int64, 0)
	return &t
}
