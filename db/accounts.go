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

const accountCols = "id, username, approved, banned, admin, admin_until, created_at"

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	var approved, banned, admin int
	var adminUntil sql.NullInt64
	var createdAt int64
	err := row.Scan(&a.ID, &a.Username, &approved, &banned, &admin, &adminUntil, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Approved = approved == 1
	a.Banned = banned == 1
	a.Admin = admin == 1
	a.AdminUntil = unixPtr(adminUntil)
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// UpsertAccount creates the account on first contact, otherwise refreshes
// the username only. Approval, ban and admin state stay as they are.
func (db *DB) UpsertAccount(ctx context.Context, id int64, username string) (*models.Account, error) {
	_, err := db.exec(ctx, `INSERT INTO accounts(id, username, created_at) VALUES(?,?,?)
                ON CONFLICT(id) DO UPDATE SET username=excluded.username`,
		id, username, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert account %d: %w", id, err)
	}
	return db.GetAccount(ctx, id)
}

func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var acc *models.Account
	err := retry(ctx, func() error {
		var e error
		acc, e = scanAccount(db.QueryRowContext(ctx,
			"SELECT "+accountCols+" FROM accounts WHERE id=?", id))
		return e
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (db *DB) SetAccountFlags(ctx context.Context, id int64, approved, banned bool) error {
	res, err := db.exec(ctx, "UPDATE accounts SET approved=?, banned=? WHERE id=?",
		boolToInt(approved), boolToInt(banned), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (db *DB) SetAdmin(ctx context.Context, id int64, admin bool, until *time.Time) error {
	var untilSec interface{}
	if until != nil {
		untilSec = until.Unix()
	}
	res, err := db.exec(ctx, "UPDATE accounts SET admin=?, admin_until=? WHERE id=?",
		boolToInt(admin), untilSec, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := db.exec(ctx, "DELETE FROM accounts WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (db *DB) ListAccountIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
