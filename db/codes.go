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

func (db *DB) InsertCode(ctx context.Context, c *models.RedeemCode) error {
	now := time.Now()
	_, err := db.exec(ctx, `INSERT INTO redeem_codes(code, plan, created_by, created_at, expires_at)
                VALUES(?,?,?,?,?)`,
		c.Code, c.Plan, c.CreatedBy, now.Unix(), c.ExpiresAt.Unix())
	if err != nil {
		return err
	}
	c.CreatedAt = now
	return nil
}

// UseCode consumes the code and activates its plan, all in one
// transaction. The guarded update on used_by is the consume step; a code
// raced by two redeemers marks used exactly once.
func (db *DB) UseCode(ctx context.Context, code string, accountID int64) (*models.Subscription, error) {
	var sub *models.Subscription
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var planID string
		var expires int64
		var usedBy sql.NullInt64
		err := tx.QueryRow("SELECT plan, expires_at, used_by FROM redeem_codes WHERE code=?", code).
			Scan(&planID, &expires, &usedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("code %q: %w", code, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if usedBy.Valid {
			return fmt.Errorf("code %q already used: %w", code, core.ErrConflict)
		}
		if time.Now().Unix() > expires {
			return fmt.Errorf("code %q expired: %w", code, core.ErrInvalidInput)
		}
		plan, ok := models.LookupPlan(planID)
		if !ok {
			return fmt.Errorf("code %q references unknown plan %q: %w", code, planID, core.ErrInvalidInput)
		}
		res, err := tx.Exec("UPDATE redeem_codes SET used_by=?, used_at=? WHERE code=? AND used_by IS NULL",
			accountID, time.Now().Unix(), code)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("code %q already used: %w", code, core.ErrConflict)
		}
		sub, err = activateTx(tx, accountID, plan.ID, plan.QuotaBytes, plan.DurationDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
