package db

import (
	"context"
	"time"
)

// Audit appends one row to the administrative audit log.
func (db *DB) Audit(ctx context.Context, actor int64, action, target, details string) error {
	_, err := db.exec(ctx, `INSERT INTO audit_log(actor, action, target, details, created_at)
                VALUES(?,?,?,?,?)`,
		actor, action, target, details, time.Now().Unix())
	return err
}
