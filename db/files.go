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

const fileCols = "id, account_id, name, kind, size, file_id, slug, notify, created_at"

func scanFile(scan func(dest ...interface{}) error) (*models.File, error) {
	var f models.File
	var notify int
	var createdAt int64
	err := scan(&f.ID, &f.AccountID, &f.Name, &f.Kind, &f.Size, &f.FileID,
		&f.Slug, &notify, &createdAt)
	if err != nil {
		return nil, err
	}
	f.Notify = notify == 1
	f.CreatedAt = time.Unix(createdAt, 0)
	return &f, nil
}

func (db *DB) AddFile(ctx context.Context, f *models.File) error {
	now := time.Now()
	res, err := db.exec(ctx, `INSERT INTO files(account_id, name, kind, size, file_id, slug, notify, created_at)
                VALUES(?,?,?,?,?,?,?,?)`,
		f.AccountID, f.Name, f.Kind, f.Size, f.FileID, f.Slug, boolToInt(f.Notify), now.Unix())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	f.CreatedAt = now
	return nil
}

func (db *DB) GetFile(ctx context.Context, id int64) (*models.File, error) {
	var f *models.File
	err := retry(ctx, func() error {
		row := db.QueryRowContext(ctx, "SELECT "+fileCols+" FROM files WHERE id=?", id)
		var e error
		f, e = scanFile(row.Scan)
		return e
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (db *DB) GetFileBySlug(ctx context.Context, slug string) (*models.File, error) {
	var f *models.File
	err := retry(ctx, func() error {
		row := db.QueryRowContext(ctx, "SELECT "+fileCols+" FROM files WHERE slug=?", slug)
		var e error
		f, e = scanFile(row.Scan)
		return e
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slug %q: %w", slug, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (db *DB) ListFiles(ctx context.Context, accountID int64) ([]models.File, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+fileCols+" FROM files WHERE account_id=? ORDER BY created_at", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []models.File
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (db *DB) DeleteFile(ctx context.Context, id int64) error {
	res, err := db.exec(ctx, "DELETE FROM files WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (db *DB) SetFileNotify(ctx context.Context, id int64, notify bool) error {
	res, err := db.exec(ctx, "UPDATE files SET notify=? WHERE id=?", boolToInt(notify), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, core.ErrNotFound)
	}
	return nil
}
