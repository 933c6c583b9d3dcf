package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/storagegatebot/models"
)

// Files ties file records to the storage accountant. Admission runs as
// reserve -> transfer -> store; the caller owns the transfer step.
type Files struct {
	files    FileStore
	acct     *Accountant
	registry *Registry
	audit    AuditStore
}

func NewFiles(files FileStore, acct *Accountant, registry *Registry, audit AuditStore) *Files {
	return &Files{files: files, acct: acct, registry: registry, audit: audit}
}

// Reserve admits an upload of size bytes against the owner's quota.
func (f *Files) Reserve(ctx context.Context, accountID, size int64) error {
	return f.acct.Reserve(ctx, accountID, size)
}

// Abort returns a reservation after a failed transfer.
func (f *Files) Abort(ctx context.Context, accountID, size int64) error {
	return f.acct.Abort(ctx, accountID, size)
}

// Store records the file after its transfer is confirmed and commits the
// reserved bytes. A fresh share slug is minted when the record has none.
func (f *Files) Store(ctx context.Context, file *models.File) error {
	if file.FileID == "" || file.Size <= 0 {
		return fmt.Errorf("incomplete file record: %w", ErrInvalidInput)
	}
	if file.Slug == "" {
		file.Slug = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if err := f.files.AddFile(ctx, file); err != nil {
		// The record never landed, so the reservation must not linger.
		if aerr := f.acct.Abort(ctx, file.AccountID, file.Size); aerr != nil {
			return fmt.Errorf("add file: %v, abort reservation: %w", err, aerr)
		}
		return err
	}
	return f.acct.Commit(ctx, file.AccountID, file.Size)
}

// Delete removes a file owned by actor (or any file when actor is admin)
// and symmetrically releases its bytes.
func (f *Files) Delete(ctx context.Context, actor, fileID int64) error {
	file, err := f.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.AccountID != actor {
		if err := f.registry.RequireAdmin(ctx, actor); err != nil {
			return err
		}
		if err := f.audit.Audit(ctx, actor, "file_delete", strconv.FormatInt(fileID, 10), file.Name); err != nil {
			return err
		}
	}
	if err := f.files.DeleteFile(ctx, file.ID); err != nil {
		return err
	}
	return f.acct.Release(ctx, file.AccountID, file.Size)
}

// List returns the account's files.
func (f *Files) List(ctx context.Context, accountID int64) ([]models.File, error) {
	return f.files.ListFiles(ctx, accountID)
}

// Get returns a file if actor owns it or is admin.
func (f *Files) Get(ctx context.Context, actor, fileID int64) (*models.File, error) {
	file, err := f.files.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.AccountID != actor {
		if err := f.registry.RequireAdmin(ctx, actor); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// BySlug resolves a share slug, for the download server.
func (f *Files) BySlug(ctx context.Context, slug string) (*models.File, error) {
	return f.files.GetFileBySlug(ctx, slug)
}

// ToggleNotify flips download notifications for an owned file.
func (f *Files) ToggleNotify(ctx context.Context, actor, fileID int64) (bool, error) {
	file, err := f.files.GetFile(ctx, fileID)
	if err != nil {
		return false, err
	}
	if file.AccountID != actor {
		return false, fmt.Errorf("file %d: %w", fileID, ErrUnauthorized)
	}
	if err := f.files.SetFileNotify(ctx, fileID, !file.Notify); err != nil {
		return false, err
	}
	return !file.Notify, nil
}
