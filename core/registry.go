package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/storagegatebot/models"
)

// Registry tracks identity, approval, ban and admin state. It is the
// authorization gate for every privileged operation in the system.
type Registry struct {
	accounts AccountStore
	audit    AuditStore
	ownerID  int64
	secret   string
	now      func() time.Time
}

func NewRegistry(accounts AccountStore, audit AuditStore, ownerID int64, secret string) *Registry {
	return &Registry{
		accounts: accounts,
		audit:    audit,
		ownerID:  ownerID,
		secret:   secret,
		now:      time.Now,
	}
}

// Register is the self-service sign-up path, gated by the shared
// registration secret. An empty configured secret leaves sign-up open.
// Existing accounts only get their username refreshed.
func (r *Registry) Register(ctx context.Context, id int64, username, secret string) (*models.Account, error) {
	if r.secret != "" && secret != r.secret {
		return nil, fmt.Errorf("register %d: %w", id, ErrUnauthorized)
	}
	return r.accounts.UpsertAccount(ctx, id, username)
}

// Touch upserts the account without the secret gate. Used on every inbound
// update so the registry knows about the sender before any decision. The
// row itself grants nothing: approval is the gate for every privileged
// surface, and /reject hard-deletes rows that never reach it.
func (r *Registry) Touch(ctx context.Context, id int64, username string) (*models.Account, error) {
	return r.accounts.UpsertAccount(ctx, id, username)
}

func (r *Registry) Account(ctx context.Context, id int64) (*models.Account, error) {
	return r.accounts.GetAccount(ctx, id)
}

// IsAdmin reports whether id holds a live admin grant. The configured
// owner is always admin. Expired grants fail closed even before a sweep.
func (r *Registry) IsAdmin(ctx context.Context, id int64) (bool, error) {
	if id == r.ownerID && id != 0 {
		return true, nil
	}
	acc, err := r.accounts.GetAccount(ctx, id)
	if err != nil {
		if IsTransient(err) {
			return false, err
		}
		return false, nil
	}
	return acc.IsAdmin(r.now()), nil
}

// RequireAdmin returns ErrUnauthorized unless actor is an admin.
func (r *Registry) RequireAdmin(ctx context.Context, actor int64) error {
	ok, err := r.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("actor %d: %w", actor, ErrUnauthorized)
	}
	return nil
}

// Approve marks the account approved. Banned accounts must be unbanned
// first; approving them directly would break the banned-never-approved
// invariant silently.
func (r *Registry) Approve(ctx context.Context, actor, id int64) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	acc, err := r.accounts.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acc.Banned {
		return fmt.Errorf("account %d is banned: %w", id, ErrConflict)
	}
	if err := r.accounts.SetAccountFlags(ctx, id, true, false); err != nil {
		return err
	}
	return r.audit.Audit(ctx, actor, "approve", strconv.FormatInt(id, 10), "")
}

// Reject hard-deletes a pending registration. The only legal hard delete.
func (r *Registry) Reject(ctx context.Context, actor, id int64) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	acc, err := r.accounts.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acc.Approved {
		return fmt.Errorf("account %d already approved: %w", id, ErrConflict)
	}
	if err := r.accounts.DeleteAccount(ctx, id); err != nil {
		return err
	}
	return r.audit.Audit(ctx, actor, "reject", strconv.FormatInt(id, 10), "")
}

// Ban forces approved=false alongside the ban flag. Subscription rows are
// left intact so an unban restores service.
func (r *Registry) Ban(ctx context.Context, actor, id int64) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := r.accounts.SetAccountFlags(ctx, id, false, true); err != nil {
		return err
	}
	return r.audit.Audit(ctx, actor, "ban", strconv.FormatInt(id, 10), "")
}

// Unban lifts the ban and restores approval.
func (r *Registry) Unban(ctx context.Context, actor, id int64) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := r.accounts.SetAccountFlags(ctx, id, true, false); err != nil {
		return err
	}
	return r.audit.Audit(ctx, actor, "unban", strconv.FormatInt(id, 10), "")
}

// Promote grants admin, optionally expiring after days (0 = no expiry).
func (r *Registry) Promote(ctx context.Context, actor, id int64, days int) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if days < 0 {
		return fmt.Errorf("negative grant duration: %w", ErrInvalidInput)
	}
	var until *time.Time
	if days > 0 {
		t := r.now().AddDate(0, 0, days)
		until = &t
	}
	if err := r.accounts.SetAdmin(ctx, id, true, until); err != nil {
		return err
	}
	details := "no expiry"
	if until != nil {
		details = "until " + until.Format(time.RFC3339)
	}
	return r.audit.Audit(ctx, actor, "promote", strconv.FormatInt(id, 10), details)
}

// Demote revokes admin. The configured owner cannot be demoted.
func (r *Registry) Demote(ctx context.Context, actor, id int64) error {
	if err := r.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if id == r.ownerID {
		return fmt.Errorf("owner cannot be demoted: %w", ErrConflict)
	}
	if err := r.accounts.SetAdmin(ctx, id, false, nil); err != nil {
		return err
	}
	return r.audit.Audit(ctx, actor, "demote", strconv.FormatInt(id, 10), "")
}

// Recipients lists every known account id, for broadcasts.
func (r *Registry) Recipients(ctx context.Context) ([]int64, error) {
	return r.accounts.ListAccountIDs(ctx)
}
