package core

import (
	"context"
	"time"

	"github.com/example/storagegatebot/models"
)

// Repository interfaces, one per entity. All SQL lives behind them; the
// sqlite implementation is in the db package and an in-memory database
// stands in for it in tests. Methods that uphold cross-row invariants
// (single active subscription, one open payment ticket, quota ceiling)
// run as single transactions inside the store because multiple dispatcher
// processes may share it.

type AccountStore interface {
	// UpsertAccount creates the account on first contact or refreshes the
	// username, leaving approval and ban state untouched.
	UpsertAccount(ctx context.Context, id int64, username string) (*models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	SetAccountFlags(ctx context.Context, id int64, approved, banned bool) error
	SetAdmin(ctx context.Context, id int64, admin bool, until *time.Time) error
	DeleteAccount(ctx context.Context, id int64) error
	ListAccountIDs(ctx context.Context) ([]int64, error)
}

type SubscriptionStore interface {
	// ActivateSubscription deactivates any prior active subscription for
	// the account and inserts the new one, in one transaction.
	ActivateSubscription(ctx context.Context, accountID int64, plan string, quota int64, days int) (*models.Subscription, error)
	// RenewSubscription extends the active subscription by extraDays from
	// the later of now and the current expiry.
	RenewSubscription(ctx context.Context, accountID int64, extraDays int) (*models.Subscription, error)
	ActiveSubscription(ctx context.Context, accountID int64) (*models.Subscription, error)
	SweepExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error)

	// ReserveBytes admits size against the active subscription's quota and
	// records the reservation, or reports false without mutating anything.
	ReserveBytes(ctx context.Context, accountID int64, size int64) (bool, error)
	// CommitBytes converts a reservation into used bytes after the
	// transfer has been confirmed.
	CommitBytes(ctx context.Context, accountID int64, size int64) error
	// ReleaseReserved drops a reservation whose transfer failed.
	ReleaseReserved(ctx context.Context, accountID int64, size int64) error
	// ReleaseBytes decrements used bytes on deletion, clamped at zero.
	ReleaseBytes(ctx context.Context, accountID int64, size int64) error
}

type TicketStore interface {
	// OpenTicket inserts the ticket; for payment tickets it refuses with
	// ErrConflict when the account already has one open.
	OpenTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	// CompleteTicket moves an open ticket to completed and, when plan is
	// non-nil, activates that plan's subscription in the same transaction.
	CompleteTicket(ctx context.Context, id, adminID int64, notes string, plan *models.Plan) (*models.Subscription, error)
	FailTicket(ctx context.Context, id, adminID int64, notes string) error
	CloseTicket(ctx context.Context, id, adminID int64) error
	ListTickets(ctx context.Context, status string) ([]models.Ticket, error)
}

type FileStore interface {
	AddFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, id int64) (*models.File, error)
	GetFileBySlug(ctx context.Context, slug string) (*models.File, error)
	ListFiles(ctx context.Context, accountID int64) ([]models.File, error)
	DeleteFile(ctx context.Context, id int64) error
	SetFileNotify(ctx context.Context, id int64, notify bool) error
}

type CodeStore interface {
	InsertCode(ctx context.Context, c *models.RedeemCode) error
	// UseCode marks the code used and activates its plan for the account,
	// in one transaction.
	UseCode(ctx context.Context, code string, accountID int64) (*models.Subscription, error)
}

type AuditStore interface {
	Audit(ctx context.Context, actor int64, action, target, details string) error
}

// Store is the full surface the sqlite database implements.
type Store interface {
	AccountStore
	SubscriptionStore
	TicketStore
	FileStore
	CodeStore
	AuditStore
}
