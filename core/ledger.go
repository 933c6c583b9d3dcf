package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/storagegatebot/models"
)

// Ledger tracks plan, quota and expiry. One active subscription per
// account; the store's activate enforces that transactionally.
type Ledger struct {
	subs     SubscriptionStore
	registry *Registry
	audit    AuditStore
}

func NewLedger(subs SubscriptionStore, registry *Registry, audit AuditStore) *Ledger {
	return &Ledger{subs: subs, registry: registry, audit: audit}
}

// Grant activates a plan for an account directly, bypassing the ticket
// flow. Admin-only; the regular path is ticket completion.
func (l *Ledger) Grant(ctx context.Context, actor, accountID int64, planID string) (*models.Subscription, error) {
	if err := l.registry.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	plan, ok := models.LookupPlan(planID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", planID, ErrInvalidInput)
	}
	sub, err := l.subs.ActivateSubscription(ctx, accountID, plan.ID, plan.QuotaBytes, plan.DurationDays)
	if err != nil {
		return nil, err
	}
	err = l.audit.Audit(ctx, actor, "grant", strconv.FormatInt(accountID, 10), plan.ID)
	return sub, err
}

// Renew extends the active subscription. An expired one restarts from now
// rather than stacking onto the past.
func (l *Ledger) Renew(ctx context.Context, actor, accountID int64, extraDays int) (*models.Subscription, error) {
	if err := l.registry.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if extraDays <= 0 {
		return nil, fmt.Errorf("renew days must be positive: %w", ErrInvalidInput)
	}
	sub, err := l.subs.RenewSubscription(ctx, accountID, extraDays)
	if err != nil {
		return nil, err
	}
	err = l.audit.Audit(ctx, actor, "renew", strconv.FormatInt(accountID, 10), fmt.Sprintf("+%dd", extraDays))
	return sub, err
}

// Check returns the account's active subscription, ErrNotFound if none.
func (l *Ledger) Check(ctx context.Context, accountID int64) (*models.Subscription, error) {
	return l.subs.ActiveSubscription(ctx, accountID)
}

// SweepExpired deactivates subscriptions whose expiry has passed. Runs on
// the background ticker, never on the request path.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	return l.subs.SweepExpiredSubscriptions(ctx, time.Now())
}
