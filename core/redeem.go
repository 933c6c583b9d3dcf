package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storagegatebot/models"
)

// Codes handles single-use redeem codes, the shortcut that grants a
// subscription without a payment ticket. Same ledger effect, different
// trigger.
type Codes struct {
	codes    CodeStore
	registry *Registry
	audit    AuditStore
	now      func() time.Time
}

func NewCodes(codes CodeStore, registry *Registry, audit AuditStore) *Codes {
	return &Codes{codes: codes, registry: registry, audit: audit, now: time.Now}
}

// Mint creates a code for a plan, valid for ttlDays. Admin-only.
func (c *Codes) Mint(ctx context.Context, actor int64, planID string, ttlDays int) (*models.RedeemCode, error) {
	if err := c.registry.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	plan, ok := models.LookupPlan(planID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", planID, ErrInvalidInput)
	}
	if ttlDays <= 0 {
		return nil, fmt.Errorf("code ttl must be positive: %w", ErrInvalidInput)
	}
	code := &models.RedeemCode{
		Code:      strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		Plan:      plan.ID,
		CreatedBy: actor,
		ExpiresAt: c.now().AddDate(0, 0, ttlDays),
	}
	if err := c.codes.InsertCode(ctx, code); err != nil {
		return nil, err
	}
	if err := c.audit.Audit(ctx, actor, "code_mint", code.Code, plan.ID); err != nil {
		return nil, err
	}
	return code, nil
}

// Redeem consumes the code and activates its plan for the account.
func (c *Codes) Redeem(ctx context.Context, accountID int64, code string) (*models.Subscription, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("empty code: %w", ErrInvalidInput)
	}
	// Plan is resolved inside the store against the stored code row so the
	// use-and-activate pair stays in one transaction.
	return c.codes.UseCode(ctx, code, accountID)
}
