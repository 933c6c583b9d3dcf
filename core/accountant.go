package core

import (
	"context"
	"fmt"
)

// Accountant keeps bytes-used honest against the active subscription's
// quota. Reserve and commit are split because the transfer to the chat
// transport sits between them and can fail; committing only after the
// transfer is confirmed keeps retried uploads from double-counting.
type Accountant struct {
	subs SubscriptionStore
}

func NewAccountant(subs SubscriptionStore) *Accountant {
	return &Accountant{subs: subs}
}

// Reserve admits size against the quota, recording the reservation.
// Refusal mutates nothing. No active subscription counts as a refusal.
func (a *Accountant) Reserve(ctx context.Context, accountID, size int64) error {
	if size <= 0 {
		return fmt.Errorf("reserve size %d: %w", size, ErrInvalidInput)
	}
	ok, err := a.subs.ReserveBytes(ctx, accountID, size)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reserve %d bytes for account %d: %w", size, accountID, ErrQuotaExceeded)
	}
	return nil
}

// Commit converts a reservation into used bytes. Call only after the
// transfer succeeded.
func (a *Accountant) Commit(ctx context.Context, accountID, size int64) error {
	if size <= 0 {
		return fmt.Errorf("commit size %d: %w", size, ErrInvalidInput)
	}
	return a.subs.CommitBytes(ctx, accountID, size)
}

// Abort drops a reservation whose transfer failed.
func (a *Accountant) Abort(ctx context.Context, accountID, size int64) error {
	if size <= 0 {
		return fmt.Errorf("abort size %d: %w", size, ErrInvalidInput)
	}
	return a.subs.ReleaseReserved(ctx, accountID, size)
}

// Release returns bytes on file deletion. Clamped at zero so duplicate
// releases can never drive the counter negative.
func (a *Accountant) Release(ctx context.Context, accountID, size int64) error {
	if size <= 0 {
		return fmt.Errorf("release size %d: %w", size, ErrInvalidInput)
	}
	return a.subs.ReleaseBytes(ctx, accountID, size)
}
