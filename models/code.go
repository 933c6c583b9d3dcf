package models

import "time"

// RedeemCode is a single-use code that activates a plan when redeemed,
// the same effect as a completed payment ticket via a different trigger.
type RedeemCode struct {
	Code      string
	Plan      string
	CreatedBy int64
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedBy    *int64
	UsedAt    *time.Time
}
