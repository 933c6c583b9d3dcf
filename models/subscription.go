package models

import "time"

// Subscription is a time-boxed storage quota grant. At most one per account
// is active at a time; the store enforces that on activation.
type Subscription struct {
	ID            int64
	AccountID     int64
	Plan          string
	QuotaBytes    int64
	BytesUsed     int64
	BytesReserved int64
	StartedAt     time.Time
	ExpiresAt     time.Time
	Active        bool
}

// Expired reports whether the subscription's expiry has passed.
func (s *Subscription) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// FreeBytes returns the remaining admissible capacity, counting
// in-flight reservations against the quota.
func (s *Subscription) FreeBytes() int64 {
	free := s.QuotaBytes - s.BytesUsed - s.BytesReserved
	if free < 0 {
		return 0
	}
	return free
}
