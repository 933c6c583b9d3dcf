package models

import "time"

// Account is a registered chat identity. ID is the platform user id.
type Account struct {
	ID         int64
	Username   string
	Approved   bool
	Banned     bool
	Admin      bool
	AdminUntil *time.Time // nil means the admin grant does not expire
	CreatedAt  time.Time
}

// IsAdmin reports whether the account holds a non-expired admin grant.
func (a *Account) IsAdmin(now time.Time) bool {
	if !a.Admin {
		return false
	}
	if a.AdminUntil != nil && now.After(*a.AdminUntil) {
		return false
	}
	return true
}
