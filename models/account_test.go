package models

import (
	"testing"
	"time"
)

func TestAccountIsAdmin(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		acc  Account
		want bool
	}{
		{"not admin", Account{}, false},
		{"admin no expiry", Account{Admin: true}, true},
		{"admin live grant", Account{Admin: true, AdminUntil: &future}, true},
		{"admin expired grant", Account{Admin: true, AdminUntil: &past}, false},
	}
	for _, tc := range cases {
		if got := tc.acc.IsAdmin(now); got != tc.want {
			t.Errorf("%s: IsAdmin = %v, want %v", tc.name, got, tc.want)
		}
	}
}
