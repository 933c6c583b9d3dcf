package models

import "time"

// AuditEntry records one privileged mutation for traceability.
type AuditEntry struct {
	ID        int64
	Actor     int64
	Action    string
	Target    string
	Details   string
	CreatedAt time.Time
}
