package models

import "time"

// File is a stored file record. FileID is the chat transport's own file
// handle; the bytes themselves stay with the transport.
type File struct {
	ID        int64
	AccountID int64
	Name      string
	Kind      string
	Size      int64
	FileID    string
	Slug      string
	Notify    bool
	CreatedAt time.Time
}
