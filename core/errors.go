package core

import "errors"

// Business outcomes are values, not panics. Handlers match on these with
// errors.Is and map each kind to a user-facing reply.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidInput  = errors.New("invalid input")
)

// TransientError marks a store failure that is safe to retry. The store
// retries these itself with bounded backoff; by the time one reaches a
// caller the retries are exhausted.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient store failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether any error in the chain is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
