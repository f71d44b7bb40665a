package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	// ErrTransientBus is logged and swallowed; a missed notification never
	// fails a request whose write already committed.
	ErrTransientBus = errors.New("pub/sub unavailable")
	// ErrLockTimeout is retryable by the caller. Nothing retries it server-side.
	ErrLockTimeout = errors.New("lock wait timeout")
	ErrUnavailable = errors.New("unavailable")
)
