package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Order lifecycle
	ErrFetch           = errors.New("order store read failed")
	ErrWrite           = errors.New("order status write failed")
	ErrTerminalState   = errors.New("order is already completed or cancelled")
	ErrNotTracked      = errors.New("order is not tracked by this view")
	ErrInvalidStatus   = errors.New("order status does not allow this transition")
	ErrLockNotAcquired = errors.New("lock held by another holder")

	// Access and money
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrViewClosed          = errors.New("view is closed")
)
