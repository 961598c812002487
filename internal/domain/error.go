package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateRefund     = errors.New("refund already issued for this task")
	ErrRuleLimitReached    = errors.New("promotion rule usage limit reached")
	ErrOperationFailed     = errors.New("storage operation failed")
	ErrTxConflict          = errors.New("transaction conflict, retryable")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrCacheUnavailable    = errors.New("cache unavailable")
)
