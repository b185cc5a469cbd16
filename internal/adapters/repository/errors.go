package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("repository: not found")
	ErrUnknownDriver  = errors.New("repository: unknown driver")
	ErrInvalidRange   = errors.New("repository: invalid date range")
	ErrInvalidLimit   = errors.New("repository: invalid limit")
	ErrInvalidFilter  = errors.New("repository: invalid filter")
	ErrNotInitialized = errors.New("repository: store is not open")
)
