package fetch

import "errors"

var (
	// ErrNotFound is returned when the upstream answers 404.
	ErrNotFound = errors.New("fetch: not found")
	// ErrExhausted is returned when every attempt failed.
	ErrExhausted = errors.New("fetch: attempts exhausted")
	// ErrUnexpectedStatus marks a non-success status that will be retried.
	ErrUnexpectedStatus = errors.New("fetch: unexpected status")
)
