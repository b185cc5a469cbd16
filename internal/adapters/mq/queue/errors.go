package queue

import "errors"

// Sentinel enqueue errors.
var (
	ErrClosed  = errors.New("queue: closed")
	ErrFull    = errors.New("queue: full")
	ErrPending = errors.New("queue: job of this kind already waiting")
)
