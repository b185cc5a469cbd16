package api

import (
	"errors"
	"net/http"

	"github.com/okian/killsync/internal/adapters/mq/queue"
	"github.com/okian/killsync/internal/adapters/repository"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrUnknownTarget = errors.New("unknown backfill target")
)

// statusFor maps domain errors onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrUnknownTarget),
		errors.Is(err, repository.ErrInvalidRange),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrInvalidFilter):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, queue.ErrPending):
		return http.StatusConflict, "already_queued"
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, "backpressure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
