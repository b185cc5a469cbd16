package service

import "errors"

// Sentinel errors returned by the Service.
var (
	// ErrSyncInProgress rejects a job while another ingestion job runs.
	ErrSyncInProgress = errors.New("service: ingestion job already in progress")
	// ErrNotStarted is returned by operations that need Start first.
	ErrNotStarted = errors.New("service: not started")
	// ErrUnknownJob rejects a job kind the service cannot run.
	ErrUnknownJob = errors.New("service: unknown job kind")
)
