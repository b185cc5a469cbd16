package model

import "time"

// JobKind names an ingestion job.
type JobKind string

// Job kinds.
const (
	JobSync                 JobKind = "sync"
	JobBackfillAttackers    JobKind = "backfill_attackers"
	JobBackfillCorporations JobKind = "backfill_corporations"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobSync, JobBackfillAttackers, JobBackfillCorporations:
		return true
	}
	return false
}

// Job is a queued request to run one ingestion job.
type Job struct {
	ID          string
	Kind        JobKind
	RequestedAt time.Time
	// MaxPages overrides the configured page cap for a sync job when > 0.
	MaxPages int
}
