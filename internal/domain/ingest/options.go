package ingest

import (
	"time"

	"github.com/okian/killsync/pkg/logger"
)

// PaginatorOption configures a Paginator.
type PaginatorOption func(*Paginator)

// WithCutoff sets the date historical runs stop at.
func WithCutoff(t time.Time) PaginatorOption {
	return func(p *Paginator) { p.cutoff = t }
}

// WithMaxPages caps the pages read per run. Zero means no cap.
func WithMaxPages(n int) PaginatorOption {
	return func(p *Paginator) {
		if n >= 0 {
			p.maxPages = n
		}
	}
}

// WithEventDelay sets the pause after each processed event.
func WithEventDelay(d time.Duration) PaginatorOption {
	return func(p *Paginator) { p.eventDelay = d }
}

// WithPageDelay sets the pause between pages. The pause grows by
// (page mod 5) * jitter.
func WithPageDelay(d, jitter time.Duration) PaginatorOption {
	return func(p *Paginator) {
		p.pageDelay = d
		p.pageJitter = jitter
	}
}

// WithKnownStop sets how many consecutive known events end an incremental run.
func WithKnownStop(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.knownStop = n
		}
	}
}

// WithSleeper replaces the pacing sleep.
func WithSleeper(s Sleeper) PaginatorOption {
	return func(p *Paginator) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PaginatorOption {
	return func(p *Paginator) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRunID replaces the run id generator.
func WithRunID(gen func() string) PaginatorOption {
	return func(p *Paginator) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithLogger sets the paginator logger.
func WithLogger(l logger.Logger) PaginatorOption {
	return func(p *Paginator) {
		if l != nil {
			p.log = l
		}
	}
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

// WithBackfillDelay sets the pause between repaired killmails.
func WithBackfillDelay(d time.Duration) BackfillOption {
	return func(b *Backfiller) { b.delay = d }
}

// WithBackfillSleeper replaces the pacing sleep.
func WithBackfillSleeper(s Sleeper) BackfillOption {
	return func(b *Backfiller) {
		if s != nil {
			b.sleep = s
		}
	}
}

// WithBackfillLogger sets the backfiller logger.
func WithBackfillLogger(l logger.Logger) BackfillOption {
	return func(b *Backfiller) {
		if l != nil {
			b.log = l
		}
	}
}
