package fakeapi

import "time"

// Config controls the generated feed and the server behavior.
type Config struct {
	// CorporationID is the tracked corporation the feed belongs to.
	CorporationID int64
	// Killmails is the feed length.
	Killmails int
	// PageSize is the number of entries per aggregator page.
	PageSize int
	// Newest is the kill time of the first entry; each following entry is
	// Spacing older.
	Newest  time.Time
	Spacing time.Duration
	// LossEvery makes every Nth killmail a loss of the tracked corporation.
	LossEvery int
	Seed      uint64

	// RateLimitEvery answers every Nth request with 429; 0 disables.
	RateLimitEvery int
	// RetryAfter is the Retry-After header value in seconds.
	RetryAfter int
}

// DefaultConfig returns a small feed that spans the default cutoff date.
func DefaultConfig() Config {
	return Config{
		CorporationID: 98730717,
		Killmails:     120,
		PageSize:      50,
		Newest:        time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC),
		Spacing:       20 * time.Hour,
		LossEvery:     4,
		Seed:          1,
		RetryAfter:    1,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.CorporationID == 0 {
		c.CorporationID = d.CorporationID
	}
	if c.Killmails < 0 {
		c.Killmails = 0
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.Newest.IsZero() {
		c.Newest = d.Newest
	}
	if c.Spacing <= 0 {
		c.Spacing = d.Spacing
	}
	if c.LossEvery < 0 {
		c.LossEvery = 0
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = d.RetryAfter
	}
}
