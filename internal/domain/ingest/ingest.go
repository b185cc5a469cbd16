// Package ingest walks the corporation feed and stores new killmails, and
// repairs stored killmails whose attackers or victim corporation are missing.
package ingest

import (
	"context"
	"time"

	"github.com/okian/killsync/internal/domain/model"
)

// PageSource returns one 1-based feed page, newest first. An empty page
// means there are no more pages.
type PageSource interface {
	Page(ctx context.Context, corporationID string, page int) (model.FeedPage, error)
}

// DetailSource fetches the full killmail detail.
type DetailSource interface {
	Killmail(ctx context.Context, id int64, hash string) (model.Detail, error)
}

// Normalizer builds store rows from feed data.
type Normalizer interface {
	Normalize(ctx context.Context, entry model.FeedEntry, detail model.Detail, tracked string) (model.Killmail, []model.Attacker, error)
	Attackers(ctx context.Context, killmailID int64, detail model.Detail) ([]model.Attacker, error)
	VictimCorporation(ctx context.Context, detail model.Detail) (int64, error)
}

// Store is the persistence the ingestion jobs need.
type Store interface {
	KillmailExists(ctx context.Context, killmailID int64, hash string) (bool, error)
	InsertKillmail(ctx context.Context, km model.Killmail) (bool, error)
	InsertAttacker(ctx context.Context, a model.Attacker) error
	OldestKillTime(ctx context.Context) (time.Time, bool, error)
	NewestKillTime(ctx context.Context) (time.Time, bool, error)
	KillmailsWithoutAttackers(ctx context.Context) ([]model.KillmailRef, error)
	KillmailsWithoutCorporation(ctx context.Context) ([]model.KillmailRef, error)
	SetVictimCorporation(ctx context.Context, killmailID, corporationID int64) error
	RecordSyncRun(ctx context.Context, run model.SyncRun) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dateOnly truncates t to its UTC calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
