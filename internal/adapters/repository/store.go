// Package repository persists normalized killmails in a relational database
// and answers the aggregate report queries over them.
package repository

import (
	"context"
	"time"

	"github.com/okian/killsync/internal/domain/model"
)

// Store provides read/write access to the killmail tables.
//
// Reference upserts return the same id for the same name. Killmail and
// attacker rows are write-once; duplicate inserts are silent no-ops.
type Store interface {
	UpsertSystem(ctx context.Context, name string) (int64, error)
	UpsertShipType(ctx context.Context, name string) (int64, error)
	// UpsertShip records the hull and points it at its current ship type.
	UpsertShip(ctx context.Context, name string, shipTypeID int64) (int64, error)
	UpsertPilot(ctx context.Context, name string) (int64, error)
	UpsertCorporation(ctx context.Context, name string) (int64, error)

	// KillmailExists matches on killmail id OR hash.
	KillmailExists(ctx context.Context, killmailID int64, hash string) (bool, error)
	// InsertKillmail reports false when a row with the same id or hash exists.
	InsertKillmail(ctx context.Context, km model.Killmail) (bool, error)
	InsertAttacker(ctx context.Context, a model.Attacker) error

	// OldestKillTime and NewestKillTime report ok=false on an empty store.
	OldestKillTime(ctx context.Context) (time.Time, bool, error)
	NewestKillTime(ctx context.Context) (time.Time, bool, error)

	KillmailsWithoutAttackers(ctx context.Context) ([]model.KillmailRef, error)
	KillmailsWithoutCorporation(ctx context.Context) ([]model.KillmailRef, error)
	// SetVictimCorporation only fills a NULL victim corporation.
	SetVictimCorporation(ctx context.Context, killmailID, corporationID int64) error

	RecordSyncRun(ctx context.Context, run model.SyncRun) error
	// LastSyncRun returns ErrNotFound when no run was recorded.
	LastSyncRun(ctx context.Context) (model.SyncRun, error)

	Ping(ctx context.Context) error
	Close() error
}
