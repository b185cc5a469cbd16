package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	db  *sql.DB
	d   dialect
	log logger.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, applies connection pragmas and creates the
// schema. driver is "sqlite" or "pgx".
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	cfg := defaultOpenConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("repository: empty dsn for %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}
	if d.textTime {
		// One connection: an in-memory database exists per connection and
		// SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
		if err := applyPragmas(ctx, db, cfg.busyTimeout); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}

	s := &SQLStore{db: db, d: d, log: cfg.log}
	if cfg.migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s.log.Info(ctx, "store opened", logger.String("driver", driver))
	return s, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, busyTimeout int) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("repository: %s: %w", p, err)
		}
	}
	return nil
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: migrate: %w", err)
		}
	}
	return nil
}

// DB exposes the handle for the report queries.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Driver returns the dialect name.
func (s *SQLStore) Driver() string { return s.d.name }

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	return s.db.PingContext(ctx)
}

// observe records latency and failures of one store operation.
func (s *SQLStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStoreError(op)
		metrics.RecordErrorByComponent("repository", op)
	}
}

func (s *SQLStore) upsertName(ctx context.Context, op, query, name string, args ...any) (id int64, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.Unknown
	}
	if err = s.db.QueryRowContext(ctx, s.d.rebind(query), append([]any{name}, args...)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("repository: %s %q: %w", op, name, err)
	}
	return id, nil
}

// UpsertSystem returns the id of the named solar system.
func (s *SQLStore) UpsertSystem(ctx context.Context, name string) (int64, error) {
	return s.upsertName(ctx, "upsert_system", `INSERT INTO systems (system_name) VALUES (?)
		ON CONFLICT (system_name) DO UPDATE SET system_name = excluded.system_name
		RETURNING system_id`, name)
}

// UpsertShipType returns the id of the named ship type (group).
func (s *SQLStore) UpsertShipType(ctx context.Context, name string) (int64, error) {
	return s.upsertName(ctx, "upsert_ship_type", `INSERT INTO ship_types (type_name) VALUES (?)
		ON CONFLICT (type_name) DO UPDATE SET type_name = excluded.type_name
		RETURNING ship_type_id`, name)
}

// UpsertShip returns the id of the named hull and sets its type.
func (s *SQLStore) UpsertShip(ctx context.Context, name string, shipTypeID int64) (int64, error) {
	return s.upsertName(ctx, "upsert_ship", `INSERT INTO ships (ship_name, ship_type_id) VALUES (?, ?)
		ON CONFLICT (ship_name) DO UPDATE SET ship_type_id = excluded.ship_type_id
		RETURNING ship_id`, name, nullID(shipTypeID))
}

// UpsertPilot returns the id of the named character.
func (s *SQLStore) UpsertPilot(ctx context.Context, name string) (int64, error) {
	return s.upsertName(ctx, "upsert_pilot", `INSERT INTO pilots (pilot_name) VALUES (?)
		ON CONFLICT (pilot_name) DO UPDATE SET pilot_name = excluded.pilot_name
		RETURNING pilot_id`, name)
}

// UpsertCorporation returns the id of the named corporation.
func (s *SQLStore) UpsertCorporation(ctx context.Context, name string) (int64, error) {
	return s.upsertName(ctx, "upsert_corporation", `INSERT INTO corporations (corporation_name) VALUES (?)
		ON CONFLICT (corporation_name) DO UPDATE SET corporation_name = excluded.corporation_name
		RETURNING corporation_id`, name)
}

// KillmailExists reports whether a killmail with this id or hash is stored.
func (s *SQLStore) KillmailExists(ctx context.Context, killmailID int64, hash string) (found bool, err error) {
	defer func(start time.Time) { s.observe("killmail_exists", start, err) }(time.Now())
	var one int
	err = s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT 1 FROM killmails WHERE killmail_id = ? OR kill_hash = ? LIMIT 1`),
		killmailID, hash).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("repository: killmail exists %d: %w", killmailID, err)
	}
	return true, nil
}

// InsertKillmail stores km unless its id or hash is already present.
func (s *SQLStore) InsertKillmail(ctx context.Context, km model.Killmail) (inserted bool, err error) {
	defer func(start time.Time) { s.observe("insert_killmail", start, err) }(time.Now())
	var id int64
	err = s.db.QueryRowContext(ctx, s.d.rebind(`INSERT INTO killmails
		(killmail_id, kill_hash, kill_datetime, system_id, pilot_id, ship_id, value, kill_type, victim_corporation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING killmail_id`),
		km.KillmailID, km.Hash, s.d.timeArg(km.Time),
		nullID(km.SystemID), nullID(km.PilotID), nullID(km.ShipID),
		km.Value, string(km.Kind), nullID(km.VictimCorporationID),
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("repository: insert killmail %d: %w", km.KillmailID, err)
	}
	return true, nil
}

// InsertAttacker stores one attacker row; (killmail, index) is written once.
func (s *SQLStore) InsertAttacker(ctx context.Context, a model.Attacker) (err error) {
	defer func(start time.Time) { s.observe("insert_attacker", start, err) }(time.Now())
	name := strings.TrimSpace(a.PilotName)
	if name == "" {
		name = model.Unknown
	}
	_, err = s.db.ExecContext(ctx, s.d.rebind(`INSERT INTO killmail_attackers
		(killmail_id, attacker_index, pilot_id, pilot_name, attacker_corporation_id, final_blow, damage_done)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (killmail_id, attacker_index) DO NOTHING`),
		a.KillmailID, a.Index, nullID(a.PilotID), name, nullID(a.CorporationID), a.FinalBlow, a.DamageDone)
	if err != nil {
		return fmt.Errorf("repository: insert attacker %d/%d: %w", a.KillmailID, a.Index, err)
	}
	return nil
}

// OldestKillTime returns the earliest stored killmail time.
func (s *SQLStore) OldestKillTime(ctx context.Context) (time.Time, bool, error) {
	return s.boundaryTime(ctx, "oldest_kill_time", `SELECT MIN(kill_datetime) FROM killmails`)
}

// NewestKillTime returns the latest stored killmail time.
func (s *SQLStore) NewestKillTime(ctx context.Context) (time.Time, bool, error) {
	return s.boundaryTime(ctx, "newest_kill_time", `SELECT MAX(kill_datetime) FROM killmails`)
}

func (s *SQLStore) boundaryTime(ctx context.Context, op, query string) (t time.Time, ok bool, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	var raw any
	if err = s.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return time.Time{}, false, fmt.Errorf("repository: %s: %w", op, err)
	}
	t, ok, err = scanTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: %s: %w", op, err)
	}
	return t, ok, nil
}

// KillmailsWithoutAttackers lists killmails that have no attacker rows.
func (s *SQLStore) KillmailsWithoutAttackers(ctx context.Context) ([]model.KillmailRef, error) {
	return s.refs(ctx, "killmails_without_attackers", `SELECT k.killmail_id, k.kill_hash FROM killmails k
		WHERE NOT EXISTS (SELECT 1 FROM killmail_attackers a WHERE a.killmail_id = k.killmail_id)
		ORDER BY k.killmail_id`)
}

// KillmailsWithoutCorporation lists killmails with no victim corporation.
func (s *SQLStore) KillmailsWithoutCorporation(ctx context.Context) ([]model.KillmailRef, error) {
	return s.refs(ctx, "killmails_without_corporation", `SELECT killmail_id, kill_hash FROM killmails
		WHERE victim_corporation_id IS NULL
		ORDER BY killmail_id`)
}

func (s *SQLStore) refs(ctx context.Context, op, query string) (out []model.KillmailRef, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: %s: %w", op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r model.KillmailRef
		if err = rows.Scan(&r.KillmailID, &r.Hash); err != nil {
			return nil, fmt.Errorf("repository: %s: %w", op, err)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: %s: %w", op, err)
	}
	return out, nil
}

// SetVictimCorporation fills victim_corporation_id when it is NULL.
func (s *SQLStore) SetVictimCorporation(ctx context.Context, killmailID, corporationID int64) (err error) {
	defer func(start time.Time) { s.observe("set_victim_corporation", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, s.d.rebind(`UPDATE killmails SET victim_corporation_id = ?
		WHERE killmail_id = ? AND victim_corporation_id IS NULL`), corporationID, killmailID)
	if err != nil {
		return fmt.Errorf("repository: set victim corporation %d: %w", killmailID, err)
	}
	return nil
}

// RecordSyncRun stores the audit row of a finished run.
func (s *SQLStore) RecordSyncRun(ctx context.Context, run model.SyncRun) (err error) {
	defer func(start time.Time) { s.observe("record_sync_run", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, s.d.rebind(`INSERT INTO sync_runs
		(run_id, mode, started_at, finished_at, pages, stored, known, skipped, stop_reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING`),
		run.ID, run.Mode, s.d.timeArg(run.StartedAt), s.d.timeArg(run.FinishedAt),
		run.Pages, run.Stored, run.Known, run.Skipped, run.StopReason, run.Error)
	if err != nil {
		return fmt.Errorf("repository: record sync run %s: %w", run.ID, err)
	}
	return nil
}

// LastSyncRun returns the most recently started run.
func (s *SQLStore) LastSyncRun(ctx context.Context) (run model.SyncRun, err error) {
	defer func(start time.Time) { s.observe("last_sync_run", start, err) }(time.Now())
	var started, finished any
	err = s.db.QueryRowContext(ctx, `SELECT run_id, mode, started_at, finished_at, pages, stored, known, skipped, stop_reason, error
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &run.Mode, &started, &finished, &run.Pages, &run.Stored, &run.Known, &run.Skipped, &run.StopReason, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncRun{}, ErrNotFound
	}
	if err != nil {
		return model.SyncRun{}, fmt.Errorf("repository: last sync run: %w", err)
	}
	if run.StartedAt, _, err = scanTime(started); err != nil {
		return model.SyncRun{}, err
	}
	if run.FinishedAt, _, err = scanTime(finished); err != nil {
		return model.SyncRun{}, err
	}
	return run, nil
}
