package repository

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS systems (
		system_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		system_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ship_types (
		ship_type_id INTEGER PRIMARY KEY AUTOINCREMENT,
		type_name    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ships (
		ship_id      INTEGER PRIMARY KEY AUTOINCREMENT,
		ship_name    TEXT NOT NULL UNIQUE,
		ship_type_id INTEGER REFERENCES ship_types(ship_type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pilots (
		pilot_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		pilot_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS corporations (
		corporation_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		corporation_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS killmails (
		killmail_id           INTEGER PRIMARY KEY,
		kill_hash             TEXT NOT NULL UNIQUE,
		kill_datetime         TEXT NOT NULL,
		system_id             INTEGER REFERENCES systems(system_id),
		pilot_id              INTEGER REFERENCES pilots(pilot_id),
		ship_id               INTEGER REFERENCES ships(ship_id),
		value                 REAL NOT NULL DEFAULT 0,
		kill_type             TEXT NOT NULL CHECK (kill_type IN ('KILL', 'LOSS')),
		victim_corporation_id INTEGER REFERENCES corporations(corporation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_killmails_datetime ON killmails(kill_datetime)`,
	`CREATE TABLE IF NOT EXISTS killmail_attackers (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		killmail_id             INTEGER NOT NULL REFERENCES killmails(killmail_id),
		attacker_index          INTEGER NOT NULL,
		pilot_id                INTEGER REFERENCES pilots(pilot_id),
		pilot_name              TEXT NOT NULL,
		attacker_corporation_id INTEGER REFERENCES corporations(corporation_id),
		final_blow              BOOLEAN NOT NULL DEFAULT 0,
		damage_done             INTEGER NOT NULL DEFAULT 0,
		UNIQUE (killmail_id, attacker_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attackers_corporation ON killmail_attackers(attacker_corporation_id)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages       INTEGER NOT NULL DEFAULT 0,
		stored      INTEGER NOT NULL DEFAULT 0,
		known       INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT ''
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS systems (
		system_id   BIGSERIAL PRIMARY KEY,
		system_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ship_types (
		ship_type_id BIGSERIAL PRIMARY KEY,
		type_name    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ships (
		ship_id      BIGSERIAL PRIMARY KEY,
		ship_name    TEXT NOT NULL UNIQUE,
		ship_type_id BIGINT REFERENCES ship_types(ship_type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pilots (
		pilot_id   BIGSERIAL PRIMARY KEY,
		pilot_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS corporations (
		corporation_id   BIGSERIAL PRIMARY KEY,
		corporation_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS killmails (
		killmail_id           BIGINT PRIMARY KEY,
		kill_hash             TEXT NOT NULL UNIQUE,
		kill_datetime         TIMESTAMPTZ NOT NULL,
		system_id             BIGINT REFERENCES systems(system_id),
		pilot_id              BIGINT REFERENCES pilots(pilot_id),
		ship_id               BIGINT REFERENCES ships(ship_id),
		value                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		kill_type             TEXT NOT NULL CHECK (kill_type IN ('KILL', 'LOSS')),
		victim_corporation_id BIGINT REFERENCES corporations(corporation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_killmails_datetime ON killmails(kill_datetime)`,
	`CREATE TABLE IF NOT EXISTS killmail_attackers (
		id                      BIGSERIAL PRIMARY KEY,
		killmail_id             BIGINT NOT NULL REFERENCES killmails(killmail_id),
		attacker_index          INTEGER NOT NULL,
		pilot_id                BIGINT REFERENCES pilots(pilot_id),
		pilot_name              TEXT NOT NULL,
		attacker_corporation_id BIGINT REFERENCES corporations(corporation_id),
		final_blow              BOOLEAN NOT NULL DEFAULT FALSE,
		damage_done             BIGINT NOT NULL DEFAULT 0,
		UNIQUE (killmail_id, attacker_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attackers_corporation ON killmail_attackers(attacker_corporation_id)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		pages       INTEGER NOT NULL DEFAULT 0,
		stored      INTEGER NOT NULL DEFAULT 0,
		known       INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT ''
	)`,
}
