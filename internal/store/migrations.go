package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Runs, events and event sources",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Invalid lines rejected by the reader",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS runs (
    id                  TEXT PRIMARY KEY,
    started_ns          INTEGER NOT NULL,
    finished_ns         INTEGER NOT NULL,
    input_path          TEXT NOT NULL,
    input_digest        TEXT NOT NULL,
    lines               INTEGER NOT NULL,
    records             INTEGER NOT NULL,
    invalid_lines       INTEGER NOT NULL,
    success             INTEGER NOT NULL,
    failed              INTEGER NOT NULL,
    unknown             INTEGER NOT NULL,
    event_count         INTEGER NOT NULL,
    failed_threshold    INTEGER NOT NULL,
    window_minutes      INTEGER NOT NULL,
    business_start      INTEGER NOT NULL,
    business_end        INTEGER NOT NULL,
    timezone            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(input_digest);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns);

CREATE TABLE IF NOT EXISTS events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    ordinal         INTEGER NOT NULL,
    kind            TEXT NOT NULL,
    username        TEXT NOT NULL,
    first_seen_ns   INTEGER NOT NULL,
    last_seen_ns    INTEGER NOT NULL,
    count           INTEGER NOT NULL CHECK (count >= 1),
    description     TEXT NOT NULL,
    UNIQUE (run_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(username, first_seen_ns);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);

CREATE TABLE IF NOT EXISTS event_sources (
    event_id    INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    source      TEXT NOT NULL,
    PRIMARY KEY (event_id, ordinal)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS event_sources;
DROP INDEX IF EXISTS idx_events_kind;
DROP INDEX IF EXISTS idx_events_user;
DROP TABLE IF EXISTS events;
DROP INDEX IF EXISTS idx_runs_started;
DROP INDEX IF EXISTS idx_runs_digest;
DROP TABLE IF EXISTS runs;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS invalid_lines (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    line        INTEGER NOT NULL,
    field       TEXT NOT NULL,
    reason      TEXT NOT NULL,
    PRIMARY KEY (run_id, line)
);
`

const migrationV2Down = `
DROP TABLE IF EXISTS invalid_lines;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UnixNano(), m.Description,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	currentVersion, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("rollback migration %d: %w", currentVersion, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", currentVersion); err != nil {
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

// ValidateSchema checks that all expected tables exist.
func ValidateSchema(ctx context.Context, db *sql.DB) error {
	requiredTables := []string{
		"runs",
		"events",
		"event_sources",
		"invalid_lines",
		"schema_migrations",
	}

	for _, table := range requiredTables {
		var count int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}
