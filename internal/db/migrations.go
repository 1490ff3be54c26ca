package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: tasks, metrics, samples",
		SQL:         migration001SQL,
	},
}

const migration001SQL = `
CREATE TABLE tasks (
    id              TEXT PRIMARY KEY,
    description     TEXT NOT NULL,
    reward          REAL NOT NULL,
    estimated_hours REAL NOT NULL,
    created_at      TEXT NOT NULL,
    deadline        TEXT NOT NULL,
    state           TEXT NOT NULL,
    started_at      TEXT,
    completed_at    TEXT,
    submitted_at    TEXT
);

CREATE TABLE metrics (
    name               TEXT PRIMARY KEY,
    description        TEXT NOT NULL DEFAULT '',
    unit               TEXT NOT NULL DEFAULT '',
    warning_threshold  REAL,
    critical_threshold REAL
);

CREATE TABLE samples (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name TEXT NOT NULL REFERENCES metrics(name),
    timestamp   TEXT NOT NULL,
    value       REAL NOT NULL
);

CREATE INDEX idx_samples_metric_time ON samples(metric_name, timestamp);
CREATE INDEX idx_tasks_state ON tasks(state);
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		log.Printf("db: applied migration %d: %s", migration.Version, migration.Description)
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
