package db

import (
	"database/sql"
	"fmt"

	"eve-dealfinder/internal/logger"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS kv_store (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS discovery_runs (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp    TEXT NOT NULL,
				character_id INTEGER NOT NULL,
				region_id    INTEGER NOT NULL,
				location_id  INTEGER NOT NULL,
				wallet       REAL NOT NULL,
				count        INTEGER NOT NULL,
				top_profit   REAL NOT NULL,
				total_profit REAL NOT NULL,
				duration_ms  INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_discovery_runs_ts ON discovery_runs(timestamp);

			CREATE TABLE IF NOT EXISTS deal_results (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id     INTEGER NOT NULL REFERENCES discovery_runs(id),
				rank       INTEGER NOT NULL,
				type_id    INTEGER NOT NULL,
				type_name  TEXT NOT NULL,
				volume     REAL NOT NULL,
				buy_price  REAL NOT NULL,
				sell_price REAL NOT NULL,
				fees       REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_deal_results_run ON deal_results(run_id);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1")
	}

	if version < 2 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS auth_session (
				character_id   INTEGER PRIMARY KEY,
				character_name TEXT NOT NULL,
				access_token   TEXT NOT NULL,
				expires_at     INTEGER NOT NULL,
				is_active      INTEGER NOT NULL DEFAULT 0
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		logger.Info("DB", "Applied migration v2")
	}

	return nil
}

// SqlDB returns the underlying *sql.DB for packages that manage their own
// tables (auth sessions).
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
