package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

func OpenDB(dbPath string) (*sql.DB, error) {
	parentDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN where the
	// driver applies it to every pooled connection. Immediate transactions
	// take the write lock up front; price appends read before they write.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	} else {
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if err == sql.ErrNoRows {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this pantrycost version supports (max: %d); upgrade pantrycost or point db_path at %s elsewhere",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}

	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}

	return nil
}

// Event timestamps are stored as UTC unix nanoseconds so that window
// filters and ordering are plain integer comparisons. seq preserves
// insertion order among events sharing a timestamp.
var v1Statements = []struct {
	name string
	sql  string
}{
	{"schema_version table", `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`},
	{"schema version", "INSERT INTO schema_version (version) VALUES (1)"},
	{"ingredients table", `
		CREATE TABLE IF NOT EXISTS ingredients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			unit TEXT NOT NULL,
			current_price REAL NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		)`},
	{"price_events table", `
		CREATE TABLE IF NOT EXISTS price_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ingredient_id TEXT NOT NULL,
			price REAL NOT NULL,
			occurred_at INTEGER NOT NULL,
			supplier_id TEXT NOT NULL DEFAULT '',
			change_percentage REAL,
			notes TEXT NOT NULL DEFAULT ''
		)`},
	{"usage_events table", `
		CREATE TABLE IF NOT EXISTS usage_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ingredient_id TEXT NOT NULL,
			quantity REAL NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			occurred_at INTEGER NOT NULL,
			usage_type TEXT NOT NULL,
			recipe_id TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		)`},
	{"idx_price_ts", "CREATE INDEX IF NOT EXISTS idx_price_ts ON price_events(occurred_at)"},
	{"idx_price_ingredient_ts", "CREATE INDEX IF NOT EXISTS idx_price_ingredient_ts ON price_events(ingredient_id, occurred_at)"},
	{"idx_usage_ts", "CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_events(occurred_at)"},
	{"idx_usage_ingredient_ts", "CREATE INDEX IF NOT EXISTS idx_usage_ingredient_ts ON usage_events(ingredient_id, occurred_at)"},
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range v1Statements {
		if _, err := tx.Exec(stmt.sql); err != nil {
			return fmt.Errorf("creating %s: %w", stmt.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
