// Package sqlite keeps the mute map in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version. Bump it when adding
// migrations.
const CurrentSchemaVersion = 1

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the persister never issues concurrent saves.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS mutes (
		  community_id TEXT    NOT NULL,
		  member_id    TEXT    NOT NULL,
		  ends_at      INTEGER NOT NULL,
		  PRIMARY KEY (community_id, member_id)
		);
		`
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}
