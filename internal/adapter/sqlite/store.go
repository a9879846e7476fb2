package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/threadfetch/internal/port"
)

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps snapshot replacement serialized
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			source_url TEXT NOT NULL,
			destination_path TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			bytes_downloaded INTEGER NOT NULL DEFAULT 0,
			total_bytes INTEGER NOT NULL DEFAULT -1,
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			resume_token BLOB,
			validators TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER,
			paused_at INTEGER
		)`,

		`CREATE INDEX IF NOT EXISTS idx_downloads_position ON downloads(position)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_source_url ON downloads(source_url)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
