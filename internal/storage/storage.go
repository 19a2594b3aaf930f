// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage keeps verification history and local settings.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "depositaddr.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Settings table
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);

	-- One row per verification run
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		chain TEXT NOT NULL,
		to_address TEXT NOT NULL,
		ok INTEGER NOT NULL DEFAULT 0,
		address_count INTEGER NOT NULL DEFAULT 0,
		checked_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_verifications_to ON verifications(to_address);
	CREATE INDEX IF NOT EXISTS idx_verifications_checked ON verifications(checked_at);

	-- One row per deposit address checked in a run, in API order
	CREATE TABLE IF NOT EXISTS verification_results (
		verification_id TEXT NOT NULL,
		position INTEGER NOT NULL,

		claimed TEXT NOT NULL,
		computed TEXT NOT NULL,

		-- Derivation inputs
		referral_id TEXT,
		nonce INTEGER NOT NULL DEFAULT 0,
		aux_version INTEGER NOT NULL DEFAULT 0,
		token_address TEXT,
		derived_to TEXT,

		matched INTEGER NOT NULL DEFAULT 0,

		PRIMARY KEY (verification_id, position),
		FOREIGN KEY (verification_id) REFERENCES verifications(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_claimed ON verification_results(claimed);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
