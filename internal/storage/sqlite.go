// Package storage persists a registry of pipeline runs: every extraction,
// validation, matching, and conversion invocation records what it processed
// and what the validators found, so operators can audit past runs without
// digging through log output.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Sentinel errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrNilContext  = errors.New("context cannot be nil")
)

// Registry stores run history in a local SQLite database.
type Registry struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the run registry at dbPath and applies pending
// schema migrations.
func Open(ctx context.Context, dbPath string) (*Registry, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	r := &Registry{db: db, dbPath: dbPath}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close registry database: %w", err)
	}
	return nil
}
