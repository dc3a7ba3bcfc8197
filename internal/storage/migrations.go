package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					command TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'running',
					started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					finished_at DATETIME
				)`,
				`CREATE TABLE IF NOT EXISTS run_files (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					input_file TEXT NOT NULL,
					layout_name TEXT,
					output_file TEXT,
					status TEXT NOT NULL,
					records INTEGER DEFAULT 0,
					malformed INTEGER DEFAULT 0,
					reason TEXT,
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_run_files_run ON run_files(run_id)`,
				`CREATE TABLE IF NOT EXISTS report_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					input_file TEXT,
					severity TEXT NOT NULL,
					field TEXT,
					message TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_report_entries_run ON report_entries(run_id)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return fmt.Errorf("failed to execute: %s: %w", q, err)
				}
			}
			return nil
		},
	},
}

// migrate applies pending migrations in version order, tracking the schema
// version in PRAGMA user_version the way the database tooling expects.
func (r *Registry) migrate(ctx context.Context) error {
	var currentVersion int
	if err := r.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := r.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("applied registry migration",
			"version", migration.Version,
			"description", migration.Description)
	}
	return nil
}
