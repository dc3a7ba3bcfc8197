package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ceda-hhs/onecho/internal/model"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// File result statuses.
const (
	FileStatusSuccess = "success"
	FileStatusFailed  = "failed"
	FileStatusSkipped = "skipped"
)

// Run is one recorded pipeline invocation.
type Run struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	Command    string
	Status     string
	ID         int64
	Files      int
	Errors     int
	Warnings   int
}

// FileResult records the outcome of processing one input file within a run.
type FileResult struct {
	InputFile  string
	LayoutName string
	OutputFile string
	Status     string
	Reason     string
	Records    int64
	Malformed  int
}

// BeginRun records the start of a pipeline invocation and returns its id.
func (r *Registry) BeginRun(ctx context.Context, command string) (int64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (command, status) VALUES (?, ?)`, command, RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// FinishRun marks a run completed or failed.
func (r *Registry) FinishRun(ctx context.Context, runID int64, status string) error {
	if ctx == nil {
		return ErrNilContext
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordFile stores one file outcome for a run.
func (r *Registry) RecordFile(ctx context.Context, runID int64, fr FileResult) error {
	if ctx == nil {
		return ErrNilContext
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_files (run_id, input_file, layout_name, output_file, status, records, malformed, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, fr.InputFile, fr.LayoutName, fr.OutputFile, fr.Status, fr.Records, fr.Malformed, fr.Reason)
	if err != nil {
		return fmt.Errorf("failed to record file result for run %d: %w", runID, err)
	}
	return nil
}

// RecordReport stores a validation report's entries against a run. The
// anonymization salt never passes through here; reports carry only
// severities, field names, and messages.
func (r *Registry) RecordReport(ctx context.Context, runID int64, inputFile string, report model.ValidationReport) error {
	if ctx == nil {
		return ErrNilContext
	}
	if len(report.Entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO report_entries (run_id, input_file, severity, field, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare report insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // statement bound to tx
	for _, e := range report.Entries {
		if _, err := stmt.ExecContext(ctx, runID, inputFile, string(e.Severity), e.Field, e.Message); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record report entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report entries: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs with per-run finding counts.
func (r *Registry) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.command, r.status, r.started_at, r.finished_at,
		       (SELECT COUNT(*) FROM run_files f WHERE f.run_id = r.id),
		       (SELECT COUNT(*) FROM report_entries e WHERE e.run_id = r.id AND e.severity = 'error'),
		       (SELECT COUNT(*) FROM report_entries e WHERE e.run_id = r.id AND e.severity = 'warning')
		FROM runs r
		ORDER BY r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Command, &run.Status, &run.StartedAt, &finished,
			&run.Files, &run.Errors, &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// RunFiles returns the file results recorded for a run.
func (r *Registry) RunFiles(ctx context.Context, runID int64) ([]FileResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT input_file, COALESCE(layout_name, ''), COALESCE(output_file, ''),
		       status, records, malformed, COALESCE(reason, '')
		FROM run_files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var results []FileResult
	for rows.Next() {
		var fr FileResult
		if err := rows.Scan(&fr.InputFile, &fr.LayoutName, &fr.OutputFile,
			&fr.Status, &fr.Records, &fr.Malformed, &fr.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan file result: %w", err)
		}
		results = append(results, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file results: %w", err)
	}
	return results, nil
}
