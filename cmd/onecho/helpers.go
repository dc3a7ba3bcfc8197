package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ceda-hhs/onecho/internal/model"
	"github.com/ceda-hhs/onecho/internal/storage"
)

// openRegistry opens the run registry configured under registry.path.
func openRegistry(ctx context.Context) (*storage.Registry, error) {
	return storage.Open(ctx, viper.GetString("registry.path"))
}

// expandArgs resolves glob patterns and direct paths into a file list.
func expandArgs(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			files = append(files, matches...)
		}
	}
	return files, nil
}

// logReport writes every report entry to the structured log at its severity.
func logReport(file string, report model.ValidationReport) {
	for _, e := range report.Entries {
		attrs := []any{"file", file}
		if e.Field != "" {
			attrs = append(attrs, "field", e.Field)
		}
		switch e.Severity {
		case model.SeverityError:
			slog.Error(e.Message, attrs...)
		case model.SeverityWarning:
			slog.Warn(e.Message, attrs...)
		default:
			slog.Info(e.Message, attrs...)
		}
	}
}

// finishRun closes out a run record, logging rather than failing on
// registry write errors: the registry is an audit trail, not a gate.
func finishRun(ctx context.Context, reg *storage.Registry, runID int64, status string) {
	if err := reg.FinishRun(ctx, runID, status); err != nil {
		slog.Warn("failed to finish run record", "run_id", runID, "error", err)
	}
}
