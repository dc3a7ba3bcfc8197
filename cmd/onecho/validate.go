package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ceda-hhs/onecho/internal/layout"
	"github.com/ceda-hhs/onecho/internal/model"
	"github.com/ceda-hhs/onecho/internal/storage"
)

func init() {
	validateCmd := &cobra.Command{
		Use:   "validate [layout-files...]",
		Short: "Validate extracted layouts",
		Long: `Check extracted layouts for overlapping ranges, out-of-range fields and
duplicate names, and optionally cross-check record geometry against a raw
data file.

Examples:
  # Validate every layout in a directory
  onecho validate layouts/*.json

  # Cross-check one layout against its candidate data file
  onecho validate layouts/EV_2023.json --data input/EV2023.asc`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}

	validateCmd.Flags().String("data", "", "raw data file to cross-check record geometry against")
	validateCmd.Flags().Int("sample", layout.DefaultSampleSize, "records sampled for the data cross-check")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dataFile, _ := cmd.Flags().GetString("data")
	sample, _ := cmd.Flags().GetInt("sample")

	files, err := expandArgs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no layout files found")
	}
	if dataFile != "" && len(files) > 1 {
		return fmt.Errorf("--data cross-checks exactly one layout, got %d", len(files))
	}

	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // audit trail
	runID, err := reg.BeginRun(ctx, "validate")
	if err != nil {
		return err
	}

	passed, failed := 0, 0
	for _, path := range files {
		l, err := layout.LoadLayout(path)
		if err != nil {
			slog.Error("failed to load layout", "file", path, "error", err)
			failed++
			_ = reg.RecordFile(ctx, runID, storage.FileResult{
				InputFile: path, Status: storage.FileStatusFailed, Reason: err.Error(),
			})
			continue
		}

		report := layout.Validate(l)
		if dataFile != "" {
			report.Append(layout.ValidateAgainstFile(l, dataFile, sample))
		}

		logReport(path, report)
		if err := reg.RecordReport(ctx, runID, path, report); err != nil {
			slog.Warn("failed to record report", "file", path, "error", err)
		}

		status := storage.FileStatusSuccess
		if report.HasErrors() {
			status = storage.FileStatusFailed
			failed++
		} else {
			passed++
		}
		_ = reg.RecordFile(ctx, runID, storage.FileResult{
			InputFile:  path,
			LayoutName: l.Name,
			Status:     status,
			Records:    int64(len(l.Fields)),
		})

		slog.Info("validated layout",
			"file", path,
			"layout", l.Name,
			"fields", len(l.Fields),
			"record_length", l.RecordLength,
			"errors", report.Count(model.SeverityError),
			"warnings", report.Count(model.SeverityWarning))
	}

	status := storage.RunStatusCompleted
	if failed > 0 {
		status = storage.RunStatusFailed
	}
	finishRun(ctx, reg, runID, status)

	slog.Info("validation complete", "passed", passed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d layouts: %w", failed, len(files), model.ErrLayoutConsistency)
	}
	return nil
}
