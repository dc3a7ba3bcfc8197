package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ceda-hhs/onecho/internal/anonymize"
	"github.com/ceda-hhs/onecho/internal/convert"
	"github.com/ceda-hhs/onecho/internal/match"
	"github.com/ceda-hhs/onecho/internal/model"
	"github.com/ceda-hhs/onecho/internal/storage"
)

func init() {
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert fixed-width data files to delimited output",
		Long: `Run the full pipeline: match data files to layouts, decode each file in
parallel into a delimited file, anonymize sensitive columns, and verify
the output against the source afterwards.

The anonymization salt is never written to disk. Provide it via the
ONECHO_ANONYMIZE_SALT environment variable or the anonymize.salt config
key.`,
		RunE: runConvert,
	}

	convertCmd.Flags().String("layouts", "layouts", "directory of extracted layout JSON files")
	convertCmd.Flags().String("input", "input", "directory of raw data files")
	convertCmd.Flags().StringP("output", "o", "output", "directory for converted files")
	convertCmd.Flags().String("encoding", "", "source character encoding (default from config)")
	convertCmd.Flags().String("case-style", "", "column name style: original, snake_case, camelCase, PascalCase")
	convertCmd.Flags().Int("workers", 0, "decode worker count (default: number of CPUs)")
	convertCmd.Flags().StringSlice("null-markers", nil, "values treated as empty after trimming")
	convertCmd.Flags().Int("spot-checks", 0, "rows to spot-check per file after decoding")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	layoutDir, _ := cmd.Flags().GetString("layouts")
	inputDir, _ := cmd.Flags().GetString("input")
	outputDir, _ := cmd.Flags().GetString("output")
	spotChecks, _ := cmd.Flags().GetInt("spot-checks")

	anon, err := buildAnonymizer()
	if err != nil {
		return err
	}

	opts, err := decodeOptions(cmd)
	if err != nil {
		return err
	}

	result, err := pairFiles(layoutDir, inputDir)
	if err != nil {
		return err
	}
	if len(result.Jobs) == 0 {
		return fmt.Errorf("no data file in %s matched a layout from %s: %w", inputDir, layoutDir, model.ErrNoMatch)
	}
	for _, u := range result.UnmatchedFiles {
		slog.Warn("skipping unmatched data file", "file", u.Name, "reason", u.Reason)
	}
	for _, u := range result.UnmatchedLayouts {
		slog.Warn("layout has no data file", "layout", u.Name, "reason", u.Reason)
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // audit trail
	runID, err := reg.BeginRun(ctx, "convert")
	if err != nil {
		return err
	}

	failures := 0
	for _, job := range result.Jobs {
		if err := convertFile(ctx, reg, runID, job, outputDir, anon, opts, spotChecks); err != nil {
			slog.Error("conversion failed", "file", job.DataFile, "error", err)
			failures++
		}
	}

	status := storage.RunStatusCompleted
	if failures > 0 {
		status = storage.RunStatusFailed
	}
	finishRun(ctx, reg, runID, status)

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed to convert", failures, len(result.Jobs))
	}
	slog.Info("conversion complete", "files", len(result.Jobs), "output", outputDir)
	return nil
}

// convertFile decodes one matched file, verifies the output, and records the
// outcome. Verification failures fail the file: an output that disagrees
// with its source must never look converted.
func convertFile(ctx context.Context, reg *storage.Registry, runID int64, job match.Job, outputDir string, anon *anonymize.Anonymizer, opts convert.Options, spotChecks int) error {
	base := strings.TrimSuffix(filepath.Base(job.DataFile), filepath.Ext(job.DataFile))
	outputPath := filepath.Join(outputDir, base+".csv")

	bar := progressbar.Default(-1, filepath.Base(job.DataFile))
	progress := func(written int64) {
		_ = bar.Set64(written)
	}

	dec := convert.NewDecoder(opts, anon, progress)
	res, err := dec.Convert(ctx, job.Layout, job.DataFile, outputPath)
	_ = bar.Finish()
	if err != nil {
		recordFailure(ctx, reg, runID, job, err.Error())
		return err
	}
	logReport(job.DataFile, res.Report)
	if err := reg.RecordReport(ctx, runID, job.DataFile, res.Report); err != nil {
		slog.Warn("failed to record report", "error", err)
	}

	var mask []bool
	if anon != nil {
		mask = anon.ColumnMask(job.Layout)
	}
	check := convert.ValidateConversion(job.Layout, job.DataFile, res, mask, convert.CheckOptions{
		Encoding:    opts.Encoding,
		NullMarkers: opts.NullMarkers,
		Separator:   opts.Separator,
		SpotChecks:  spotChecks,
	})
	logReport(job.DataFile, check)
	if err := reg.RecordReport(ctx, runID, job.DataFile, check); err != nil {
		slog.Warn("failed to record report", "error", err)
	}
	if check.HasErrors() {
		recordFailure(ctx, reg, runID, job, "output verification failed")
		return fmt.Errorf("%s: %w", job.DataFile, model.ErrValidationFailed)
	}

	if err := reg.RecordFile(ctx, runID, storage.FileResult{
		InputFile:  job.DataFile,
		LayoutName: job.Layout.Name,
		OutputFile: outputPath,
		Status:     storage.FileStatusSuccess,
		Records:    res.Records,
		Malformed:  res.Malformed,
		Reason:     job.MatchType,
	}); err != nil {
		slog.Warn("failed to record file result", "error", err)
	}

	slog.Info("converted",
		"file", job.DataFile,
		"layout", job.Layout.Name,
		"output", outputPath,
		"records", res.Records,
		"malformed", res.Malformed)
	return nil
}

// buildAnonymizer creates the anonymizer from config. An empty salt is a
// hard error: silently skipping anonymization would leak identifiers.
func buildAnonymizer() (*anonymize.Anonymizer, error) {
	salt := viper.GetString("anonymize.salt")
	columns := viper.GetStringSlice("anonymize.columns")
	anon, err := anonymize.New(anonymize.Config{Salt: salt, Columns: columns})
	if err != nil {
		if errors.Is(err, anonymize.ErrEmptySalt) {
			return nil, fmt.Errorf("anonymization salt is not set; set ONECHO_ANONYMIZE_SALT or anonymize.salt: %w", err)
		}
		return nil, err
	}
	return anon, nil
}

func decodeOptions(cmd *cobra.Command) (convert.Options, error) {
	encoding, _ := cmd.Flags().GetString("encoding")
	if encoding == "" {
		encoding = viper.GetString("convert.encoding")
	}
	caseStyle, _ := cmd.Flags().GetString("case-style")
	if caseStyle == "" {
		caseStyle = viper.GetString("convert.case_style")
	}
	switch convert.CaseStyle(caseStyle) {
	case convert.CaseOriginal, convert.CaseSnake, convert.CaseCamel, convert.CasePascal, "":
	default:
		return convert.Options{}, fmt.Errorf("unknown case style %q", caseStyle)
	}
	workers, _ := cmd.Flags().GetInt("workers")
	nullMarkers, _ := cmd.Flags().GetStringSlice("null-markers")
	if len(nullMarkers) == 0 {
		nullMarkers = viper.GetStringSlice("convert.null_markers")
	}

	separator := ','
	if s := viper.GetString("convert.separator"); s != "" {
		separator = []rune(s)[0]
	}

	return convert.Options{
		Encoding:    encoding,
		CaseStyle:   convert.CaseStyle(caseStyle),
		NullMarkers: nullMarkers,
		Separator:   separator,
		Workers:     workers,
	}, nil
}

func recordFailure(ctx context.Context, reg *storage.Registry, runID int64, job match.Job, reason string) {
	if err := reg.RecordFile(ctx, runID, storage.FileResult{
		InputFile:  job.DataFile,
		LayoutName: job.Layout.Name,
		Status:     storage.FileStatusFailed,
		Reason:     reason,
	}); err != nil {
		slog.Warn("failed to record file result", "error", err)
	}
}
