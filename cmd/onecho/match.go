package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ceda-hhs/onecho/internal/layout"
	"github.com/ceda-hhs/onecho/internal/match"
	"github.com/ceda-hhs/onecho/internal/storage"
)

// ignoredExtensions are never treated as raw data files: archives and
// already-converted output.
var ignoredExtensions = []string{".zip", ".xlsx", ".json", ".csv"}

func init() {
	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Match raw data files to extracted layouts",
		Long: `Pair raw data files with validated layouts using filename conventions.
Unmatched files and layouts are reported with reasons instead of being
silently skipped.`,
		RunE: runMatch,
	}

	matchCmd.Flags().String("layouts", "layouts", "directory of extracted layout JSON files")
	matchCmd.Flags().String("input", "input", "directory of raw data files")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	layoutDir, _ := cmd.Flags().GetString("layouts")
	inputDir, _ := cmd.Flags().GetString("input")

	result, err := pairFiles(layoutDir, inputDir)
	if err != nil {
		return err
	}

	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // audit trail
	runID, err := reg.BeginRun(ctx, "match")
	if err != nil {
		return err
	}

	for _, job := range result.Jobs {
		slog.Info("matched",
			"file", job.DataFile,
			"layout", job.Layout.Name,
			"match_type", job.MatchType)
		_ = reg.RecordFile(ctx, runID, storage.FileResult{
			InputFile:  job.DataFile,
			LayoutName: job.Layout.Name,
			Status:     storage.FileStatusSuccess,
			Reason:     job.MatchType,
		})
	}
	for _, u := range result.UnmatchedFiles {
		slog.Warn("unmatched data file", "file", u.Name, "reason", u.Reason)
		_ = reg.RecordFile(ctx, runID, storage.FileResult{
			InputFile: u.Name, Status: storage.FileStatusSkipped, Reason: u.Reason,
		})
	}
	for _, u := range result.UnmatchedLayouts {
		slog.Warn("unmatched layout", "layout", u.Name, "reason", u.Reason)
	}

	finishRun(ctx, reg, runID, storage.RunStatusCompleted)

	slog.Info("matching complete",
		"jobs", len(result.Jobs),
		"unmatched_files", len(result.UnmatchedFiles),
		"unmatched_layouts", len(result.UnmatchedLayouts))
	return nil
}

// pairFiles loads layouts, validates them, lists candidate data files, and
// runs the matcher. Layouts that fail validation are offered to the matcher
// with their reports so they surface as unmatched rather than producing
// decode jobs.
func pairFiles(layoutDir, inputDir string) (match.Result, error) {
	layouts, err := layout.LoadLayoutDir(layoutDir)
	if err != nil {
		return match.Result{}, err
	}
	if len(layouts) == 0 {
		return match.Result{}, fmt.Errorf("no layouts found in %s", layoutDir)
	}

	files, err := listDataFiles(inputDir)
	if err != nil {
		return match.Result{}, err
	}

	candidates := make([]match.Candidate, 0, len(layouts))
	for _, l := range layouts {
		candidates = append(candidates, match.Candidate{Layout: l, Report: layout.Validate(l)})
	}
	return match.Pair(files, candidates), nil
}

// listDataFiles returns raw data files in a directory, skipping ignored
// extensions and subdirectories.
func listDataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		ignored := false
		for _, ig := range ignoredExtensions {
			if ext == ig {
				ignored = true
				break
			}
		}
		if !ignored {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
