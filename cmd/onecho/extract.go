package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ceda-hhs/onecho/internal/layout"
	"github.com/ceda-hhs/onecho/internal/storage"
)

func init() {
	extractCmd := &cobra.Command{
		Use:   "extract [description-files...]",
		Short: "Extract field layouts from description documents",
		Long: `Extract field layouts from free-form record description documents.

Each document may contain multiple layout tables; every usable table is
written as a layout JSON file named after the document and table title.

Examples:
  # Extract layouts from a single description document
  onecho extract Bestandsbeschrijving_EV_2023.txt

  # Extract from every description document in a directory
  onecho extract descriptions/*.txt --output layouts`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExtract,
	}

	extractCmd.Flags().StringP("output", "o", "layouts", "directory for extracted layout JSON files")
	extractCmd.Flags().String("encoding", "", "document encoding (default from config, latin-1)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	outputDir, _ := cmd.Flags().GetString("output")
	encoding, _ := cmd.Flags().GetString("encoding")
	if encoding == "" {
		encoding = viper.GetString("extract.encoding")
	}

	files, err := expandArgs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no description documents found")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // audit trail
	runID, err := reg.BeginRun(ctx, "extract")
	if err != nil {
		return err
	}

	extractor := layout.NewExtractor(layout.Options{
		StartLabel: viper.GetString("extract.start_label"),
		CountLabel: viper.GetString("extract.count_label"),
		Encoding:   encoding,
	})

	totalTables := 0
	failed := 0
	for _, path := range files {
		doc, err := extractFile(extractor, path, outputDir)
		if err != nil {
			slog.Error("failed to extract document", "file", path, "error", err)
			failed++
			_ = reg.RecordFile(ctx, runID, storage.FileResult{
				InputFile: path, Status: storage.FileStatusFailed, Reason: err.Error(),
			})
			continue
		}
		logReport(path, doc.Report)
		if err := reg.RecordReport(ctx, runID, path, doc.Report); err != nil {
			slog.Warn("failed to record report", "file", path, "error", err)
		}
		_ = reg.RecordFile(ctx, runID, storage.FileResult{
			InputFile: path,
			Status:    storage.FileStatusSuccess,
			Records:   int64(len(doc.Tables)),
		})
		totalTables += len(doc.Tables)
	}

	status := storage.RunStatusCompleted
	if failed == len(files) {
		status = storage.RunStatusFailed
	}
	finishRun(ctx, reg, runID, status)

	slog.Info("extraction complete",
		"documents", len(files),
		"layouts", totalTables,
		"failed_documents", failed,
		"output", outputDir)
	if failed == len(files) {
		return fmt.Errorf("no document could be extracted")
	}
	return nil
}

// extractFile extracts one description document and writes its layouts.
func extractFile(extractor *layout.Extractor, path, outputDir string) (*layout.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	doc, err := extractor.Extract(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, table := range doc.Tables {
		name := layout.LayoutFilename(base, table.Number, table.Title)
		if err := layout.SaveLayout(table.Layout, filepath.Join(outputDir, name)); err != nil {
			return nil, err
		}
		slog.Debug("wrote layout",
			"document", path,
			"table", table.Title,
			"fields", len(table.Layout.Fields),
			"record_length", table.Layout.RecordLength)
	}
	return doc, nil
}
