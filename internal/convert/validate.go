package convert

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/ceda-hhs/onecho/internal/charset"
	"github.com/ceda-hhs/onecho/internal/layout"
	"github.com/ceda-hhs/onecho/internal/model"
)

// DefaultSpotChecks is the number of rows re-sliced from the original file
// during post-decode validation.
const DefaultSpotChecks = 25

// CheckOptions configures post-decode validation. Seed fixes the sampled
// rows for reproducible runs; zero seeds from the row count.
type CheckOptions struct {
	Encoding    string
	NullMarkers []string
	Separator   rune
	SpotChecks  int
	Seed        int64
}

// ValidateConversion compares the decoded output against the original file:
// row counts must agree with the records read (malformed trailing records
// are accounted for explicitly, never silently dropped), column counts must
// equal the layout's field count, and a random sample of rows is re-sliced
// byte-for-byte from the source for non-anonymized columns. Any mismatch is
// an error entry; already-written output is left on disk for inspection.
func ValidateConversion(l *model.Layout, inputPath string, result *Result, anonMask []bool, opts CheckOptions) model.ValidationReport {
	var report model.ValidationReport
	if opts.SpotChecks <= 0 {
		opts.SpotChecks = DefaultSpotChecks
	}
	if opts.Separator == 0 {
		opts.Separator = ','
	}

	shape, err := layout.ProbeShape(inputPath, l.RecordLength)
	if err != nil {
		report.Errorf("", "cannot probe source file %s: %v", inputPath, err)
		return report
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		report.Errorf("", "cannot stat source file %s: %v", inputPath, err)
		return report
	}

	fullRecords, malformed := countSourceRecords(info.Size(), shape)
	expectedRows := fullRecords + int64(malformed)

	if result.Malformed != malformed {
		report.Errorf("", "decoder reported %d malformed records, source geometry implies %d",
			result.Malformed, malformed)
	}
	if result.Records != expectedRows {
		report.Errorf("", "output has %d rows, source has %d records (%d full, %d malformed)",
			result.Records, expectedRows, fullRecords, malformed)
	}
	if result.Columns != len(l.Fields) {
		report.Errorf("", "output has %d columns, layout %s declares %d fields",
			result.Columns, l.Name, len(l.Fields))
	}

	if report.HasErrors() {
		return report
	}

	sample := sampleIndices(fullRecords, opts.SpotChecks, opts.Seed)
	if len(sample) > 0 {
		spotCheckRows(l, inputPath, result.OutputFile, shape, anonMask, sample, opts, &report)
	}

	if report.HasErrors() {
		slog.Warn("conversion validation failed",
			"input", inputPath,
			"output", result.OutputFile,
			"errors", report.Count(model.SeverityError))
	}
	return report
}

// countSourceRecords derives the full and malformed record counts from the
// file size and record geometry.
func countSourceRecords(size int64, shape layout.FileShape) (full int64, malformed int) {
	stride := int64(shape.Stride())
	full = size / stride
	remainder := size % stride
	if remainder >= int64(shape.RecordLength) {
		full++ // final record without its separator
	} else if remainder > 0 {
		malformed = 1
	}
	return full, malformed
}

// sampleIndices picks up to n distinct record indices in [0, records).
func sampleIndices(records int64, n int, seed int64) []int64 {
	if records <= 0 {
		return nil
	}
	if seed == 0 {
		seed = records
	}
	rng := rand.New(rand.NewSource(seed))
	if int64(n) >= records {
		indices := make([]int64, records)
		for i := range indices {
			indices[i] = int64(i)
		}
		return indices
	}
	seen := make(map[int64]bool, n)
	indices := make([]int64, 0, n)
	for len(indices) < n {
		idx := rng.Int63n(records)
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	return indices
}

// spotCheckRows re-slices sampled records directly from the original file
// and compares each non-anonymized cell byte-for-byte (after encoding
// normalization) with the corresponding output cell.
func spotCheckRows(l *model.Layout, inputPath, outputPath string, shape layout.FileShape, anonMask []bool, sample []int64, opts CheckOptions, report *model.ValidationReport) {
	wanted := make(map[int64]bool, len(sample))
	for _, idx := range sample {
		wanted[idx] = true
	}

	outRows, err := collectOutputRows(outputPath, opts.Separator, wanted)
	if err != nil {
		report.Errorf("", "cannot read output file %s: %v", outputPath, err)
		return
	}

	src, err := os.Open(inputPath)
	if err != nil {
		report.Errorf("", "cannot open source file %s: %v", inputPath, err)
		return
	}
	defer src.Close() //nolint:errcheck // read-only handle

	dec, err := charset.NewDecoder(opts.Encoding)
	if err != nil {
		report.Errorf("", "cannot resolve encoding: %v", err)
		return
	}

	fields := l.SortedFields()
	rec := make([]byte, shape.RecordLength)
	for _, idx := range sample {
		row, ok := outRows[idx]
		if !ok {
			report.Errorf("", "record %d missing from output", idx)
			continue
		}
		if _, err := src.ReadAt(rec, idx*int64(shape.Stride())); err != nil && err != io.EOF {
			report.Errorf("", "cannot re-read record %d: %v", idx, err)
			continue
		}
		if len(row) != len(fields) {
			report.Errorf("", "record %d: output has %d cells, layout declares %d fields", idx, len(row), len(fields))
			continue
		}
		for i, f := range fields {
			if i < len(anonMask) && anonMask[i] {
				continue // digest columns cannot equal the source bytes
			}
			expected := normalizeRaw(rec[f.Start-1:f.End()], dec, opts.NullMarkers)
			if row[i] != expected {
				report.Errorf(f.Name, "record %d: output cell %q does not match source bytes %q", idx, row[i], expected)
			}
		}
	}
}

// collectOutputRows streams the output file once, keeping only the wanted
// row indices. The header row is skipped; data row i corresponds to source
// record i.
func collectOutputRows(path string, separator rune, wanted map[int64]bool) (map[int64][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.Comma = separator
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	rows := make(map[int64][]string, len(wanted))
	var idx int64
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", idx, err)
		}
		if wanted[idx] {
			rows[idx] = append([]string(nil), row...)
			if len(rows) == len(wanted) {
				break
			}
		}
		idx++
	}
	return rows, nil
}

// normalizeRaw applies the same trimming and null-marker normalization the
// decoder applies, so the comparison is against what the output should hold.
func normalizeRaw(raw []byte, dec byteDecoder, nullMarkers []string) string {
	decoded, err := dec.Bytes(raw)
	if err != nil {
		decoded = raw
	}
	v := strings.TrimSpace(string(decoded))
	for _, marker := range nullMarkers {
		if v == marker {
			return ""
		}
	}
	return v
}
