package layout

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/ceda-hhs/onecho/internal/model"
)

// DefaultSampleSize is the number of records probed when cross-checking a
// layout against its candidate data file.
const DefaultSampleSize = 100

// Validate checks a layout for internal consistency: overlapping byte
// ranges, ranges outside the declared record length, and duplicate field
// names are errors; gaps between consecutive fields and a sum-of-lengths
// mismatch are warnings, since real layouts carry declared padding.
func Validate(l *model.Layout) model.ValidationReport {
	var report model.ValidationReport
	fields := l.SortedFields()

	seen := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Start < 1 || f.Length < 1 {
			report.Errorf(f.Name, "invalid range: start %d, length %d", f.Start, f.Length)
			continue
		}
		if f.End() > l.RecordLength {
			report.Errorf(f.Name, "range [%d,%d] exceeds record length %d", f.Start, f.End(), l.RecordLength)
		}
		if prev, dup := seen[f.Name]; dup {
			report.Errorf(f.Name, "duplicate field name, first declared at position %d", prev)
		} else {
			seen[f.Name] = f.Start
		}
		if i == 0 {
			continue
		}
		prev := fields[i-1]
		expectedStart := prev.End() + 1
		switch {
		case f.Start < expectedStart:
			report.Errorf(f.Name, "overlaps %q by %d positions (expected start %d, actual %d)",
				prev.Name, expectedStart-f.Start, expectedStart, f.Start)
		case f.Start > expectedStart:
			report.Warnf(f.Name, "gap of %d positions after %q (expected start %d, actual %d)",
				f.Start-expectedStart, prev.Name, expectedStart, f.Start)
		}
	}

	sum := 0
	for _, f := range fields {
		sum += f.Length
	}
	if derived := l.DeriveRecordLength(); sum != derived {
		report.Warnf("", "sum of field lengths %d differs from last position %d", sum, derived)
	}

	return report
}

// FileShape describes the physical record geometry observed in a data file:
// the bytes of one record body plus any trailing line separator.
type FileShape struct {
	RecordLength int // content bytes per record, separator excluded
	SepWidth     int // 0 (none), 1 (LF) or 2 (CRLF)
}

// Stride returns the physical bytes occupied by one record on disk.
func (s FileShape) Stride() int {
	return s.RecordLength + s.SepWidth
}

// ProbeShape determines the physical record geometry of a data file. Files
// with line separators report the first line's width; files without any
// separator fall back to the declared record length, which callers verify
// against the file size.
func ProbeShape(path string, declared int) (FileShape, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileShape{}, err
	}
	defer closeQuietly(f, path)

	// A record plus separator fits well inside four declared widths; if no
	// newline shows up in that window the file has no separators at all.
	probeLen := declared*4 + 8
	buf := make([]byte, probeLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FileShape{}, err
	}
	buf = buf[:n]

	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return FileShape{RecordLength: declared}, nil
	}
	shape := FileShape{RecordLength: idx, SepWidth: 1}
	if idx > 0 && buf[idx-1] == '\r' {
		shape.RecordLength = idx - 1
		shape.SepWidth = 2
	}
	return shape, nil
}

// ValidateAgainstFile cross-checks a layout against a sample of the raw data
// file it claims to describe. The observed physical record length must equal
// the declared record length; a difference that is exactly the trailing
// line-ending width is a warning, anything else an error and usually means a
// wrong file match. Fields inferred as numeric or date are spot-decoded and
// must contain only digits or blanks.
func ValidateAgainstFile(l *model.Layout, path string, sampleSize int) model.ValidationReport {
	var report model.ValidationReport
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	shape, err := ProbeShape(path, l.RecordLength)
	if err != nil {
		report.Errorf("", "cannot read data file %s: %v", path, err)
		return report
	}

	if shape.RecordLength != l.RecordLength {
		report.Errorf("", "observed record length %d does not match declared %d (file %s)",
			shape.RecordLength, l.RecordLength, path)
		return report
	}
	if shape.SepWidth > 0 {
		report.Warnf("", "records carry %d trailing line-ending bytes (physical record %d, declared %d)",
			shape.SepWidth, shape.Stride(), l.RecordLength)
	} else {
		info, serr := os.Stat(path)
		if serr == nil && info.Size()%int64(l.RecordLength) != 0 {
			report.Errorf("", "file size %d is not a multiple of record length %d",
				info.Size(), l.RecordLength)
			return report
		}
	}

	records, err := sampleRecords(path, shape, sampleSize)
	if err != nil {
		report.Errorf("", "cannot sample data file %s: %v", path, err)
		return report
	}
	if len(records) == 0 {
		report.Errorf("", "data file %s contains no records", path)
		return report
	}

	spotCheckKinds(l, records, &report)
	return report
}

// sampleRecords reads up to n record bodies from the start of the file.
func sampleRecords(path string, shape FileShape, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(f, path)

	var records [][]byte
	buf := make([]byte, shape.Stride())
	for len(records) < n {
		read, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			if read >= shape.RecordLength {
				records = append(records, append([]byte(nil), buf[:shape.RecordLength]...))
			}
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, append([]byte(nil), buf[:shape.RecordLength]...))
	}
	return records, nil
}

// spotCheckKinds decodes sampled records and flags numeric and date fields
// whose positions contain non-digit, non-blank bytes. That usually signals
// offset drift rather than bad data, so the finding is a warning: some codes
// are legitimately alphanumeric.
func spotCheckKinds(l *model.Layout, records [][]byte, report *model.ValidationReport) {
	for _, f := range l.SortedFields() {
		if f.InferredKind != model.KindInteger && f.InferredKind != model.KindDate {
			continue
		}
		for i, rec := range records {
			if f.End() > len(rec) {
				continue
			}
			raw := string(rec[f.Start-1 : f.End()])
			if !digitsOrBlank(raw) {
				report.Warnf(f.Name, "record %d: %s field contains %q, possible offset drift",
					i+1, f.InferredKind, strings.TrimSpace(raw))
				break
			}
		}
	}
}

// digitsOrBlank reports whether s contains only digits and spaces. An
// all-space value is the null marker and passes.
func digitsOrBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ' ' {
			return false
		}
	}
	return true
}

func closeQuietly(f *os.File, path string) {
	if err := f.Close(); err != nil {
		slog.Warn("failed to close data file", "file", path, "error", err)
	}
}
