package convert

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ceda-hhs/onecho/internal/anonymize"
	"github.com/ceda-hhs/onecho/internal/charset"
	"github.com/ceda-hhs/onecho/internal/layout"
	"github.com/ceda-hhs/onecho/internal/model"
)

// maxChunkBytes bounds the bytes one partition chunk may span, so a handful
// of in-flight chunks never approaches available memory even on
// multi-gigabyte inputs.
const maxChunkBytes = 8 << 20

// Options configures a conversion job.
type Options struct {
	Encoding     string
	CaseStyle    CaseStyle
	NullMarkers  []string
	Separator    rune
	Workers      int
	ChunkRecords int
}

// Progress receives the cumulative number of records written. It is invoked
// from the writer goroutine only.
type Progress func(written int64)

// Result summarizes one completed conversion.
type Result struct {
	OutputFile string
	Report     model.ValidationReport
	Records    int64 // rows written, malformed trailing record included
	Malformed  int   // short trailing records decoded with padding
	Columns    int
}

// Decoder converts fixed-width files into delimited rows. A single decoder
// is safe for sequential reuse across jobs; the layout passed to Convert is
// shared read-only by all workers.
type Decoder struct {
	anon     *anonymize.Anonymizer
	progress Progress
	opts     Options
}

// NewDecoder creates a decoder. anon may be nil when no columns are
// designated sensitive; progress may be nil.
func NewDecoder(opts Options, anon *anonymize.Anonymizer, progress Progress) *Decoder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.Encoding == "" {
		opts.Encoding = charset.DefaultName
	}
	if opts.CaseStyle == "" {
		opts.CaseStyle = CaseSnake
	}
	return &Decoder{opts: opts, anon: anon, progress: progress}
}

// partition is one contiguous, record-aligned byte range of the input file.
type partition struct {
	index   int
	offset  int64
	records int64
	partial int // trailing bytes of a short final record, 0 otherwise
}

// chunk is the decoded output of one partition, keyed by partition index so
// the writer can restore input order regardless of completion order.
type chunk struct {
	rows      []model.DecodedRow
	index     int
	malformed int
}

// Convert decodes one fixed-width input file into a delimited output file.
// Output row order always equals input record order: partitions are written
// in index order, not completion order. The job fails fatally only on I/O
// errors or when the file's geometry contradicts the layout outright.
func (d *Decoder) Convert(ctx context.Context, l *model.Layout, inputPath, outputPath string) (*Result, error) {
	shape, err := layout.ProbeShape(inputPath, l.RecordLength)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", inputPath, err)
	}
	if shape.RecordLength != l.RecordLength {
		return nil, fmt.Errorf("%s: observed record length %d, layout %s declares %d: %w",
			inputPath, shape.RecordLength, l.Name, l.RecordLength, model.ErrRecordLengthMismatch)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", inputPath, err)
	}

	parts, totalRecords, partialBytes := d.planPartitions(info.Size(), shape)
	result := &Result{OutputFile: outputPath, Columns: len(l.Fields)}
	if partialBytes > 0 {
		result.Report.Warnf("", "trailing record is %d bytes short of record length %d, missing fields padded empty",
			l.RecordLength-partialBytes, l.RecordLength)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating output %s: %w", outputPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			slog.Warn("failed to close output file", "file", outputPath, "error", cerr)
		}
	}()

	w := csv.NewWriter(out)
	w.Comma = d.opts.Separator

	header := make([]string, 0, len(l.Fields))
	for _, name := range l.ColumnNames() {
		header = append(header, ConvertCase(name, d.opts.CaseStyle))
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	fields := l.SortedFields()
	var mask []bool
	if d.anon != nil {
		mask = d.anon.ColumnMask(l)
	}

	slog.Info("starting conversion",
		"input", inputPath,
		"output", outputPath,
		"records", totalRecords,
		"partitions", len(parts),
		"workers", d.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan partition)
	g.Go(func() error {
		defer close(jobs)
		for _, p := range parts {
			select {
			case jobs <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	results := make(chan chunk, d.opts.Workers)
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return d.worker(gctx, inputPath, shape, fields, mask, jobs, results)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		return d.mergeChunks(results, w, result)
	})

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("conversion of %s failed: %w", inputPath, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return result, fmt.Errorf("flushing output: %w", err)
	}

	slog.Info("conversion complete",
		"input", inputPath,
		"records", result.Records,
		"malformed", result.Malformed,
		"columns", result.Columns)
	return result, nil
}

// planPartitions slices the file into record-aligned byte ranges. A range is
// always a whole number of records; a short trailing record attaches to the
// last partition.
func (d *Decoder) planPartitions(size int64, shape layout.FileShape) ([]partition, int64, int) {
	stride := int64(shape.Stride())
	totalRecords := size / stride
	remainder := size % stride

	// The last line of a separated file often lacks its separator; that is
	// still a complete record, not a malformed one.
	partialBytes := 0
	if remainder >= int64(shape.RecordLength) {
		totalRecords++
		remainder = 0
	} else if remainder > 0 {
		partialBytes = int(remainder)
	}

	perChunk := int64(d.opts.ChunkRecords)
	if perChunk <= 0 {
		perChunk = totalRecords / int64(d.opts.Workers*4)
		if max := int64(maxChunkBytes) / stride; perChunk > max {
			perChunk = max
		}
		if perChunk < 1 {
			perChunk = 1
		}
	}

	var parts []partition
	var rec int64
	for rec < totalRecords {
		n := perChunk
		if rec+n > totalRecords {
			n = totalRecords - rec
		}
		parts = append(parts, partition{
			index:   len(parts),
			offset:  rec * stride,
			records: n,
		})
		rec += n
	}
	if partialBytes > 0 {
		if len(parts) == 0 {
			parts = append(parts, partition{index: 0, offset: 0, records: 0, partial: partialBytes})
		} else {
			parts[len(parts)-1].partial = partialBytes
		}
	}
	return parts, totalRecords, partialBytes
}

// worker decodes partitions from jobs until the channel drains. Each worker
// owns its own file handle and reads only its assigned byte ranges.
func (d *Decoder) worker(ctx context.Context, inputPath string, shape layout.FileShape, fields []model.FieldSpec, mask []bool, jobs <-chan partition, results chan<- chunk) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("worker opening %s: %w", inputPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	dec, err := charset.NewDecoder(d.opts.Encoding)
	if err != nil {
		return err
	}

	for p := range jobs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := d.decodePartition(f, p, shape, fields, mask, dec)
		if err != nil {
			return err
		}
		select {
		case results <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// decodePartition reads one partition's byte range and decodes every record
// in it, preserving record order within the partition.
func (d *Decoder) decodePartition(f *os.File, p partition, shape layout.FileShape, fields []model.FieldSpec, mask []bool, dec byteDecoder) (chunk, error) {
	stride := int64(shape.Stride())
	length := p.records*stride + int64(p.partial)
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, p.offset); err != nil && err != io.EOF {
		return chunk{}, fmt.Errorf("reading partition %d at offset %d: %w", p.index, p.offset, err)
	}

	c := chunk{index: p.index, rows: make([]model.DecodedRow, 0, p.records+1)}
	for i := int64(0); i < p.records; i++ {
		rec := buf[i*stride : i*stride+int64(shape.RecordLength)]
		c.rows = append(c.rows, d.decodeRecord(rec, fields, mask, dec))
	}
	if p.partial > 0 {
		rec := buf[p.records*stride:]
		c.rows = append(c.rows, d.decodeRecord(rec, fields, mask, dec))
		c.malformed = 1
	}
	return c, nil
}

// byteDecoder is the subset of the x/text decoder the record path needs.
type byteDecoder interface {
	Bytes([]byte) ([]byte, error)
}

// decodeRecord slices one record's byte windows into trimmed,
// encoding-normalized values. Values are emitted verbatim as text; no type
// coercion happens here, so decoding stays purely positional and
// independently verifiable. Short records pad missing trailing fields empty.
func (d *Decoder) decodeRecord(rec []byte, fields []model.FieldSpec, mask []bool, dec byteDecoder) model.DecodedRow {
	row := make(model.DecodedRow, len(fields))
	for i, f := range fields {
		lo := f.Start - 1
		if lo >= len(rec) {
			row[i] = ""
			continue
		}
		hi := f.End()
		if hi > len(rec) {
			hi = len(rec)
		}
		row[i] = d.normalizeValue(rec[lo:hi], dec)
	}
	if mask != nil {
		d.anon.ApplyRow(row, mask)
	}
	return row
}

// normalizeValue converts a byte window to text in the declared source
// encoding, trims surrounding whitespace, and maps declared null markers to
// the explicit empty value.
func (d *Decoder) normalizeValue(raw []byte, dec byteDecoder) string {
	return normalizeRaw(raw, dec, d.opts.NullMarkers)
}

// mergeChunks writes chunks in partition index order. A worker that
// finishes late still has its rows placed correctly rather than appended
// out of order.
func (d *Decoder) mergeChunks(results <-chan chunk, w *csv.Writer, result *Result) error {
	pending := make(map[int]chunk)
	next := 0
	for c := range results {
		pending[c.index] = c
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			for _, row := range ready.rows {
				if err := w.Write(row); err != nil {
					return fmt.Errorf("writing partition %d: %w", ready.index, err)
				}
			}
			result.Records += int64(len(ready.rows))
			result.Malformed += ready.malformed
			if d.progress != nil {
				d.progress(result.Records)
			}
			next++
		}
	}
	// Leftover pending chunks mean workers bailed out early; the surrounding
	// errgroup carries the real error.
	return nil
}
