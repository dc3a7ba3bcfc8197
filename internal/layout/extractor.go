// Package layout extracts field layouts from free-form description documents
// and validates them before they are used for decoding.
package layout

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/transform"

	"github.com/ceda-hhs/onecho/internal/charset"
	"github.com/ceda-hhs/onecho/internal/model"
)

// Options configures how description documents are scanned. The defaults
// match the record descriptions shipped with the national education register:
// latin-1 text with "Startpositie" / "Aantal posities" header columns.
type Options struct {
	StartLabel       string
	CountLabel       string
	Encoding         string
	TitleSearchRange int
}

// DefaultOptions returns the scanning defaults.
func DefaultOptions() Options {
	return Options{
		StartLabel:       "Startpositie",
		CountLabel:       "Aantal posities",
		Encoding:         charset.DefaultName,
		TitleSearchRange: 10,
	}
}

// Extractor turns description documents into structured layouts.
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor with the given options, filling in
// defaults for zero values.
func NewExtractor(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.StartLabel == "" {
		opts.StartLabel = def.StartLabel
	}
	if opts.CountLabel == "" {
		opts.CountLabel = def.CountLabel
	}
	if opts.Encoding == "" {
		opts.Encoding = def.Encoding
	}
	if opts.TitleSearchRange <= 0 {
		opts.TitleSearchRange = def.TitleSearchRange
	}
	return &Extractor{opts: opts}
}

// Table is one extracted layout table plus its position in the document.
type Table struct {
	Layout *model.Layout
	Title  string
	Number int
}

// Document is the result of scanning one description document. Tables that
// could not be parsed into a usable layout are absent from Tables and appear
// as error entries in Report; one bad table never aborts the document.
type Document struct {
	Name   string
	Tables []Table
	Report model.ValidationReport
}

// Extract scans a description document for layout tables. A table is
// recognized by a header line carrying both the start-position and the
// position-count label; its body runs until the next blank line.
func (e *Extractor) Extract(r io.Reader, docName string) (*Document, error) {
	dec, err := charset.NewDecoder(e.opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("resolving document encoding: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(transform.NewReader(r, dec))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading description document %s: %w", docName, err)
	}

	doc := &Document{Name: docName}
	tablesFound := 0

	for i := 0; i < len(lines); i++ {
		if !e.isHeaderLine(lines[i]) {
			continue
		}
		tablesFound++

		header := lines[i]
		title := e.findTitle(lines, i, tablesFound)
		body, consumed := collectBody(lines, i+1)
		i += consumed

		table, report := e.parseTable(header, title, body)
		doc.Report.Append(report)
		if table != nil {
			table.Number = tablesFound
			table.Layout.SourceDocument = fmt.Sprintf("%s#%d", docName, tablesFound)
			doc.Tables = append(doc.Tables, *table)
		}
	}

	slog.Debug("extracted description document",
		"document", docName,
		"tables_found", tablesFound,
		"tables_usable", len(doc.Tables))
	return doc, nil
}

// isHeaderLine reports whether a line carries both header labels.
func (e *Extractor) isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, strings.ToLower(e.opts.StartLabel)) &&
		strings.Contains(lower, strings.ToLower(e.opts.CountLabel))
}

// findTitle scans backwards from the header line for a section rule
// (a run of repeated = or - characters) and takes the non-blank line above
// it. Tables without a recognizable title get a numbered placeholder.
func (e *Extractor) findTitle(lines []string, headerIdx, tableNum int) string {
	for j := headerIdx - 1; j >= 0 && j >= headerIdx-e.opts.TitleSearchRange; j-- {
		if isRuleLine(lines[j]) && j > 0 && strings.TrimSpace(lines[j-1]) != "" {
			return strings.TrimSpace(lines[j-1])
		}
	}
	return fmt.Sprintf("untitled_table_%d", tableNum)
}

// collectBody gathers table lines starting at from until a blank line or EOF.
// It returns the body plus the number of lines consumed.
func collectBody(lines []string, from int) ([]string, int) {
	var body []string
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			return body, len(body) + 1
		}
		body = append(body, lines[i])
	}
	return body, len(body)
}

// isRuleLine reports whether a line is a section marker rule of repeated
// dashes or equals signs.
func isRuleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 {
		return false
	}
	for _, r := range trimmed {
		if r != '=' && r != '-' {
			return false
		}
	}
	return true
}

// lineKind tags the classification of one table body line.
type lineKind int

const (
	recognizedField lineKind = iota
	note
	unrecognized
)

// parsedLine is the best-effort interpretation of one table body line.
type parsedLine struct {
	name    string
	comment string
	kind    lineKind
	start   int
	length  int // 0 when not present on the line
}

// parseTable interprets the body lines of one table under the given header.
// It returns nil and an error-severity report entry when no line can be
// parsed into a field.
func (e *Extractor) parseTable(header, title string, body []string) (*Table, model.ValidationReport) {
	var report model.ValidationReport

	startIdx := runeIndexFold(header, e.opts.StartLabel)
	countIdx := runeIndexFold(header, e.opts.CountLabel)
	if startIdx < 0 || countIdx < 0 {
		report.Errorf("", "table %q: header does not align %q and %q columns", title, e.opts.StartLabel, e.opts.CountLabel)
		return nil, report
	}

	var (
		parsed []parsedLine
		notes  []string
	)
	for _, line := range body {
		pl := e.classifyLine(line, startIdx, countIdx)
		switch pl.kind {
		case recognizedField:
			parsed = append(parsed, pl)
		case note:
			notes = append(notes, strings.TrimSpace(line))
		case unrecognized:
			report.Warnf("", "table %q: unrecognized line %q", title, strings.TrimSpace(line))
		}
	}

	fields := e.resolveFields(title, parsed, &report)
	if len(fields) == 0 {
		report.Errorf("", "table %q: no field lines could be parsed", title)
		return nil, report
	}

	l := &model.Layout{
		Name:   title,
		Notes:  notes,
		Fields: fields,
	}
	l.RecordLength = l.DeriveRecordLength()
	return &Table{Layout: l, Title: title}, report
}

// classifyLine decides whether a body line is a field declaration, an
// annotation note, or noise. Field names are free text and may contain any
// printable character including accents; the position integers sit
// right-aligned under the header columns, so digit scanning is anchored at
// the header label offsets.
func (e *Extractor) classifyLine(line string, startIdx, countIdx int) parsedLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isRuleLine(line) {
		return parsedLine{kind: unrecognized}
	}
	if strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "•") {
		return parsedLine{kind: note}
	}
	// Wrapped descriptions sometimes repeat both header labels inline;
	// re-split on the labels instead of the column anchors.
	if e.isHeaderLine(line) {
		return e.splitInlineLabels(line)
	}

	runes := []rune(line)
	if startIdx >= len(runes) {
		return parsedLine{kind: note}
	}

	// Locate the first digit at or after the start-position column.
	digitPos := -1
	for j := startIdx; j < len(runes); j++ {
		if unicode.IsDigit(runes[j]) {
			digitPos = j
			break
		}
	}
	if digitPos < 0 {
		// No aligned integers: an annotation or continuation note.
		return parsedLine{kind: note}
	}

	name := strings.TrimRight(string(runes[:digitPos]), " \t")
	if name == "" {
		return parsedLine{kind: unrecognized}
	}

	start, next := consumeInt(runes, digitPos)

	// The length digits sit under the count column; when start digits run
	// past that anchor the scan begins where they end.
	lengthFrom := countIdx
	if next > lengthFrom {
		lengthFrom = next
	}
	length, after := scanInt(runes, lengthFrom)

	comment := ""
	if after > 0 && after < len(runes) {
		comment = strings.TrimSpace(string(runes[after:]))
	}

	return parsedLine{
		kind:    recognizedField,
		name:    name,
		start:   start,
		length:  length,
		comment: comment,
	}
}

// splitInlineLabels handles lines that repeat the header labels inline, e.g.
// "Naam veld Startpositie 12 Aantal posities 4 toelichting".
func (e *Extractor) splitInlineLabels(line string) parsedLine {
	lower := strings.ToLower(line)
	si := strings.Index(lower, strings.ToLower(e.opts.StartLabel))
	ci := strings.Index(lower, strings.ToLower(e.opts.CountLabel))
	if si < 0 || ci < 0 || ci <= si {
		return parsedLine{kind: unrecognized}
	}

	name := strings.TrimSpace(line[:si])
	startPart := line[si+len(e.opts.StartLabel) : ci]
	countPart := line[ci+len(e.opts.CountLabel):]

	start, _ := firstInt(startPart)
	length, rest := firstInt(countPart)
	if name == "" || start <= 0 || length <= 0 {
		return parsedLine{kind: unrecognized}
	}
	return parsedLine{
		kind:    recognizedField,
		name:    name,
		start:   start,
		length:  length,
		comment: strings.TrimSpace(rest),
	}
}

// resolveFields turns parsed lines into FieldSpecs, deriving missing lengths
// from the gap to the next field's start position. Derivation is a fallback,
// not the primary path, and is always reported.
func (e *Extractor) resolveFields(title string, parsed []parsedLine, report *model.ValidationReport) []model.FieldSpec {
	var fields []model.FieldSpec
	for i, pl := range parsed {
		if pl.start <= 0 {
			report.Warnf(pl.name, "table %q: invalid start position %d, line dropped", title, pl.start)
			continue
		}
		length := pl.length
		if length <= 0 {
			if i+1 < len(parsed) && parsed[i+1].start > pl.start {
				length = parsed[i+1].start - pl.start
				report.Warnf(pl.name, "table %q: length not declared, derived %d from next start position", title, length)
			} else {
				report.Errorf(pl.name, "table %q: length not declared and not derivable, line dropped", title)
				continue
			}
		}
		fields = append(fields, model.FieldSpec{
			Name:         pl.name,
			Start:        pl.start,
			Length:       length,
			Comment:      pl.comment,
			InferredKind: inferKind(pl.name),
		})
	}
	return fields
}

// inferKind guesses a field's content kind from its name. The guess is
// advisory only; decoding stays purely positional.
func inferKind(name string) model.FieldKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "datum") || strings.Contains(lower, "date"):
		return model.KindDate
	case strings.Contains(lower, "code") || strings.HasPrefix(lower, "indicatie"):
		return model.KindCode
	case strings.Contains(lower, "jaar") || strings.Contains(lower, "aantal") || strings.Contains(lower, "nummer"):
		return model.KindInteger
	default:
		return model.KindText
	}
}

// runeIndexFold returns the rune index of the first case-insensitive
// occurrence of label in s, or -1.
func runeIndexFold(s, label string) int {
	byteIdx := strings.Index(strings.ToLower(s), strings.ToLower(label))
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(s[:byteIdx]))
}

// consumeInt reads the integer starting exactly at pos. It returns the value
// and the index just past the digits.
func consumeInt(runes []rune, pos int) (int, int) {
	val := 0
	i := pos
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		val = val*10 + int(runes[i]-'0')
		i++
	}
	return val, i
}

// scanInt skips forward from pos to the next digit run and consumes it.
// It returns 0 and -1 when no digits remain.
func scanInt(runes []rune, pos int) (int, int) {
	i := pos
	for i < len(runes) && !unicode.IsDigit(runes[i]) {
		i++
	}
	if i >= len(runes) {
		return 0, -1
	}
	return consumeInt(runes, i)
}

// firstInt extracts the first integer in s and returns the remainder after it.
func firstInt(s string) (int, string) {
	runes := []rune(s)
	val, after := scanInt(runes, 0)
	if after < 0 {
		return 0, ""
	}
	return val, string(runes[after:])
}
