// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"sort"
)

// FieldKind is the inferred (not authoritative) kind of a field's content.
type FieldKind string

// Field kind constants.
const (
	KindText    FieldKind = "text"
	KindInteger FieldKind = "integer"
	KindDate    FieldKind = "date"
	KindCode    FieldKind = "categorical-code"
)

// FieldSpec describes one decoded column of a fixed-width record.
type FieldSpec struct {
	Name         string    `json:"name"`
	Comment      string    `json:"comment,omitempty"`
	InferredKind FieldKind `json:"inferred_kind"`
	Start        int       `json:"start"`  // 1-based byte offset into the record
	Length       int       `json:"length"` // byte count, always >= 1
}

// End returns the 1-based inclusive end position of the field.
func (f FieldSpec) End() int {
	return f.Start + f.Length - 1
}

// Overlaps reports whether two field byte ranges intersect.
func (f FieldSpec) Overlaps(other FieldSpec) bool {
	return f.Start <= other.End() && other.Start <= f.End()
}

// Layout is the ordered set of FieldSpecs describing how to slice one record,
// plus provenance of the description section it was extracted from.
type Layout struct {
	Name           string      `json:"name"`
	SourceDocument string      `json:"source_document"`
	Notes          []string    `json:"notes,omitempty"`
	Fields         []FieldSpec `json:"fields"`
	RecordLength   int         `json:"record_length"`
}

// SortedFields returns the fields ordered by start position. Source documents
// may list fields out of order; decoding always works in positional order.
func (l *Layout) SortedFields() []FieldSpec {
	fields := make([]FieldSpec, len(l.Fields))
	copy(fields, l.Fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Start < fields[j].Start })
	return fields
}

// DeriveRecordLength computes the record length implied by the field ranges:
// the highest end position across all fields.
func (l *Layout) DeriveRecordLength() int {
	maxEnd := 0
	for _, f := range l.Fields {
		if f.End() > maxEnd {
			maxEnd = f.End()
		}
	}
	return maxEnd
}

// ColumnNames returns the field names in positional order.
func (l *Layout) ColumnNames() []string {
	fields := l.SortedFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// FieldByName looks up a field by its name.
func (l *Layout) FieldByName(name string) (FieldSpec, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// String implements fmt.Stringer for log output.
func (l *Layout) String() string {
	return fmt.Sprintf("%s (%d fields, record length %d)", l.Name, len(l.Fields), l.RecordLength)
}

// DecodedRow holds one record's trimmed field values in layout column order.
// A row is owned by the worker that produced it until handed to the writer.
type DecodedRow []string
