package model

import "fmt"

// Severity classifies a validation report entry.
type Severity string

// Severity constants.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ReportEntry is one finding produced by a validator. Field is empty when the
// finding concerns the layout or file as a whole.
type ReportEntry struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// String implements fmt.Stringer for log output.
func (e ReportEntry) String() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Field, e.Message)
}

// ValidationReport is an ordered list of findings. Validators collect entries
// instead of aborting; callers decide whether error entries block a job.
type ValidationReport struct {
	Entries []ReportEntry `json:"entries"`
}

// Errorf appends an error-severity entry.
func (r *ValidationReport) Errorf(field, format string, args ...any) {
	r.Entries = append(r.Entries, ReportEntry{Severity: SeverityError, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning-severity entry.
func (r *ValidationReport) Warnf(field, format string, args ...any) {
	r.Entries = append(r.Entries, ReportEntry{Severity: SeverityWarning, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Infof appends an info-severity entry.
func (r *ValidationReport) Infof(field, format string, args ...any) {
	r.Entries = append(r.Entries, ReportEntry{Severity: SeverityInfo, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Append merges another report's entries preserving order.
func (r *ValidationReport) Append(other ValidationReport) {
	r.Entries = append(r.Entries, other.Entries...)
}

// HasErrors reports whether any entry carries error severity.
func (r *ValidationReport) HasErrors() bool {
	for _, e := range r.Entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of entries with the given severity.
func (r *ValidationReport) Count(sev Severity) int {
	n := 0
	for _, e := range r.Entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
