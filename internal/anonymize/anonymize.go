// Package anonymize replaces designated identifier columns with
// deterministic, irreversible digests. The same (salt, value) pair always
// produces the same digest within and across runs, so anonymized identifiers
// stay usable as join keys while reversal stays computationally infeasible.
package anonymize

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ceda-hhs/onecho/internal/model"
)

// ErrEmptySalt rejects construction without a salt: unsalted digests of
// short national identifiers are trivially reversible by enumeration.
var ErrEmptySalt = errors.New("anonymization salt must not be empty")

// DefaultColumns are the identifier columns anonymized when the
// configuration does not name its own set.
var DefaultColumns = []string{
	"Persoonsgebonden nummer",
	"Burgerservicenummer",
	"Onderwijsnummer",
}

// Config carries the salt and the sensitive column designation. It is built
// once from external configuration and injected at construction time; the
// salt must never appear in logs, reports, or output artifacts.
type Config struct {
	Salt    string
	Columns []string
}

// Rule designates one column for anonymization.
type Rule struct {
	Column string
}

// Anonymizer applies salted one-way digests to sensitive row columns.
type Anonymizer struct {
	salt    []byte
	columns map[string]bool
}

// New creates an Anonymizer from the given config.
func New(cfg Config) (*Anonymizer, error) {
	if cfg.Salt == "" {
		return nil, ErrEmptySalt
	}
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return &Anonymizer{salt: []byte(cfg.Salt), columns: set}, nil
}

// Rules returns the anonymization rules in effect.
func (a *Anonymizer) Rules() []Rule {
	rules := make([]Rule, 0, len(a.columns))
	for c := range a.columns {
		rules = append(rules, Rule{Column: c})
	}
	return rules
}

// Sensitive reports whether the named column is designated for
// anonymization. Matching is exact on the layout's original field name.
func (a *Anonymizer) Sensitive(column string) bool {
	return a.columns[column]
}

// Digest computes the salted one-way digest of a value. Empty values pass
// through unchanged: "no value" must stay distinguishable from "value
// present", and an empty cell is never hashed as if it were data.
func (a *Anonymizer) Digest(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.New()
	h.Write(a.salt)
	h.Write([]byte(value))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ColumnMask resolves which positions of a layout's column order are
// sensitive, so row application is a plain index loop.
func (a *Anonymizer) ColumnMask(l *model.Layout) []bool {
	names := l.ColumnNames()
	mask := make([]bool, len(names))
	for i, n := range names {
		mask[i] = a.columns[n]
	}
	return mask
}

// ApplyRow replaces sensitive values in a decoded row in place, using a mask
// previously resolved with ColumnMask for the row's layout.
func (a *Anonymizer) ApplyRow(row model.DecodedRow, mask []bool) {
	for i := range row {
		if i < len(mask) && mask[i] {
			row[i] = a.Digest(row[i])
		}
	}
}
