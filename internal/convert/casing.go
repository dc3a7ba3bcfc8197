// Package convert turns matched (file, layout) jobs into delimited output
// rows using parallel record-aligned partitions, and verifies the result
// against the original bytes.
package convert

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CaseStyle selects the output column naming convention.
type CaseStyle string

// Supported case styles.
const (
	CaseOriginal CaseStyle = "original"
	CaseSnake    CaseStyle = "snake_case"
	CaseCamel    CaseStyle = "camelCase"
	CasePascal   CaseStyle = "PascalCase"
)

// foldAccents decomposes characters and strips combining marks, so ó → o,
// ë → e. Output column names must survive downstream tools that choke on
// non-ASCII headers.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText converts accented characters to their ASCII base form.
func NormalizeText(s string) string {
	out, _, err := transform.String(foldAccents, s)
	if err != nil {
		return s
	}
	return out
}

// ConvertCase renders a field name in the requested case style. Accents are
// always folded first, whatever the style.
func ConvertCase(name string, style CaseStyle) string {
	normalized := NormalizeText(name)
	switch style {
	case CaseSnake:
		return strings.ToLower(strings.Join(splitWords(normalized), "_"))
	case CaseCamel:
		words := splitWords(normalized)
		if len(words) == 0 {
			return normalized
		}
		out := strings.ToLower(words[0])
		for _, w := range words[1:] {
			out += capitalize(w)
		}
		return out
	case CasePascal:
		var out string
		for _, w := range splitWords(normalized) {
			out += capitalize(w)
		}
		if out == "" {
			return normalized
		}
		return out
	default:
		return normalized
	}
}

// splitWords breaks a name into words at whitespace, punctuation, digit
// boundaries, and camelCase transitions.
func splitWords(s string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(rs[i-1]):
			flush()
			current = append(current, r)
		case unicode.IsUpper(r) && i+1 < len(rs) && unicode.IsLower(rs[i+1]) && len(current) > 1:
			// End of an acronym run: ABCWord splits as ABC, Word.
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	rs := []rune(strings.ToLower(w))
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}
