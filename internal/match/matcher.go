// Package match pairs raw data files with extracted layouts using filename
// conventions, surfacing unmatched and ambiguous items instead of silently
// skipping them.
package match

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ceda-hhs/onecho/internal/model"
)

// FuzzyThreshold is the minimum similarity for a fuzzy filename match.
const FuzzyThreshold = 0.65

// Match type labels recorded on jobs for audit purposes.
const (
	MatchExact   = "exact"
	MatchPartial = "partial"
	MatchFuzzy   = "fuzzy"
)

// Unmatched reasons.
const (
	ReasonNoLayout     = "no layout found"
	ReasonNoDataFile   = "no data file found"
	ReasonAmbiguous    = "ambiguous: multiple candidates"
	ReasonLayoutErrors = "layout failed validation"
)

// Candidate is a layout offered for matching together with its validation
// report. Layouts carrying error entries never produce jobs.
type Candidate struct {
	Layout *model.Layout
	Report model.ValidationReport
}

// Job pairs one data file with the validated layout that describes it.
type Job struct {
	Layout    *model.Layout
	DataFile  string
	MatchType string
}

// Unmatched records a file or layout that produced no job, with the reason.
type Unmatched struct {
	Name   string
	Reason string
}

// Result holds the outcome of one pairing pass.
type Result struct {
	Jobs             []Job
	UnmatchedFiles   []Unmatched
	UnmatchedLayouts []Unmatched
}

// filenameRef matches explicit data-file references inside a layout title,
// e.g. "Bestandsbeschrijving Dec_landcode.asc".
var filenameRef = regexp.MustCompile(`([A-Za-z0-9][A-Za-z0-9_-]*)\.(asc|dat|txt)`)

// Pair matches data files to layout candidates. Per layout the ladder is:
// exact base-name match, then substring match, then fuzzy similarity. More
// than one file at the winning rung is ambiguous and yields no job, as does
// one file claimed by more than one layout.
func Pair(files []string, candidates []Candidate) Result {
	var res Result

	claimed := make(map[string][]int) // file -> indices into res.Jobs
	for _, c := range candidates {
		if c.Report.HasErrors() {
			res.UnmatchedLayouts = append(res.UnmatchedLayouts, Unmatched{Name: c.Layout.Name, Reason: ReasonLayoutErrors})
			continue
		}

		matches, matchType := findMatches(c.Layout.Name, files)
		switch {
		case len(matches) == 0:
			res.UnmatchedLayouts = append(res.UnmatchedLayouts, Unmatched{Name: c.Layout.Name, Reason: ReasonNoDataFile})
		case len(matches) > 1:
			slog.Warn("ambiguous layout match",
				"layout", c.Layout.Name,
				"candidates", matches)
			res.UnmatchedLayouts = append(res.UnmatchedLayouts, Unmatched{Name: c.Layout.Name, Reason: ReasonAmbiguous})
		default:
			res.Jobs = append(res.Jobs, Job{DataFile: matches[0], Layout: c.Layout, MatchType: matchType})
			claimed[matches[0]] = append(claimed[matches[0]], len(res.Jobs)-1)
		}
	}

	// A file claimed by more than one layout cannot be decoded safely.
	drop := make(map[int]bool)
	for file, jobIdx := range claimed {
		if len(jobIdx) > 1 {
			slog.Warn("data file claimed by multiple layouts", "file", file, "layouts", len(jobIdx))
			for _, idx := range jobIdx {
				drop[idx] = true
				res.UnmatchedLayouts = append(res.UnmatchedLayouts, Unmatched{Name: res.Jobs[idx].Layout.Name, Reason: ReasonAmbiguous})
			}
			res.UnmatchedFiles = append(res.UnmatchedFiles, Unmatched{Name: file, Reason: ReasonAmbiguous})
		}
	}
	if len(drop) > 0 {
		kept := res.Jobs[:0]
		for i, j := range res.Jobs {
			if !drop[i] {
				kept = append(kept, j)
			}
		}
		res.Jobs = kept
	}

	matched := make(map[string]bool, len(res.Jobs))
	for _, j := range res.Jobs {
		matched[j.DataFile] = true
	}
	for _, f := range files {
		if !matched[f] && !alreadyUnmatched(res.UnmatchedFiles, f) {
			res.UnmatchedFiles = append(res.UnmatchedFiles, Unmatched{Name: f, Reason: ReasonNoLayout})
		}
	}

	return res
}

func alreadyUnmatched(list []Unmatched, name string) bool {
	for _, u := range list {
		if u.Name == name {
			return true
		}
	}
	return false
}

// findMatches walks the matching ladder for one layout name and returns the
// files found at the first rung that produces any, plus the rung label.
func findMatches(layoutName string, files []string) ([]string, string) {
	patterns := extractPatterns(layoutName)

	var exact []string
	for _, f := range files {
		base := normalizeBase(f)
		for _, p := range patterns {
			if base == strings.ToLower(p) {
				exact = append(exact, f)
				break
			}
		}
	}
	if len(exact) > 0 {
		return exact, MatchExact
	}

	var partial []string
	for _, f := range files {
		base := normalizeBase(f)
		for _, p := range patterns {
			if strings.Contains(base, strings.ToLower(p)) {
				partial = append(partial, f)
				break
			}
		}
	}
	if len(partial) > 0 {
		return partial, MatchPartial
	}

	// Fuzzy is the last resort: best-scoring single file above threshold.
	main := layoutName
	if len(patterns) > 0 {
		main = patterns[0]
	}
	best, bestScore := "", 0.0
	for _, f := range files {
		score := Similarity(strings.ToLower(main), normalizeBase(f))
		if score >= FuzzyThreshold && score > bestScore {
			best, bestScore = f, score
		}
	}
	if best != "" {
		return []string{best}, MatchFuzzy
	}
	return nil, ""
}

// extractPatterns pulls candidate base names out of a layout or table name:
// explicit file references first, then the leading word as a fallback.
func extractPatterns(name string) []string {
	var patterns []string
	for _, m := range filenameRef.FindAllStringSubmatch(name, -1) {
		patterns = append(patterns, m[1])
	}
	cleaned := strings.TrimSpace(strings.TrimPrefix(name, "Bestandsbeschrijving"))
	cleaned = strings.Trim(cleaned, " _-")
	if cleaned != "" {
		if idx := strings.IndexAny(cleaned, " _"); idx > 0 {
			patterns = append(patterns, cleaned[:idx])
		} else {
			patterns = append(patterns, cleaned)
		}
	}
	return patterns
}

// normalizeBase lowercases a filename and strips its directory and extension.
func normalizeBase(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Similarity is the Ratcliff/Obershelp ratio between two strings: twice the
// number of matching characters over the total length, matching blocks found
// recursively around the longest common substring.
func Similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	m := matchingChars(a, b)
	return 2.0 * float64(m) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingChars(a[:ai], b[:bi]) + matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// Classic dynamic program over byte positions; inputs are short
	// normalized filenames so the quadratic cost is irrelevant.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}
