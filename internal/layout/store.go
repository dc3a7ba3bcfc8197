package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ceda-hhs/onecho/internal/model"
)

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// LayoutFilename builds the on-disk name for an extracted layout, with
// characters that are invalid in filenames replaced.
func LayoutFilename(docBase string, tableNum int, title string) string {
	safe := unsafeFilenameChars.ReplaceAllString(title, "_")
	return fmt.Sprintf("%s_%d_%s.json", docBase, tableNum, safe)
}

// SaveLayout writes a layout as indented JSON.
func SaveLayout(l *model.Layout, path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling layout %s: %w", l.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing layout file: %w", err)
	}
	return nil
}

// LoadLayout reads a layout JSON file.
func LoadLayout(path string) (*model.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout file: %w", err)
	}
	var l model.Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing layout file %s (%v): %w", path, err, model.ErrLayoutParse)
	}
	if l.RecordLength == 0 {
		l.RecordLength = l.DeriveRecordLength()
	}
	return &l, nil
}

// LoadLayoutDir reads every layout JSON file in a directory, sorted by name.
func LoadLayoutDir(dir string) ([]*model.Layout, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading layout directory: %w", err)
	}
	var layouts []*model.Layout
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		l, err := LoadLayout(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return layouts, nil
}
