package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceda-hhs/onecho/internal/model"
)

func TestLayoutFilename(t *testing.T) {
	assert.Equal(t, "Dec_landcode_1_Landcodes.json", LayoutFilename("Dec_landcode", 1, "Landcodes"))
	assert.Equal(t, "doc_2_a_b_c_.json", LayoutFilename("doc", 2, `a/b:c?`))
}

func TestSaveLoadLayout(t *testing.T) {
	dir := t.TempDir()
	l := contiguousLayout()

	path := filepath.Join(dir, LayoutFilename("Dec_landcode", 1, l.Name))
	require.NoError(t, SaveLayout(l, path))

	loaded, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, l, loaded)
}

func TestLoadLayout_DerivesRecordLength(t *testing.T) {
	dir := t.TempDir()
	l := contiguousLayout()
	l.RecordLength = 0

	path := filepath.Join(dir, "layout.json")
	require.NoError(t, SaveLayout(l, path))

	loaded, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.RecordLength)
}

func TestLoadLayoutDir(t *testing.T) {
	dir := t.TempDir()

	a := contiguousLayout()
	a.Name = "b_second"
	require.NoError(t, SaveLayout(a, filepath.Join(dir, "b_second.json")))
	b := contiguousLayout()
	b.Name = "a_first"
	require.NoError(t, SaveLayout(b, filepath.Join(dir, "a_first.json")))
	require.NoError(t, SaveLayout(contiguousLayout(), filepath.Join(dir, "notes.txt")))

	layouts, err := LoadLayoutDir(dir)
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, "a_first", layouts[0].Name)
	assert.Equal(t, "b_second", layouts[1].Name)
}

func TestLoadLayout_BadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadLayout(path)
	require.ErrorIs(t, err, model.ErrLayoutParse)
	assert.Contains(t, err.Error(), "parsing layout file")
}
