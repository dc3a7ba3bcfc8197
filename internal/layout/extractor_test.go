package layout

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceda-hhs/onecho/internal/model"
)

// tableHeader builds a header line with the labels at fixed columns, the way
// the record descriptions lay them out.
func tableHeader() string {
	return fmt.Sprintf("%-32s%s  %s", "Naam", "Startpositie", "Aantal posities")
}

// fieldLine builds a body line with the integers right-aligned under the
// header labels.
func fieldLine(name string, start, length int) string {
	return fmt.Sprintf("%-32s%12d%17d", name, start, length)
}

func TestExtract_SingleTable(t *testing.T) {
	doc := strings.Join([]string{
		"Bestandsbeschrijving Dec_landcode.asc",
		"=====================================",
		"",
		tableHeader(),
		fieldLine("Code land", 1, 4),
		fieldLine("Naam land", 5, 40),
		fieldLine("Migratieachtergrond kort", 45, 1),
		fieldLine("Naam migratieachtergrond kort", 46, 12),
		fieldLine("Migratieachtergrond lang", 58, 2),
		fieldLine("Naam migratieachtergrond lang", 60, 32),
		"* Codes volgens de landentabel",
		"",
		"Trailing prose outside any table.",
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "Dec_landcode.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)

	table := result.Tables[0]
	assert.Equal(t, "Bestandsbeschrijving Dec_landcode.asc", table.Title)
	assert.Equal(t, 1, table.Number)
	assert.Equal(t, "Dec_landcode.txt#1", table.Layout.SourceDocument)
	assert.Equal(t, 91, table.Layout.RecordLength)
	assert.Equal(t, []string{"* Codes volgens de landentabel"}, table.Layout.Notes)

	require.Len(t, table.Layout.Fields, 6)
	first := table.Layout.Fields[0]
	assert.Equal(t, "Code land", first.Name)
	assert.Equal(t, 1, first.Start)
	assert.Equal(t, 4, first.Length)
	last := table.Layout.Fields[5]
	assert.Equal(t, "Naam migratieachtergrond lang", last.Name)
	assert.Equal(t, 60, last.Start)
	assert.Equal(t, 32, last.Length)
	assert.False(t, result.Report.HasErrors())
}

func TestExtract_InferredKinds(t *testing.T) {
	doc := strings.Join([]string{
		tableHeader(),
		fieldLine("Datum inschrijving", 1, 8),
		fieldLine("Code opleiding", 9, 5),
		fieldLine("Indicatie bekostiging", 14, 1),
		fieldLine("Inschrijvingsjaar", 15, 4),
		fieldLine("Naam instelling", 19, 40),
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "kinds.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)

	fields := result.Tables[0].Layout.Fields
	require.Len(t, fields, 5)
	assert.Equal(t, model.KindDate, fields[0].InferredKind)
	assert.Equal(t, model.KindCode, fields[1].InferredKind)
	assert.Equal(t, model.KindCode, fields[2].InferredKind)
	assert.Equal(t, model.KindInteger, fields[3].InferredKind)
	assert.Equal(t, model.KindText, fields[4].InferredKind)
}

func TestExtract_DerivedLength(t *testing.T) {
	// "Geslacht" declares no length; it must be derived from the next
	// field's start position and reported as a warning.
	doc := strings.Join([]string{
		tableHeader(),
		fieldLine("Burgerservicenummer", 1, 9),
		fmt.Sprintf("%-32s%12d", "Geslacht", 10),
		fieldLine("Geboortedatum", 11, 8),
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "derived.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)

	l := result.Tables[0].Layout
	require.Len(t, l.Fields, 3)
	assert.Equal(t, 1, l.Fields[1].Length)
	assert.Equal(t, 18, l.RecordLength)

	assert.False(t, result.Report.HasErrors())
	require.GreaterOrEqual(t, result.Report.Count(model.SeverityWarning), 1)
	assert.Contains(t, result.Report.Entries[0].Message, "derived")
}

func TestExtract_UnderivableLengthDropped(t *testing.T) {
	// The last field has no length and no successor to derive it from.
	doc := strings.Join([]string{
		tableHeader(),
		fieldLine("Code land", 1, 4),
		fmt.Sprintf("%-32s%12d", "Naam land", 5),
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "dropped.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)

	l := result.Tables[0].Layout
	require.Len(t, l.Fields, 1)
	assert.Equal(t, "Code land", l.Fields[0].Name)
	assert.True(t, result.Report.HasErrors())
}

func TestExtract_UntitledTable(t *testing.T) {
	doc := strings.Join([]string{
		tableHeader(),
		fieldLine("Code land", 1, 4),
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "untitled.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "untitled_table_1", result.Tables[0].Title)
}

func TestExtract_MultipleTables(t *testing.T) {
	doc := strings.Join([]string{
		"Eerste bestand",
		"--------------",
		tableHeader(),
		fieldLine("Code land", 1, 4),
		"",
		"Tweede bestand",
		"--------------",
		tableHeader(),
		fieldLine("Brin nummer", 1, 6),
		fieldLine("Naam instelling", 7, 50),
		"",
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "multi.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "Eerste bestand", result.Tables[0].Title)
	assert.Equal(t, "Tweede bestand", result.Tables[1].Title)
	assert.Equal(t, 2, result.Tables[1].Number)
	assert.Equal(t, 56, result.Tables[1].Layout.RecordLength)
}

func TestExtract_BadTableDoesNotAbortDocument(t *testing.T) {
	// The first table body carries no parseable field lines; the second
	// table must still come out.
	doc := strings.Join([]string{
		tableHeader(),
		"niets bruikbaars hier",
		"",
		"Goede tabel",
		"-----------",
		tableHeader(),
		fieldLine("Code land", 1, 4),
		"",
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "partial.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "Goede tabel", result.Tables[0].Title)
	assert.True(t, result.Report.HasErrors())
}

func TestExtract_InlineLabels(t *testing.T) {
	// Wrapped descriptions repeat the header labels inside a field line.
	doc := strings.Join([]string{
		tableHeader(),
		fieldLine("Code land", 1, 4),
		"Naam land Startpositie 5 Aantal posities 40 officiele naam",
	}, "\n")

	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader(doc), "inline.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)

	l := result.Tables[0].Layout
	require.Len(t, l.Fields, 2)
	assert.Equal(t, "Naam land", l.Fields[1].Name)
	assert.Equal(t, 5, l.Fields[1].Start)
	assert.Equal(t, 40, l.Fields[1].Length)
	assert.Equal(t, "officiele naam", l.Fields[1].Comment)
}

func TestExtract_Latin1FieldNames(t *testing.T) {
	// 0xE9 is é in latin-1. The field name must come out as UTF-8.
	line := fieldLine("Gespecificeerd niveau", 1, 2)
	raw := []byte(tableHeader() + "\n" + line)
	raw = bytes.Replace(raw, []byte("Ge"), []byte{'G', 0xE9}, 1)

	e := NewExtractor(Options{Encoding: "latin-1"})
	result, err := e.Extract(bytes.NewReader(raw), "accents.txt")
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	require.Len(t, result.Tables[0].Layout.Fields, 1)
	assert.Equal(t, "Géspecificeerd niveau", result.Tables[0].Layout.Fields[0].Name)
}

func TestExtract_NoTables(t *testing.T) {
	e := NewExtractor(Options{})
	result, err := e.Extract(strings.NewReader("prose only, no header line\n"), "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, result.Tables)
}
