package anonymize

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceda-hhs/onecho/internal/model"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNew_RequiresSalt(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrEmptySalt)

	a, err := New(Config{Salt: "s3cret"})
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestNew_DefaultColumns(t *testing.T) {
	a, err := New(Config{Salt: "s3cret"})
	require.NoError(t, err)

	for _, c := range DefaultColumns {
		assert.True(t, a.Sensitive(c), c)
	}
	assert.False(t, a.Sensitive("Naam land"))
}

func TestDigest(t *testing.T) {
	a, err := New(Config{Salt: "s3cret"})
	require.NoError(t, err)

	d1 := a.Digest("123456789")
	d2 := a.Digest("123456789")
	d3 := a.Digest("987654321")

	assert.Equal(t, d1, d2, "same input must digest identically within a run")
	assert.NotEqual(t, d1, d3, "distinct inputs must stay distinguishable")
	assert.Regexp(t, hexDigest, d1)
	assert.NotContains(t, d1, "s3cret")
	assert.NotContains(t, d1, "123456789")
}

func TestDigest_SaltChangesOutput(t *testing.T) {
	a1, err := New(Config{Salt: "salt-one"})
	require.NoError(t, err)
	a2, err := New(Config{Salt: "salt-two"})
	require.NoError(t, err)

	assert.NotEqual(t, a1.Digest("123456789"), a2.Digest("123456789"))
}

func TestDigest_EmptyValuePassesThrough(t *testing.T) {
	a, err := New(Config{Salt: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "", a.Digest(""))
}

func TestColumnMaskAndApplyRow(t *testing.T) {
	a, err := New(Config{Salt: "s3cret", Columns: []string{"Burgerservicenummer"}})
	require.NoError(t, err)

	l := &model.Layout{
		Fields: []model.FieldSpec{
			{Name: "Burgerservicenummer", Start: 1, Length: 9},
			{Name: "Geboortedatum", Start: 10, Length: 8},
		},
		RecordLength: 17,
	}

	mask := a.ColumnMask(l)
	require.Equal(t, []bool{true, false}, mask)

	row := model.DecodedRow{"123456789", "20000101"}
	a.ApplyRow(row, mask)
	assert.Regexp(t, hexDigest, row[0])
	assert.Equal(t, "20000101", row[1])
}

func TestColumnMask_UsesOriginalNames(t *testing.T) {
	// The mask is computed before any case-style renaming; the original
	// Dutch column headings are what designate sensitivity.
	a, err := New(Config{Salt: "s3cret"})
	require.NoError(t, err)

	l := &model.Layout{
		Fields: []model.FieldSpec{
			{Name: "Persoonsgebonden nummer", Start: 1, Length: 9},
			{Name: "Naam land", Start: 10, Length: 40},
		},
		RecordLength: 49,
	}
	assert.Equal(t, []bool{true, false}, a.ColumnMask(l))
}

func TestRules(t *testing.T) {
	a, err := New(Config{Salt: "s3cret", Columns: []string{"Onderwijsnummer"}})
	require.NoError(t, err)
	rules := a.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "Onderwijsnummer", rules[0].Column)
}
