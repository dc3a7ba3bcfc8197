package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"", "latin-1", "latin1", "Latin-1", "ISO-8859-1", "iso_8859_1"} {
		enc, err := Lookup(name)
		require.NoError(t, err, name)
		require.NotNil(t, enc, name)
	}

	_, err := Lookup("ebcdic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestNewDecoder_Latin1(t *testing.T) {
	dec, err := NewDecoder("latin-1")
	require.NoError(t, err)

	out, err := dec.Bytes([]byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
}

func TestNewDecoder_Windows1252(t *testing.T) {
	dec, err := NewDecoder("windows-1252")
	require.NoError(t, err)

	// 0x80 is the euro sign in windows-1252, undefined in latin-1.
	out, err := dec.Bytes([]byte{0x80})
	require.NoError(t, err)
	assert.Equal(t, "€", string(out))
}
