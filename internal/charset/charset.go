// Package charset resolves declared source encodings to x/text decoders.
// Education data deliveries are byte-encoded in legacy single-byte charsets;
// every file declares exactly one encoding.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DefaultName is the encoding assumed when a file declares none. The national
// education register delivers latin-1 byte streams.
const DefaultName = "latin-1"

// Lookup resolves an encoding name to its x/text encoding. Names are
// normalized so "latin1", "Latin-1" and "iso-8859-1" all resolve identically.
func Lookup(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultName
	}
	normalized := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(name, "-", ""), "_", ""))
	switch normalized {
	case "latin1", "iso88591":
		return charmap.ISO8859_1, nil
	case "windows1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf8":
		return unicode.UTF8, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// NewDecoder returns a decoder for the named encoding. Undecodable bytes are
// replaced with U+FFFD rather than failing the stream, so decoding artifacts
// in description documents pass through as unknown-character markers.
func NewDecoder(name string) (*encoding.Decoder, error) {
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder(), nil
}
