package internal

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextEncoding names how a report's page text is stored once inflated.
type TextEncoding string

const (
	EncodingLatin1  TextEncoding = "latin1"
	EncodingCP1252  TextEncoding = "cp1252"
	EncodingUTF16LE TextEncoding = "utf-16le"
	EncodingUTF8    TextEncoding = "utf-8"
)

// ParseTextEncoding normalises an encoding hint. An empty hint selects
// single-byte Latin text, which also covers plain ASCII reports.
func ParseTextEncoding(hint string) (TextEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "ascii", "us-ascii", "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	case "cp1252", "windows-1252":
		return EncodingCP1252, nil
	case "utf-16le", "utf16le", "utf-16", "ucs-2":
		return EncodingUTF16LE, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	}
	return "", fmt.Errorf("unsupported text encoding %q", hint)
}

func (e TextEncoding) encoding() encoding.Encoding {
	switch e {
	case EncodingCP1252:
		return charmap.Windows1252
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case EncodingUTF8:
		return unicode.UTF8
	default:
		return charmap.ISO8859_1
	}
}

// decoder differs from encoding for the Unicode forms: a leading byte order
// mark is consumed instead of surfacing as U+FEFF in the first line.
func (e TextEncoding) decoder() *encoding.Decoder {
	switch e {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	case EncodingUTF8:
		return unicode.UTF8BOM.NewDecoder()
	default:
		return e.encoding().NewDecoder()
	}
}

// Decode converts raw page bytes to UTF-8.
func (e TextEncoding) Decode(raw []byte) (string, error) {
	out, err := e.decoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", e, err)
	}
	return string(out), nil
}

// Encode converts UTF-8 text to the encoding. Only tests build page data.
func (e TextEncoding) Encode(text string) ([]byte, error) {
	return e.encoding().NewEncoder().Bytes([]byte(text))
}

// SplitLines splits page text at CRLF or LF boundaries. A trailing line
// terminator does not produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
