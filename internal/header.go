package internal

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/heyvito/reportvault/errors"
)

const dateLayout = "20060102150405"

// Header is the fixed 72-byte preamble shared by index files and page stores.
type Header struct {
	Version  uint16
	Count    uint16
	Created  string
	Modified string
}

// ParseHeader validates the signature at offset zero and decodes the header
// fields. It never guesses: a missing signature yields a FormatError.
func ParseHeader(path string, data []byte, signature []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, errors.FormatError{File: path, Reason: "file is shorter than its header"}
	}
	if !bytes.Equal(data[headerOffsets.Signature:headerOffsets.Signature+SignatureSize], signature) {
		return h, errors.FormatError{File: path, Reason: "signature mismatch"}
	}
	h.Version = le.Uint16(data[headerOffsets.Version:])
	h.Count = le.Uint16(data[headerOffsets.Count:])
	h.Created = DecodeDoubleByte(data[headerOffsets.Created : headerOffsets.Created+DateChars*2])
	h.Modified = DecodeDoubleByte(data[headerOffsets.Modified : headerOffsets.Modified+DateChars*2])
	return h, nil
}

// CreatedTime parses the creation date. The zero time is returned when the
// stored string is blank or malformed.
func (h Header) CreatedTime() time.Time { return parseDate(h.Created) }

// ModifiedTime parses the modification date, following the same rules as
// CreatedTime.
func (h Header) ModifiedTime() time.Time { return parseDate(h.Modified) }

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DecodeDoubleByte decodes a NUL-padded UTF-16LE string.
func DecodeDoubleByte(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := le.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return strings.TrimRight(string(utf16.Decode(units)), " ")
}

func doubleByte(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		le.PutUint16(out[i*2:], u)
	}
	return out
}

// SegmentBounds delimits a segment body inside a file, excluding its marker.
type SegmentBounds struct {
	Start int
	End   int
}

func (s SegmentBounds) Len() int { return s.End - s.Start }

// ScanSegments locates marker-delimited segments after the header. When limit
// is greater than zero, scanning stops once limit markers were found and the
// last segment extends to the end of data.
func ScanSegments(data []byte, limit int) []SegmentBounds {
	var starts []int
	pos := HeaderSize
	for pos <= len(data)-SegmentMarkLen {
		if limit > 0 && len(starts) == limit {
			break
		}
		i := bytes.Index(data[pos:], SegmentMarker)
		if i < 0 {
			break
		}
		starts = append(starts, pos+i)
		pos += i + SegmentMarkLen
	}

	bounds := make([]SegmentBounds, len(starts))
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		bounds[i] = SegmentBounds{Start: s + SegmentMarkLen, End: end}
	}
	return bounds
}
