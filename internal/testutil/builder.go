// Package testutil builds synthetic index files and page stores. It encodes
// the archive formats on its own, without relying on the parsers under test.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var le = binary.LittleEndian

var Marker = []byte{0xA5, 0x5A, 0xC3, 0x3C, 0x96, 0x69, 0xF0, 0x0F}

const (
	DefaultCreated  = "20250415083000"
	DefaultModified = "20250415093000"
)

func doubleByte(s string, chars int) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, chars*2)
	for i := 0; i < chars && i < len(units); i++ {
		le.PutUint16(out[i*2:], units[i])
	}
	return out
}

func header(signature string, version, count uint16, created, modified string) []byte {
	if created == "" {
		created = DefaultCreated
	}
	if modified == "" {
		modified = DefaultModified
	}
	buf := &bytes.Buffer{}
	buf.Write(doubleByte(signature, 6))
	_ = binary.Write(buf, le, version)
	_ = binary.Write(buf, le, count)
	buf.Write(doubleByte(created, 14))
	buf.Write(doubleByte(modified, 14))
	return buf.Bytes()
}

type Lookup struct {
	Segment, Line, Field, Flags uint8
}

type Occurrence struct {
	Occurrence uint32
	Page       uint16
}

type Significant struct {
	Line, Field uint8
	Value       string
	StartPage   uint16
	PageCount   uint16
}

// Entry is a field segment entry. Page is written by direct-page segments,
// Occurrence by occurrence-index segments.
type Entry struct {
	Value      string
	Page       uint16
	Occurrence uint32
	Trailer    []byte
}

type SegmentLayout int

const (
	DirectPage SegmentLayout = iota
	OccurrenceIndex
)

type FieldSegment struct {
	Width  int
	Layout SegmentLayout
	// EntrySize overrides the size derived from Width and Layout.
	EntrySize int
	Entries   []Entry
	// Tail is appended after the entries verbatim.
	Tail []byte
}

func (f FieldSegment) entrySize() int {
	if f.EntrySize != 0 {
		return f.EntrySize
	}
	if f.Layout == OccurrenceIndex {
		return f.Width + 5
	}
	return f.Width + 7
}

// Index describes an index file. DeclaredSegments of zero writes the actual
// segment count into the header.
type Index struct {
	Version          uint16
	DeclaredSegments int
	Created          string
	Modified         string

	Lookups      []Lookup
	Occurrences  []Occurrence
	Significants []Significant
	Segments     []FieldSegment
	// OmitTrailingTables stops the master segment after the lookup records.
	OmitTrailingTables bool
}

func (x Index) Bytes() []byte {
	declared := x.DeclaredSegments
	if declared == 0 {
		declared = len(x.Segments) + 1
	}
	buf := &bytes.Buffer{}
	buf.Write(header("RPTIDX", x.Version, uint16(declared), x.Created, x.Modified))

	buf.Write(Marker)
	for _, l := range x.Lookups {
		buf.Write([]byte{l.Segment, l.Line, l.Field, l.Flags})
	}
	if !x.OmitTrailingTables {
		buf.Write(make([]byte, 8))
		_ = binary.Write(buf, le, uint32(len(x.Occurrences)))
		for _, o := range x.Occurrences {
			_ = binary.Write(buf, le, o.Occurrence)
			_ = binary.Write(buf, le, o.Page)
			_ = binary.Write(buf, le, uint16(0))
		}
		_ = binary.Write(buf, le, uint16(len(x.Significants)))
		for _, s := range x.Significants {
			buf.Write([]byte{s.Line, s.Field, uint8(len(s.Value))})
			buf.WriteString(s.Value)
			_ = binary.Write(buf, le, s.StartPage)
			_ = binary.Write(buf, le, s.PageCount)
		}
	}

	for _, seg := range x.Segments {
		buf.Write(Marker)
		_ = binary.Write(buf, le, uint16(seg.Width))
		_ = binary.Write(buf, le, uint16(seg.entrySize()))
		for _, e := range seg.Entries {
			buf.Write(seg.encodeEntry(e))
		}
		buf.Write(seg.Tail)
	}
	return buf.Bytes()
}

func (f FieldSegment) encodeEntry(e Entry) []byte {
	out := make([]byte, f.entrySize())
	copy(out, bytes.Repeat([]byte{' '}, f.Width))
	copy(out[:f.Width], e.Value)
	rest := out[f.Width:]
	if f.Layout == OccurrenceIndex {
		le.PutUint32(rest, e.Occurrence)
		copy(rest[4:], e.Trailer)
		return out
	}
	le.PutUint16(rest, e.Page)
	copy(rest[4:], e.Trailer)
	return out
}

// Page is a single page of a page store.
type Page struct {
	Number int
	Text   string
	// RawDeflate stores the block without the zlib wrapper.
	RawDeflate bool
	// Block replaces the compressed block verbatim.
	Block []byte
}

type Section struct {
	ID        uint32
	Name      string
	StartPage uint32
	PageCount uint32
}

// PageStore describes a page store. DeclaredPages of zero writes the highest
// page number into the header.
type PageStore struct {
	Version       uint16
	DeclaredPages int
	Created       string
	Modified      string
	Encoding      string

	Pages    []Page
	Sections []Section
}

func (p PageStore) Bytes() []byte {
	var data bytes.Buffer
	var table bytes.Buffer
	highest := 0
	for _, pg := range p.Pages {
		block := pg.Block
		if block == nil {
			block = compress(encodeText(p.Encoding, pg.Text), pg.RawDeflate)
		}
		_ = binary.Write(&table, le, uint32(pg.Number))
		_ = binary.Write(&table, le, uint32(data.Len()))
		_ = binary.Write(&table, le, uint32(len(block)))
		data.Write(block)
		highest = max(highest, pg.Number)
	}

	declared := p.DeclaredPages
	if declared == 0 {
		declared = highest
	}

	buf := &bytes.Buffer{}
	buf.Write(header("RPTPAG", p.Version, uint16(declared), p.Created, p.Modified))
	buf.Write(Marker)
	buf.Write(table.Bytes())
	buf.Write(Marker)
	_ = binary.Write(buf, le, uint16(len(p.Sections)))
	for _, s := range p.Sections {
		_ = binary.Write(buf, le, s.ID)
		buf.Write(doubleByte(s.Name, 8))
		_ = binary.Write(buf, le, s.StartPage)
		_ = binary.Write(buf, le, s.PageCount)
	}
	buf.Write(Marker)
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func encodeText(enc, text string) []byte {
	var out []byte
	var err error
	switch enc {
	case "utf-16le":
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(text))
	case "utf-8":
		return []byte(text)
	default:
		out, err = charmap.ISO8859_1.NewEncoder().Bytes([]byte(text))
	}
	if err != nil {
		panic(err)
	}
	return out
}

func compress(raw []byte, rawDeflate bool) []byte {
	buf := &bytes.Buffer{}
	if rawDeflate {
		w, err := flate.NewWriter(buf, flate.DefaultCompression)
		if err != nil {
			panic(err)
		}
		_, _ = w.Write(raw)
		_ = w.Close()
		return buf.Bytes()
	}
	w := zlib.NewWriter(buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return buf.Bytes()
}

// CorruptBlock is a block that fails to inflate: its first byte selects the
// reserved DEFLATE block type.
var CorruptBlock = []byte{0x6E, 0x6F, 0x74, 0x20, 0x61, 0x20, 0x62, 0x6C, 0x6F, 0x63, 0x6B}

// WriteFile writes data under dir and returns its path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
