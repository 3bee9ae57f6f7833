package reportvault

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-stdlog/stdlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/testutil"
)

const testCatalog = `
reports:
  - id: EXTRATO
    structure: STMT01
    encoding: latin1
    segment_count: 2
    templates:
      - {line_id: 1, name: header, pattern: "AGENCIA: 999"}
      - {line_id: 2, name: detail, pattern: "999-999999-9  AAAAAAAAAA  9999.99"}
    fields:
      - {name: branch, line_id: 1, field_id: 1, start: 10, end: 12, significant: true}
      - {name: account, line_id: 2, field_id: 1, start: 1, end: 12, indexed: true}
      - {name: name, line_id: 2, field_id: 2, start: 15, end: 24}
      - {name: amount, line_id: 2, field_id: 3, start: 27, end: 33, trim: both}
    sections:
      - {id: 1, name: "501", start_page: 1, page_count: 2}
      - {id: 2, name: "305", start_page: 3, page_count: 1}
`

const account = "123-456789-0"

func statementPages() []testutil.Page {
	return []testutil.Page{
		{Number: 1, Text: "AGENCIA: 501\n123-456789-0  JOHN SMITH  0100.00\n111-111111-1  ANNA BLOOM  0001.50\n"},
		{Number: 2, Text: "123-456789-0  JOHN SMITH  0042.10\n", RawDeflate: true},
		{Number: 3, Text: "AGENCIA: 305\n222-222222-2  MARY JONES  0007.00\n123-456789-0  JOHN SMITH  0099.99\n"},
	}
}

func statementIndex() testutil.Index {
	return testutil.Index{
		Lookups: []testutil.Lookup{{Segment: 1, Line: 2, Field: 1}},
		Significants: []testutil.Significant{
			{Line: 1, Field: 1, Value: "501", StartPage: 1, PageCount: 2},
			{Line: 1, Field: 1, Value: "305", StartPage: 3, PageCount: 1},
		},
		Segments: []testutil.FieldSegment{{
			Width: 12,
			Entries: []testutil.Entry{
				{Value: "111-111111-1", Page: 1},
				{Value: account, Page: 1},
				{Value: account, Page: 2},
				{Value: account, Page: 3},
				{Value: "222-222222-2", Page: 3},
			},
		}},
	}
}

func statementSections() []testutil.Section {
	return []testutil.Section{
		{ID: 1, Name: "501", StartPage: 1, PageCount: 2},
		{ID: 2, Name: "305", StartPage: 3, PageCount: 1},
	}
}

func writeStatement(t *testing.T, dir, revision string, pages []testutil.Page) {
	t.Helper()
	pag := testutil.PageStore{Pages: pages, Sections: statementSections()}
	testutil.WriteFile(t, dir, "EXTRATO_"+revision+".idx", statementIndex().Bytes())
	testutil.WriteFile(t, dir, "EXTRATO_"+revision+".pag", pag.Bytes())
}

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	testutil.WriteFile(t, filepath.Dir(path), filepath.Base(path), []byte(testCatalog))
	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	e, err := New(Config{
		ArchiveRoot:    root,
		Catalog:        cat,
		Workers:        2,
		OpenRetryDelay: time.Millisecond,
		Logger:         stdlog.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func recordPages(records []MatchedRecord) []int {
	var pages []int
	for _, r := range records {
		pages = append(pages, r.Page)
	}
	return pages
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Catalog: &Catalog{}})
	require.Error(t, err)

	_, err = New(Config{ArchiveRoot: t.TempDir()})
	require.Error(t, err)

	file := testutil.WriteFile(t, t.TempDir(), "file", []byte("x"))
	_, err = New(Config{ArchiveRoot: file, Catalog: &Catalog{}})
	require.Error(t, err)
}

func TestQueryAcrossSections(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"501", "305"},
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, "20250415", res.Revision)
	assert.Equal(t, []int{1, 2, 3}, recordPages(res.Records))
	assert.Equal(t, QueryStats{
		IndexMatches:    3,
		CandidatePages:  3,
		AuthorizedPages: 3,
		PagesRead:       3,
		LinesClassified: 7,
	}, res.Stats)
	assert.Empty(t, res.Failures)
	assert.Empty(t, res.Warnings)

	first := res.Records[0]
	assert.Equal(t, "EXTRATO", first.Report)
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, 2, first.LineID)
	assert.Equal(t, "detail", first.LineName)
	assert.Equal(t, map[string]string{
		"account": account,
		"name":    "JOHN SMITH",
		"amount":  "0100.00",
	}, first.Fields)

	last := res.Records[2]
	assert.Equal(t, 3, last.Line)
	assert.Equal(t, "0099.99", last.Fields["amount"])
}

func TestQuerySectionFilter(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"305"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, recordPages(res.Records))
	assert.Equal(t, 3, res.Stats.CandidatePages)
	assert.Equal(t, 1, res.Stats.AuthorizedPages)

	res, err = e.Query(context.Background(), Request{
		Report: "EXTRATO",
		Field:  "account",
		Value:  account,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.Empty(t, res.Records)
	assert.Equal(t, 3, res.Stats.IndexMatches)
	assert.Equal(t, 0, res.Stats.AuthorizedPages)
	assert.Equal(t, 0, res.Stats.PagesRead)
}

func TestQueryWithoutMatches(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              "999-999999-9",
		AuthorizedSections: []string{"501"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Equal(t, QueryStats{}, res.Stats)
}

func TestQueryErrors(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)
	ctx := context.Background()

	_, err := e.Query(ctx, Request{Report: "EXTRATO", Field: "nope", Value: "x"})
	require.ErrorAs(t, err, &errors.UnknownField{})
	assert.True(t, strings.HasPrefix(err.Error(), "resolve: "))

	_, err = e.Query(ctx, Request{Report: "EXTRATO", Field: "name", Value: "JOHN SMITH"})
	var notIndexed errors.NotIndexed
	require.ErrorAs(t, err, &notIndexed)
	assert.Equal(t, 2, notIndexed.LineID)
	assert.Equal(t, 2, notIndexed.FieldID)
	assert.True(t, strings.HasPrefix(err.Error(), "index lookup: "))

	_, err = e.Query(ctx, Request{Report: "OTHER", Field: "account", Value: account})
	require.ErrorAs(t, err, &errors.ReportNotFound{})

	_, err = e.Query(ctx, Request{Report: "EXTRATO", Revision: "2019", Field: "account", Value: account})
	require.ErrorAs(t, err, &errors.ReportNotFound{})
}

func TestQueryFormatError(t *testing.T) {
	root := t.TempDir()
	bad := make([]byte, 128)
	copy(bad, "not an index file")
	testutil.WriteFile(t, root, "EXTRATO_20250415.idx", bad)
	testutil.WriteFile(t, root, "EXTRATO_20250415.pag", testutil.PageStore{Pages: statementPages()}.Bytes())
	e := newTestEngine(t, root)

	_, err := e.Query(context.Background(), Request{Report: "EXTRATO", Field: "account", Value: account})
	require.ErrorAs(t, err, &errors.FormatError{})
	assert.True(t, strings.HasPrefix(err.Error(), "open: "))
}

func TestQueryContinuesPastCorruptPage(t *testing.T) {
	root := t.TempDir()
	pages := statementPages()
	pages[1].Block = testutil.CorruptBlock
	writeStatement(t, root, "20250415", pages)
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"501", "305"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, recordPages(res.Records))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Page)
	assert.Equal(t, 2, res.Stats.PagesRead)
}

func TestQueryIsRepeatable(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	req := Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"305", "501"},
	}

	var outputs [][]byte
	for range 2 {
		e := newTestEngine(t, root)
		for range 2 {
			res, err := e.Query(context.Background(), req)
			require.NoError(t, err)
			data, err := json.Marshal(res)
			require.NoError(t, err)
			outputs = append(outputs, data)
		}
	}
	for _, o := range outputs[1:] {
		assert.Equal(t, string(outputs[0]), string(o))
	}
}

func TestQueryAllLines(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"305"},
		AllLines:           true,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "header", res.Records[0].LineName)
	assert.Equal(t, map[string]string{"branch": "305"}, res.Records[0].Fields)
	assert.Equal(t, "222-222222-2", res.Records[1].Fields["account"])
	assert.Equal(t, account, res.Records[2].Fields["account"])
}

func TestQuerySelectsRevision(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250115", statementPages())
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)
	ctx := context.Background()
	req := Request{Report: "EXTRATO", Field: "account", Value: account, AuthorizedSections: []string{"305"}}

	res, err := e.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "20250415", res.Revision)

	req.Revision = "202501"
	res, err = e.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "20250115", res.Revision)
	assert.Equal(t, "20250115", res.Records[0].Revision)

	writeStatement(t, root, "20250601", statementPages())
	req.Revision = ""
	res, err = e.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "20250415", res.Revision)

	e.Refresh()
	res, err = e.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "20250601", res.Revision)
}

func TestQueryOccurrenceLayout(t *testing.T) {
	root := t.TempDir()
	idx := testutil.Index{
		Lookups:     []testutil.Lookup{{Segment: 1, Line: 2, Field: 1}},
		Occurrences: []testutil.Occurrence{{Occurrence: 7, Page: 3}, {Occurrence: 8, Page: 1}},
		Segments: []testutil.FieldSegment{{
			Width:  12,
			Layout: testutil.OccurrenceIndex,
			Entries: []testutil.Entry{
				{Value: account, Occurrence: 7},
				{Value: account, Occurrence: 8},
				{Value: account, Occurrence: 9},
			},
		}},
	}
	pag := testutil.PageStore{Pages: statementPages(), Sections: statementSections()}
	testutil.WriteFile(t, root, "EXTRATO_20250415.idx", idx.Bytes())
	testutil.WriteFile(t, root, "EXTRATO_20250415.pag", pag.Bytes())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"501", "305"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, recordPages(res.Records))
	assert.Equal(t, 3, res.Stats.IndexMatches)
	assert.Equal(t, 2, res.Stats.CandidatePages)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, errors.WarnOccurrenceUnresolved, res.Warnings[0].Kind)
}

func TestQueryCanceled(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Query(ctx, Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"501"},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestResultCursor(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	e := newTestEngine(t, root)

	res, err := e.Query(context.Background(), Request{
		Report:             "EXTRATO",
		Field:              "account",
		Value:              account,
		AuthorizedSections: []string{"501", "305"},
	})
	require.NoError(t, err)

	cur := res.Cursor()
	var offsets []int64
	var pages []int
	for cur.Next() {
		offsets = append(offsets, cur.Offset())
		pages = append(pages, cur.Record().Page)
	}
	assert.Equal(t, []int64{0, 1, 2}, offsets)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.False(t, cur.Next())

	empty := (&Result{}).Cursor()
	assert.False(t, empty.Next())
}

func TestInspect(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250415", statementPages())
	writeStatement(t, root, "20250301", statementPages())
	e := newTestEngine(t, root)

	in, err := e.Inspect(context.Background(), "EXTRATO", "")
	require.NoError(t, err)

	assert.Equal(t, "20250415", in.Revision)
	assert.Equal(t, []string{"20250301", "20250415"}, in.Revisions)
	assert.Equal(t, 2, in.Index.Segments)
	assert.Equal(t, 2, in.Index.DeclaredSegments)
	require.Len(t, in.Index.Lookups, 1)
	assert.Equal(t, "account", in.Index.Lookups[0].Field)
	require.Len(t, in.Index.Fields, 1)
	assert.Equal(t, SegmentSummary{
		Segment:     1,
		StoredWidth: 12,
		EntrySize:   19,
		Layout:      "direct-page",
		Entries:     5,
		Sorted:      true,
	}, in.Index.Fields[0])
	assert.Len(t, in.Index.Significant, 2)

	assert.Equal(t, 3, in.Pages.PageCount)
	assert.Equal(t, 3, in.Pages.PagesPresent)
	assert.Equal(t, "latin1", in.Pages.Encoding)
	assert.Equal(t, in.Pages.Sections, in.DerivedSections)
	assert.Empty(t, in.Warnings)
}

func TestInspectWithoutDefinition(t *testing.T) {
	root := t.TempDir()
	pag := testutil.PageStore{Pages: statementPages()}
	testutil.WriteFile(t, root, "LOOSE_20250415.idx", statementIndex().Bytes())
	testutil.WriteFile(t, root, "LOOSE_20250415.pag", pag.Bytes())
	e := newTestEngine(t, root)

	in, err := e.Inspect(context.Background(), "LOOSE", "")
	require.NoError(t, err)
	require.Len(t, in.Index.Lookups, 1)
	assert.Empty(t, in.Index.Lookups[0].Field)
	assert.Empty(t, in.Pages.Sections)
}
