package reportvault

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/RoaringBitmap/roaring"
	"github.com/go-stdlog/stdlog"
	"golang.org/x/sync/errgroup"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal"
	"github.com/heyvito/reportvault/internal/archive"
	"github.com/heyvito/reportvault/internal/catalog"
	"github.com/heyvito/reportvault/internal/metrics"
)

// Engine answers field-value queries against an archive root. It is safe for
// concurrent use; parsed archive files are shared between queries.
type Engine struct {
	config   Config
	log      stdlog.Logger
	archives *internal.ArchiveCache
	catalog  *catalog.Cache

	invMu     sync.Mutex
	inventory *archive.Inventory
}

func New(config Config) (*Engine, error) {
	if config.ArchiveRoot == "" {
		return nil, fmt.Errorf("cannot initialize engine without ArchiveRoot")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("cannot initialize engine without Catalog")
	}
	stat, err := os.Stat(config.ArchiveRoot)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s: exists and is not a directory", config.ArchiveRoot)
	}

	config = config.withDefaults()
	log := config.GetLogger()
	log.Info("Engine is initializing",
		"ArchiveRoot", config.ArchiveRoot,
		"Workers", config.Workers,
		"UseMmap", config.UseMmap,
	)

	return &Engine{
		config:   config,
		log:      log.Named("engine"),
		archives: internal.NewArchiveCache(config),
		catalog:  catalog.NewCache(config.Catalog),
	}, nil
}

// Close releases every archive file opened by the engine. Results obtained
// before Close remain valid.
func (e *Engine) Close() error {
	return e.archives.Close()
}

// Refresh discards the cached archive inventory, so newly added revisions are
// seen by the next query.
func (e *Engine) Refresh() {
	e.invMu.Lock()
	e.inventory = nil
	e.invMu.Unlock()
}

func (e *Engine) locate(report, qualifier string) (archive.Pair, error) {
	e.invMu.Lock()
	defer e.invMu.Unlock()
	if e.inventory != nil {
		if p, err := e.inventory.Resolve(report, qualifier); err == nil {
			return p, nil
		}
	}
	inv, err := archive.Discover(e.config.ArchiveRoot)
	if err != nil {
		return archive.Pair{}, err
	}
	e.inventory = inv
	return inv.Resolve(report, qualifier)
}

func (e *Engine) revisions(report string) []string {
	e.invMu.Lock()
	defer e.invMu.Unlock()
	if e.inventory == nil {
		return nil
	}
	return e.inventory.Revisions(report)
}

// Query finds every page where req.Field equals req.Value, drops pages the
// caller is not authorized to see, and returns the classified lines of the
// remaining pages. A query without matches returns an empty Result and no
// error. Pages that cannot be read are listed in Result.Failures.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	metrics.Simple(metrics.CommonQueryCalls, 1)
	defer metrics.Measure(metrics.CommonQueryLatency)()

	res, err := e.query(ctx, req)
	if err != nil {
		metrics.Simple(metrics.CommonQueryFailures, 1)
		e.log.Error(err, "Query failed", "report", req.Report, "field", req.Field)
		return nil, err
	}
	return res, nil
}

func (e *Engine) query(ctx context.Context, req Request) (*Result, error) {
	def, field, err := e.resolve(ctx, req.Report, req.Field)
	if err != nil {
		return nil, err
	}
	enc, err := def.TextEncoding()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	loc, err := e.locate(req.Report, req.Revision)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	pair, err := e.archives.Open(loc.IndexPath, loc.PagePath, enc)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return e.run(ctx, pair, def, field, loc, req)
}

func (e *Engine) resolve(ctx context.Context, report, name string) (*ReportDefinition, FieldDef, error) {
	def, err := e.catalog.Definition(ctx, report)
	if err != nil {
		return nil, FieldDef{}, fmt.Errorf("resolve: %w", err)
	}
	field, ok := def.Field(name)
	if !ok {
		return nil, FieldDef{}, fmt.Errorf("resolve: %w", errors.UnknownField{Report: report, Field: name})
	}
	return def, field, nil
}

// run executes the stages following Resolve against an opened pair.
func (e *Engine) run(ctx context.Context, pair *internal.ArchivePair, def *ReportDefinition, field FieldDef, loc archive.Pair, req Request) (*Result, error) {
	log := e.log.Named(loc.Report)
	sink := internal.NewWarningSink(loc.IndexPath, log)
	res := &Result{
		Report:   loc.Report,
		Revision: loc.Revision,
		Field:    field.Name,
		Value:    req.Value,
		Outcome:  OutcomeEmpty,
		Records:  []MatchedRecord{},
	}
	finish := func() *Result {
		res.Warnings = append(res.Warnings, pair.Index.Warnings()...)
		res.Warnings = append(res.Warnings, pair.Pages.Warnings()...)
		res.Warnings = append(res.Warnings, sink.List()...)
		if len(res.Records) > 0 {
			res.Outcome = OutcomeMatched
		}
		metrics.Simple(metrics.CommonRecordsEmitted, float64(len(res.Records)))
		return res
	}

	seg, ok := pair.Index.LookupSegment(field.LineID, field.FieldID)
	if !ok {
		return nil, fmt.Errorf("index lookup: %w", errors.NotIndexed{
			Report:  loc.Report,
			Field:   field.Name,
			LineID:  field.LineID,
			FieldID: field.FieldID,
		})
	}

	entries := pair.Index.Search(seg, field.Width(), req.Value, sink)
	res.Stats.IndexMatches = len(entries)
	log.Debug("Binary search completed", "segment", seg, "value", req.Value, "matches", len(entries))
	if len(entries) == 0 {
		return finish(), nil
	}

	candidates := roaring.New()
	for _, entry := range entries {
		page := entry.Locator.Page
		if entry.Locator.Layout == internal.LayoutOccurrenceIndex {
			page, ok = pair.Index.ResolveOccurrence(entry.Locator.Occurrence)
			if !ok {
				sink.Add(errors.WarnOccurrenceUnresolved, "occurrence %d of value %q has no page", entry.Locator.Occurrence, entry.Value)
				continue
			}
		}
		if page < 1 {
			sink.Add(errors.WarnPageOutOfRange, "value %q points to page %d", entry.Value, page)
			continue
		}
		candidates.Add(uint32(page))
	}
	res.Stats.CandidatePages = int(candidates.GetCardinality())

	sections := pair.Pages.Sections()
	if len(sections) == 0 {
		sections = def.Sections
	}
	filter := internal.NewSectionFilter(sections, req.AuthorizedSections)
	authorized := internal.BitmapPages(filter.Filter(candidates))
	res.Stats.AuthorizedPages = len(authorized)
	log.Debug("Section filter applied", "candidates", res.Stats.CandidatePages, "authorized", len(authorized))

	outcomes, err := e.readPages(ctx, pair.Pages, def, field, req, authorized)
	if err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, PageFailure{Page: authorized[i], Error: o.err.Error()})
			continue
		}
		res.Stats.PagesRead++
		res.Stats.LinesClassified += o.classified
		for _, r := range o.records {
			r.Report = loc.Report
			r.Revision = loc.Revision
			res.Records = append(res.Records, r)
		}
	}
	return finish(), nil
}

type pageOutcome struct {
	records    []MatchedRecord
	classified int
	err        error
}

// readPages decodes and classifies pages in parallel. Outcomes keep the order
// of pages. Only cancellation of ctx fails the call; page errors are carried
// in the outcomes.
func (e *Engine) readPages(ctx context.Context, store *internal.PageStore, def *ReportDefinition, field FieldDef, req Request, pages []int) ([]pageOutcome, error) {
	out := make([]pageOutcome, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, page := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.readPage(store, def, field, req, page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) readPage(store *internal.PageStore, def *ReportDefinition, field FieldDef, req Request, page int) pageOutcome {
	lines, err := store.GetPageText(page)
	if err != nil {
		e.log.Warning("Dropping unreadable page", "path", store.Path, "page", page, "error", err.Error())
		return pageOutcome{err: err}
	}

	defer metrics.Measure(metrics.PageStoreClassifyLatency)()
	var o pageOutcome
	for n, line := range lines {
		c, ok := internal.Classify(line, def.Templates)
		if !ok {
			continue
		}
		o.classified++
		fields := internal.ExtractFields(line, c.Template.LineID, def.Fields)
		if !req.AllLines {
			if c.Template.LineID != field.LineID || !sameValue(fields[field.Name], req.Value, field.Trim) {
				continue
			}
		}
		o.records = append(o.records, MatchedRecord{
			Page:     page,
			Line:     n + 1,
			LineID:   c.Template.LineID,
			LineName: c.Template.Name,
			Score:    c.Score,
			Fields:   fields,
		})
	}
	return o
}

// sameValue compares an extracted field value with a searched value. Trailing
// padding is never significant; leading spaces only matter when the field
// keeps them.
func sameValue(extracted, searched string, mode TrimMode) bool {
	if mode == internal.TrimBoth {
		return strings.TrimSpace(extracted) == strings.TrimSpace(searched)
	}
	return strings.TrimRightFunc(extracted, unicode.IsSpace) == strings.TrimRightFunc(searched, unicode.IsSpace)
}
