package reportvault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heyvito/reportvault/internal"
	"github.com/heyvito/reportvault/internal/archive"
	"github.com/heyvito/reportvault/internal/metrics"
	"github.com/heyvito/reportvault/internal/runlock"
)

// SummaryFile is the name of the run summary written to an audit output
// directory.
const SummaryFile = "summary.json"

type AuditOptions struct {
	// OutputDir receives one JSON document per audited pair, plus
	// SummaryFile. It is created when missing, and locked for the duration of
	// the run.
	OutputDir string

	// Reports restricts the audit to the given report identifiers. Every pair
	// found under the archive root is audited when empty.
	Reports []string

	// Probes are queries executed against every audited pair they apply to.
	Probes []Probe

	// Workers bounds how many pairs are audited at once. Defaults to
	// Config.Workers.
	Workers int
}

// Probe is a query executed during an audit. A probe without Report applies
// to every report defining Field.
type Probe struct {
	Report             string   `json:"report,omitempty" yaml:"report,omitempty"`
	Field              string   `json:"field" yaml:"field"`
	Value              string   `json:"value" yaml:"value"`
	AuthorizedSections []string `json:"authorized_sections,omitempty" yaml:"authorized_sections,omitempty"`
}

type ProbeResult struct {
	Probe   Probe      `json:"probe" yaml:"probe"`
	Outcome Outcome    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Records int        `json:"records" yaml:"records"`
	Pages   []int      `json:"pages,omitempty" yaml:"pages,omitempty"`
	Stats   QueryStats `json:"stats" yaml:"stats"`
	Error   string     `json:"error,omitempty" yaml:"error,omitempty"`
}

type AuditStatus string

const (
	AuditOK     AuditStatus = "ok"
	AuditFailed AuditStatus = "failed"
)

// FileAudit is the outcome of auditing one pair.
type FileAudit struct {
	Report    string      `json:"report" yaml:"report"`
	Revision  string      `json:"revision" yaml:"revision"`
	IndexPath string      `json:"index_path" yaml:"index_path"`
	PagePath  string      `json:"page_path" yaml:"page_path"`
	Status    AuditStatus `json:"status" yaml:"status"`
	Error     string      `json:"error,omitempty" yaml:"error,omitempty"`

	Segments         int  `json:"segments" yaml:"segments"`
	ExpectedSegments int  `json:"expected_segments,omitempty" yaml:"expected_segments,omitempty"`
	SegmentMismatch  bool `json:"segment_mismatch" yaml:"segment_mismatch"`

	Pages        int      `json:"pages" yaml:"pages"`
	SectionDiffs []string `json:"section_diffs,omitempty" yaml:"section_diffs,omitempty"`

	Probes   []ProbeResult      `json:"probes,omitempty" yaml:"probes,omitempty"`
	Warnings []IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FileName returns the name of the document f is written to.
func (f FileAudit) FileName() string {
	return f.Report + "_" + f.Revision + ".json"
}

type AuditError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// AuditSummary accumulates the outcome of an audit run.
type AuditSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Root       string    `json:"root" yaml:"root"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Canceled   bool      `json:"canceled" yaml:"canceled"`

	Files             int `json:"files" yaml:"files"`
	Succeeded         int `json:"succeeded" yaml:"succeeded"`
	Failed            int `json:"failed" yaml:"failed"`
	Skipped           int `json:"skipped" yaml:"skipped"`
	SegmentMismatches int `json:"segment_mismatches" yaml:"segment_mismatches"`
	SectionMismatches int `json:"section_mismatches" yaml:"section_mismatches"`
	ProbeMatches      int `json:"probe_matches" yaml:"probe_matches"`

	Orphans  []archive.Orphan   `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Errors   []AuditError       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Audit checks every pair under the archive root: structure against the
// catalog, sections against significant values, and the given probes. A
// failing pair is recorded and the run continues. Cancelling ctx stops the
// run between pairs; the summary is still written, and ctx.Err() returned.
func (e *Engine) Audit(ctx context.Context, opts AuditOptions) (*AuditSummary, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("cannot audit without an output directory")
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, err
	}
	log := e.log.Named("audit")

	lock, err := runlock.Acquire(opts.OutputDir, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Error(err, "Failed releasing run lock", "path", lock.Path())
		}
	}()

	e.Refresh()
	inv, err := archive.Discover(e.config.ArchiveRoot)
	if err != nil {
		return nil, err
	}

	summary := &AuditSummary{
		RunID:     uuid.NewString(),
		Root:      e.config.ArchiveRoot,
		StartedAt: time.Now().UTC(),
	}
	pairs := inv.Pairs
	if len(opts.Reports) > 0 {
		pairs = slices.DeleteFunc(slices.Clone(pairs), func(p archive.Pair) bool {
			return !slices.Contains(opts.Reports, p.Report)
		})
	}
	for _, o := range inv.Orphans {
		if len(opts.Reports) > 0 && !slices.Contains(opts.Reports, o.Report) {
			continue
		}
		summary.Orphans = append(summary.Orphans, o)
		summary.Warnings = append(summary.Warnings, o.Warning())
	}
	summary.Files = len(pairs)
	log.Info("Audit started", "run", summary.RunID, "pairs", len(pairs), "orphans", len(summary.Orphans))

	workers := opts.Workers
	if workers <= 0 {
		workers = e.config.Workers
	}
	results := make([]*FileAudit, len(pairs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fa := e.auditPair(ctx, pair, opts.Probes)
			if err := writeJSON(opts.OutputDir, fa.FileName(), fa); err != nil {
				fa.Status = AuditFailed
				fa.Error = fmt.Sprintf("writing result: %s", err)
			}
			results[i] = fa
			return nil
		})
	}
	_ = g.Wait()

	for _, fa := range results {
		if fa == nil {
			summary.Skipped++
			continue
		}
		if fa.Status == AuditFailed {
			summary.Failed++
			summary.Errors = append(summary.Errors, AuditError{Path: fa.IndexPath, Error: fa.Error})
		} else {
			summary.Succeeded++
		}
		if fa.SegmentMismatch {
			summary.SegmentMismatches++
		}
		if len(fa.SectionDiffs) > 0 {
			summary.SectionMismatches++
		}
		for _, p := range fa.Probes {
			if p.Outcome == OutcomeMatched {
				summary.ProbeMatches++
			}
		}
		summary.Warnings = append(summary.Warnings, fa.Warnings...)
	}
	summary.Canceled = ctx.Err() != nil
	summary.FinishedAt = time.Now().UTC()

	if err := writeJSON(opts.OutputDir, SummaryFile, summary); err != nil {
		return summary, err
	}
	log.Info("Audit finished",
		"run", summary.RunID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"canceled", summary.Canceled,
	)
	if summary.Canceled {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (e *Engine) auditPair(ctx context.Context, loc archive.Pair, probes []Probe) *FileAudit {
	metrics.Simple(metrics.AuditFilesProcessed, 1)
	defer metrics.Measure(metrics.AuditFileLatency)()

	fa := &FileAudit{
		Report:    loc.Report,
		Revision:  loc.Revision,
		IndexPath: loc.IndexPath,
		PagePath:  loc.PagePath,
		Status:    AuditOK,
	}
	fail := func(err error) *FileAudit {
		metrics.Simple(metrics.AuditFileFailures, 1)
		e.log.Error(err, "Audit of pair failed", "report", loc.Report, "revision", loc.Revision)
		fa.Status = AuditFailed
		fa.Error = err.Error()
		return fa
	}

	def, err := e.catalog.Definition(ctx, loc.Report)
	if err != nil {
		return fail(err)
	}
	enc, err := def.TextEncoding()
	if err != nil {
		return fail(err)
	}

	// Not cached: the pair is unmapped as soon as its audit is done.
	pair, err := internal.OpenArchivePair(loc.IndexPath, loc.PagePath, enc, e.config)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = pair.Close() }()

	fa.Segments = pair.Index.SegmentCount()
	fa.ExpectedSegments = def.SegmentCount
	if def.SegmentCount > 0 && def.SegmentCount != fa.Segments {
		fa.SegmentMismatch = true
		metrics.Simple(metrics.AuditSegmentMismatches, 1)
	}
	fa.Pages = pair.Pages.PagesPresent()

	if derived := internal.DeriveSections(pair.Index.SignificantValues()); len(derived) > 0 {
		expected := def.Sections
		if len(expected) == 0 {
			expected = pair.Pages.Sections()
		}
		fa.SectionDiffs = internal.DiffSections(expected, derived)
	}

	for _, p := range probes {
		if p.Report != "" && p.Report != loc.Report {
			continue
		}
		field, ok := def.Field(p.Field)
		if !ok {
			if p.Report != "" {
				fa.Probes = append(fa.Probes, ProbeResult{Probe: p, Error: fmt.Sprintf("report %s has no field named %q", loc.Report, p.Field)})
			}
			continue
		}
		fa.Probes = append(fa.Probes, e.probe(ctx, pair, def, field, loc, p))
	}

	fa.Warnings = append(fa.Warnings, pair.Index.Warnings()...)
	fa.Warnings = append(fa.Warnings, pair.Pages.Warnings()...)
	return fa
}

func (e *Engine) probe(ctx context.Context, pair *internal.ArchivePair, def *ReportDefinition, field FieldDef, loc archive.Pair, p Probe) ProbeResult {
	res, err := e.run(ctx, pair, def, field, loc, Request{
		Report:             loc.Report,
		Revision:           loc.Revision,
		Field:              p.Field,
		Value:              p.Value,
		AuthorizedSections: p.AuthorizedSections,
	})
	if err != nil {
		return ProbeResult{Probe: p, Error: err.Error()}
	}
	out := ProbeResult{Probe: p, Outcome: res.Outcome, Records: len(res.Records), Stats: res.Stats}
	for _, r := range res.Records {
		if len(out.Pages) == 0 || out.Pages[len(out.Pages)-1] != r.Page {
			out.Pages = append(out.Pages, r.Page)
		}
	}
	return out
}

// writeJSON replaces dir/name with the indented JSON encoding of v. Readers
// never observe a partially written document.
func writeJSON(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
