package reportvault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-stdlog/stdlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/runlock"
	"github.com/heyvito/reportvault/internal/testutil"
)

func readJSON[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func auditRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeStatement(t, root, "20250115", statementPages())

	// Sections drift from the significant values of the index.
	drifted := statementIndex()
	drifted.Significants[0].PageCount = 1
	drifted.DeclaredSegments = 5
	pag := testutil.PageStore{Pages: statementPages(), Sections: statementSections()}
	testutil.WriteFile(t, root, "2025/EXTRATO_20250215.idx", drifted.Bytes())
	testutil.WriteFile(t, root, "2025/EXTRATO_20250215.pag", pag.Bytes())

	bad := make([]byte, 128)
	copy(bad, "garbage")
	testutil.WriteFile(t, root, "EXTRATO_20250315.idx", bad)
	testutil.WriteFile(t, root, "EXTRATO_20250315.pag", pag.Bytes())

	testutil.WriteFile(t, root, "EXTRATO_20250415.idx", statementIndex().Bytes())
	return root
}

func TestAudit(t *testing.T) {
	root := auditRoot(t)
	e := newTestEngine(t, root)
	out := filepath.Join(t.TempDir(), "audit")

	summary, err := e.Audit(context.Background(), AuditOptions{
		OutputDir: out,
		Probes: []Probe{
			{Field: "account", Value: account, AuthorizedSections: []string{"501"}},
			{Report: "EXTRATO", Field: "missing", Value: "x"},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.Canceled)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.SectionMismatches)
	assert.Equal(t, 2, summary.ProbeMatches)
	require.Len(t, summary.Orphans, 1)
	assert.Equal(t, "20250415", summary.Orphans[0].Revision)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Path, "EXTRATO_20250315.idx")

	var kinds []errors.WarningKind
	for _, w := range summary.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, errors.WarnOrphanFile)
	assert.Contains(t, kinds, errors.WarnSegmentCount)

	stored := readJSON[AuditSummary](t, filepath.Join(out, SummaryFile))
	assert.Equal(t, summary.RunID, stored.RunID)
	assert.Equal(t, 2, stored.Succeeded)

	clean := readJSON[FileAudit](t, filepath.Join(out, "EXTRATO_20250115.json"))
	assert.Equal(t, AuditOK, clean.Status)
	assert.Equal(t, 2, clean.Segments)
	assert.Equal(t, 2, clean.ExpectedSegments)
	assert.False(t, clean.SegmentMismatch)
	assert.Equal(t, 3, clean.Pages)
	assert.Empty(t, clean.SectionDiffs)
	require.Len(t, clean.Probes, 2)
	assert.Equal(t, OutcomeMatched, clean.Probes[0].Outcome)
	assert.Equal(t, []int{1, 2}, clean.Probes[0].Pages)
	assert.Equal(t, 2, clean.Probes[0].Records)
	assert.NotEmpty(t, clean.Probes[1].Error)

	drifted := readJSON[FileAudit](t, filepath.Join(out, "EXTRATO_20250215.json"))
	assert.Equal(t, AuditOK, drifted.Status)
	assert.Equal(t, []string{`section "501" covers 1+1, expected 1+2`}, drifted.SectionDiffs)
	require.NotEmpty(t, drifted.Warnings)
	assert.Equal(t, errors.WarnSegmentCount, drifted.Warnings[0].Kind)

	broken := readJSON[FileAudit](t, filepath.Join(out, "EXTRATO_20250315.json"))
	assert.Equal(t, AuditFailed, broken.Status)
	assert.Contains(t, broken.Error, "signature mismatch")

	_, err = os.Stat(filepath.Join(out, runlock.FileName))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAuditFiltersReports(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250115", statementPages())
	testutil.WriteFile(t, root, "OTHER_20250115.idx", statementIndex().Bytes())
	e := newTestEngine(t, root)

	summary, err := e.Audit(context.Background(), AuditOptions{
		OutputDir: t.TempDir(),
		Reports:   []string{"EXTRATO"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, summary.Orphans)
}

func TestAuditIsRepeatable(t *testing.T) {
	root := auditRoot(t)
	e := newTestEngine(t, root)

	var docs []string
	for range 2 {
		out := t.TempDir()
		_, err := e.Audit(context.Background(), AuditOptions{OutputDir: out, Workers: 3})
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(out, "EXTRATO_20250215.json"))
		require.NoError(t, err)
		docs = append(docs, string(data))
	}
	assert.Equal(t, docs[0], docs[1])
}

func TestAuditRefusesLockedDirectory(t *testing.T) {
	root := t.TempDir()
	writeStatement(t, root, "20250115", statementPages())
	e := newTestEngine(t, root)
	out := t.TempDir()

	lock, err := runlock.Acquire(out, stdlog.Discard)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = e.Audit(context.Background(), AuditOptions{OutputDir: out})
	var lockErr errors.CannotAcquireAuditLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, os.Getpid(), lockErr.PID)
}

func TestAuditCanceled(t *testing.T) {
	root := auditRoot(t)
	e := newTestEngine(t, root)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := e.Audit(ctx, AuditOptions{OutputDir: out})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Canceled)
	assert.Equal(t, summary.Files, summary.Skipped)

	stored := readJSON[AuditSummary](t, filepath.Join(out, SummaryFile))
	assert.True(t, stored.Canceled)
}

func TestAuditRequiresOutputDir(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, err := e.Audit(context.Background(), AuditOptions{})
	require.Error(t, err)
}
