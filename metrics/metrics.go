package metrics

import (
	"sync/atomic"

	"github.com/heyvito/reportvault/internal/metrics"
)

var hasDelegate atomic.Bool

// InstallDelegate starts forwarding instrumentation readings to del. Only the
// first installed delegate is honoured.
func InstallDelegate(del *Delegates) {
	if hasDelegate.Swap(true) {
		return
	}
	metrics.Enable()
	go metrics.Dispatch(del)
}

// Flush blocks until every reading emitted so far reached the installed
// delegate. It returns immediately when no delegate is installed.
func Flush() {
	if !hasDelegate.Load() {
		return
	}
	metrics.Wait()
}

type Delegates struct {
	Query     QueryInstrumentationDelegate
	Index     IndexInstrumentationDelegate
	PageStore PageStoreInstrumentationDelegate
	Audit     AuditInstrumentationDelegate
}

func (d *Delegates) Dispatch(kind metrics.MetricKind, value float64) {
	switch kind {
	case metrics.CommonQueryCalls:
		d.Query.QueryCalls(value)
	case metrics.CommonQueryLatency:
		d.Query.QueryLatency(value)
	case metrics.CommonQueryFailures:
		d.Query.QueryFailures(value)
	case metrics.CommonRecordsEmitted:
		d.Query.RecordsEmitted(value)
	case metrics.CommonIntegrityWarnings:
		d.Query.IntegrityWarnings(value)
	case metrics.CommonCacheHits:
		d.Query.CacheHits(value)
	case metrics.CommonCacheMisses:
		d.Query.CacheMisses(value)
	case metrics.CommonOpenRetries:
		d.Query.OpenRetries(value)
	case metrics.IndexOpenLatency:
		d.Index.OpenLatency(value)
	case metrics.IndexSearchCalls:
		d.Index.SearchCalls(value)
	case metrics.IndexSearchLatency:
		d.Index.SearchLatency(value)
	case metrics.IndexLookupMisses:
		d.Index.LookupMisses(value)
	case metrics.PageStoreOpenLatency:
		d.PageStore.OpenLatency(value)
	case metrics.PageStoreDecompressCalls:
		d.PageStore.DecompressCalls(value)
	case metrics.PageStoreDecompressLatency:
		d.PageStore.DecompressLatency(value)
	case metrics.PageStoreReadFailures:
		d.PageStore.ReadFailures(value)
	case metrics.PageStoreClassifyLatency:
		d.PageStore.ClassifyLatency(value)
	case metrics.AuditFilesProcessed:
		d.Audit.FilesProcessed(value)
	case metrics.AuditFileFailures:
		d.Audit.FileFailures(value)
	case metrics.AuditSegmentMismatches:
		d.Audit.SegmentMismatches(value)
	case metrics.AuditFileLatency:
		d.Audit.FileLatency(value)
	}
}

type QueryInstrumentationDelegate interface {
	QueryCalls(float64)
	QueryLatency(float64)
	QueryFailures(float64)
	RecordsEmitted(float64)
	IntegrityWarnings(float64)

	CacheHits(float64)
	CacheMisses(float64)
	OpenRetries(float64)
}

type IndexInstrumentationDelegate interface {
	OpenLatency(float64)
	SearchCalls(float64)
	SearchLatency(float64)
	LookupMisses(float64)
}

type PageStoreInstrumentationDelegate interface {
	OpenLatency(float64)
	DecompressCalls(float64)
	DecompressLatency(float64)
	ReadFailures(float64)
	ClassifyLatency(float64)
}

type AuditInstrumentationDelegate interface {
	FilesProcessed(float64)
	FileFailures(float64)
	SegmentMismatches(float64)
	FileLatency(float64)
}
