package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heyvito/reportvault/metrics"
)

// Latencies arrive in microseconds and are exported in seconds.
const microsecond = 1e-6

type promMetrics struct {
	registry *prometheus.Registry
}

var (
	promOnce     sync.Once
	promInstance *promMetrics
)

// installPromMetrics registers reportvault metrics in a dedicated registry and
// installs it as the instrumentation delegate. Later calls return the same
// instance.
func installPromMetrics() *promMetrics {
	promOnce.Do(func() {
		reg := prometheus.NewRegistry()
		f := promauto.With(reg)
		metrics.InstallDelegate(&metrics.Delegates{
			Query:     newQueryMetrics(f),
			Index:     newIndexMetrics(f),
			PageStore: newPageStoreMetrics(f),
			Audit:     newAuditMetrics(f),
		})
		promInstance = &promMetrics{registry: reg}
	})
	return promInstance
}

// writeTextfile writes every reading emitted so far in the node exporter
// textfile format.
func (p *promMetrics) writeTextfile(path string) error {
	metrics.Flush()
	return prometheus.WriteToTextfile(path, p.registry)
}

func counter(f promauto.Factory, name, help string) prometheus.Counter {
	return f.NewCounter(prometheus.CounterOpts{Namespace: "reportvault", Name: name, Help: help})
}

func histogram(f promauto.Factory, name, help string) prometheus.Histogram {
	return f.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reportvault",
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	})
}

type queryMetrics struct {
	calls, failures, records, warnings prometheus.Counter
	cacheHits, cacheMisses, retries    prometheus.Counter
	latency                            prometheus.Histogram
}

func newQueryMetrics(f promauto.Factory) *queryMetrics {
	return &queryMetrics{
		calls:       counter(f, "queries_total", "Queries executed"),
		failures:    counter(f, "query_failures_total", "Queries that returned an error"),
		records:     counter(f, "records_emitted_total", "Records emitted by queries"),
		warnings:    counter(f, "integrity_warnings_total", "Integrity warnings recorded"),
		cacheHits:   counter(f, "archive_cache_hits_total", "Archive pairs served from the cache"),
		cacheMisses: counter(f, "archive_cache_misses_total", "Archive pairs parsed on demand"),
		retries:     counter(f, "open_retries_total", "Archive file open attempts retried"),
		latency:     histogram(f, "query_duration_seconds", "Duration of queries"),
	}
}

func (m *queryMetrics) QueryCalls(v float64)        { m.calls.Add(v) }
func (m *queryMetrics) QueryLatency(v float64)      { m.latency.Observe(v * microsecond) }
func (m *queryMetrics) QueryFailures(v float64)     { m.failures.Add(v) }
func (m *queryMetrics) RecordsEmitted(v float64)    { m.records.Add(v) }
func (m *queryMetrics) IntegrityWarnings(v float64) { m.warnings.Add(v) }
func (m *queryMetrics) CacheHits(v float64)         { m.cacheHits.Add(v) }
func (m *queryMetrics) CacheMisses(v float64)       { m.cacheMisses.Add(v) }
func (m *queryMetrics) OpenRetries(v float64)       { m.retries.Add(v) }

type indexMetrics struct {
	searches, misses    prometheus.Counter
	open, searchLatency prometheus.Histogram
}

func newIndexMetrics(f promauto.Factory) *indexMetrics {
	return &indexMetrics{
		searches:      counter(f, "index_searches_total", "Binary searches over field segments"),
		misses:        counter(f, "index_lookup_misses_total", "Fields without a lookup record"),
		open:          histogram(f, "index_open_duration_seconds", "Duration of index file parsing"),
		searchLatency: histogram(f, "index_search_duration_seconds", "Duration of binary searches"),
	}
}

func (m *indexMetrics) OpenLatency(v float64)   { m.open.Observe(v * microsecond) }
func (m *indexMetrics) SearchCalls(v float64)   { m.searches.Add(v) }
func (m *indexMetrics) SearchLatency(v float64) { m.searchLatency.Observe(v * microsecond) }
func (m *indexMetrics) LookupMisses(v float64)  { m.misses.Add(v) }

type pageStoreMetrics struct {
	decompressions, failures      prometheus.Counter
	open, decompress, classifying prometheus.Histogram
}

func newPageStoreMetrics(f promauto.Factory) *pageStoreMetrics {
	return &pageStoreMetrics{
		decompressions: counter(f, "page_decompressions_total", "Page blocks inflated"),
		failures:       counter(f, "page_read_failures_total", "Pages that could not be read"),
		open:           histogram(f, "page_store_open_duration_seconds", "Duration of page store parsing"),
		decompress:     histogram(f, "page_decompress_duration_seconds", "Duration of page inflation"),
		classifying:    histogram(f, "page_classify_duration_seconds", "Duration of page line classification"),
	}
}

func (m *pageStoreMetrics) OpenLatency(v float64)       { m.open.Observe(v * microsecond) }
func (m *pageStoreMetrics) DecompressCalls(v float64)   { m.decompressions.Add(v) }
func (m *pageStoreMetrics) DecompressLatency(v float64) { m.decompress.Observe(v * microsecond) }
func (m *pageStoreMetrics) ReadFailures(v float64)      { m.failures.Add(v) }
func (m *pageStoreMetrics) ClassifyLatency(v float64)   { m.classifying.Observe(v * microsecond) }

type auditMetrics struct {
	files, failures, mismatches prometheus.Counter
	latency                     prometheus.Histogram
}

func newAuditMetrics(f promauto.Factory) *auditMetrics {
	return &auditMetrics{
		files:      counter(f, "audit_files_total", "Archive pairs audited"),
		failures:   counter(f, "audit_file_failures_total", "Archive pairs that failed their audit"),
		mismatches: counter(f, "audit_segment_mismatches_total", "Archive pairs whose segment count differs from the catalog"),
		latency:    histogram(f, "audit_file_duration_seconds", "Duration of one pair audit"),
	}
}

func (m *auditMetrics) FilesProcessed(v float64)    { m.files.Add(v) }
func (m *auditMetrics) FileFailures(v float64)      { m.failures.Add(v) }
func (m *auditMetrics) SegmentMismatches(v float64) { m.mismatches.Add(v) }
func (m *auditMetrics) FileLatency(v float64)       { m.latency.Observe(v * microsecond) }
