package metrics

type MetricKind uint8

const (
	CommonQueryCalls MetricKind = iota
	CommonQueryLatency
	CommonQueryFailures
	CommonRecordsEmitted
	CommonIntegrityWarnings
	CommonCacheHits
	CommonCacheMisses
	CommonOpenRetries

	IndexOpenLatency
	IndexSearchCalls
	IndexSearchLatency
	IndexLookupMisses

	PageStoreOpenLatency
	PageStoreDecompressCalls
	PageStoreDecompressLatency
	PageStoreReadFailures
	PageStoreClassifyLatency

	AuditFilesProcessed
	AuditFileFailures
	AuditSegmentMismatches
	AuditFileLatency
)
