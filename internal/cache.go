package internal

import (
	errs "errors"
	"os"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-stdlog/stdlog"

	"github.com/heyvito/reportvault/internal/metrics"
)

// ArchivePair is an opened index file and its page store. Both are immutable
// and may be shared by concurrent queries.
type ArchivePair struct {
	Index *IndexFile
	Pages *PageStore

	files []*MappedFile
}

func (p *ArchivePair) Close() error {
	var err error
	for _, f := range p.files {
		err = errs.Join(err, f.Close())
	}
	p.files = nil
	return err
}

type cacheEntry struct {
	once sync.Once
	pair *ArchivePair
	err  error
}

// ArchiveCache holds parsed archive pairs keyed by file identity: path, size
// and modification time of both files. The first caller for a key parses the
// pair; concurrent callers wait for it instead of parsing again.
type ArchiveCache struct {
	config  Config
	log     stdlog.Logger
	entries AtomicMap[uint64, *cacheEntry]
}

func NewArchiveCache(config Config) *ArchiveCache {
	return &ArchiveCache{
		config: config,
		log:    config.GetLogger().Named("cache"),
	}
}

// FileKey hashes the identity of the given files. Missing files produce an
// error from os.Stat.
func FileKey(enc TextEncoding, paths ...string) (uint64, error) {
	h := xxhash.New()
	_, _ = h.WriteString(string(enc))
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(strconv.FormatInt(stat.Size(), 10))
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(strconv.FormatInt(stat.ModTime().UnixNano(), 10))
	}
	return h.Sum64(), nil
}

// Open returns the parsed pair for indexPath and pagePath, parsing it on first
// access. Failed opens are not cached.
func (c *ArchiveCache) Open(indexPath, pagePath string, enc TextEncoding) (*ArchivePair, error) {
	key, err := FileKey(enc, indexPath, pagePath)
	if err != nil {
		return nil, err
	}

	entry, loaded := c.entries.LoadOrStore(key, &cacheEntry{})
	if loaded {
		metrics.Simple(metrics.CommonCacheHits, 1)
	} else {
		metrics.Simple(metrics.CommonCacheMisses, 1)
	}

	entry.once.Do(func() {
		entry.pair, entry.err = OpenArchivePair(indexPath, pagePath, enc, c.config)
	})
	if entry.err != nil {
		c.entries.CompareAndDelete(key, entry)
		return nil, entry.err
	}
	return entry.pair, nil
}

// Close releases every cached pair. Pairs must not be used afterwards.
func (c *ArchiveCache) Close() error {
	var err error
	for key, entry := range c.entries.Range() {
		if _, ok := c.entries.LoadAndDelete(key); !ok {
			continue
		}
		if entry.pair != nil {
			err = errs.Join(err, entry.pair.Close())
		}
	}
	return err
}

// OpenArchivePair opens and parses both files of a pair without caching.
func OpenArchivePair(indexPath, pagePath string, enc TextEncoding, config Config) (*ArchivePair, error) {
	log := config.GetLogger()

	idxFile, err := OpenMappedFile(indexPath, config)
	if err != nil {
		return nil, err
	}
	idx, err := OpenIndexFile(indexPath, idxFile.Data, log.Named("index"))
	if err != nil {
		_ = idxFile.Close()
		return nil, err
	}

	pagFile, err := OpenMappedFile(pagePath, config)
	if err != nil {
		_ = idxFile.Close()
		return nil, err
	}
	pages, err := OpenPageStore(pagePath, pagFile.Data, enc, log.Named("pages"))
	if err != nil {
		_ = idxFile.Close()
		_ = pagFile.Close()
		return nil, err
	}

	return &ArchivePair{
		Index: idx,
		Pages: pages,
		files: []*MappedFile{idxFile, pagFile},
	}, nil
}
