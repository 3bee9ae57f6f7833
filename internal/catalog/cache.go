package catalog

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/heyvito/reportvault/errors"
)

// Source supplies report definitions. Implementations may be slow (a
// relational catalog, a remote service); Cache keeps lookups to one per
// report.
type Source interface {
	Definition(ctx context.Context, report string) (*ReportDefinition, error)
}

// Definition implements Source over a loaded catalog.
func (c *Catalog) Definition(_ context.Context, report string) (*ReportDefinition, error) {
	def, ok := c.Report(report)
	if !ok {
		return nil, errors.ReportNotFound{Report: report}
	}
	return def, nil
}

// Cache memoises a Source for the lifetime of a batch run. Concurrent misses
// for the same report share a single lookup, and failures are not kept.
type Cache struct {
	source Source
	group  singleflight.Group

	mu    sync.RWMutex
	known map[string]*ReportDefinition

	lookups int
}

func NewCache(source Source) *Cache {
	return &Cache{source: source, known: map[string]*ReportDefinition{}}
}

func (c *Cache) Definition(ctx context.Context, report string) (*ReportDefinition, error) {
	c.mu.RLock()
	def, ok := c.known[report]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}

	v, err, _ := c.group.Do(report, func() (any, error) {
		c.mu.RLock()
		def, ok := c.known[report]
		c.mu.RUnlock()
		if ok {
			return def, nil
		}

		def, err := c.source.Definition(ctx, report)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.known[report] = def
		c.lookups++
		c.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReportDefinition), nil
}

// Lookups returns how many times the underlying source was consulted
// successfully.
func (c *Cache) Lookups() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookups
}
