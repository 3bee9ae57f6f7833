package reportvault

import (
	"runtime"
	"time"

	"github.com/go-stdlog/stdlog"
)

type Config struct {
	// ArchiveRoot is the directory holding index files and page stores. It is
	// searched recursively for <REPORT>_<REVISION>.idx/.pag pairs.
	ArchiveRoot string

	// Catalog supplies report structure definitions. Lookups are cached for
	// the lifetime of the Engine.
	Catalog MetadataSource

	// Workers bounds how many pages a query decodes in parallel, and how many
	// archive pairs an audit processes at once. Defaults to the number of
	// CPUs.
	Workers int

	// UseMmap maps archive files into memory instead of reading them into
	// buffers.
	UseMmap bool

	// OpenAttempts is how many times opening an archive file is attempted
	// before giving up. Missing files and permission errors are never
	// retried. Defaults to 3.
	OpenAttempts uint

	// OpenRetryDelay is the base delay between open attempts. Defaults to
	// 50ms.
	OpenRetryDelay time.Duration

	// Logger allows a given stdlog.Logger instance to be set as the system
	// logger. If unset, no logs will be generated.
	Logger stdlog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.OpenAttempts == 0 {
		c.OpenAttempts = 3
	}
	if c.OpenRetryDelay == 0 {
		c.OpenRetryDelay = 50 * time.Millisecond
	}
	return c
}

func (c Config) GetArchiveRoot() string {
	return c.ArchiveRoot
}

func (c Config) GetWorkers() int {
	return c.Workers
}

func (c Config) GetUseMmap() bool {
	return c.UseMmap
}

func (c Config) GetOpenAttempts() uint {
	return c.OpenAttempts
}

func (c Config) GetOpenRetryDelay() time.Duration {
	return c.OpenRetryDelay
}

func (c Config) GetLogger() stdlog.Logger {
	if c.Logger != nil {
		return c.Logger.Named("reportvault")
	}
	return stdlog.Discard
}
