package internal

import (
	errs "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/heyvito/gommap"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/metrics"
)

// MappedFile exposes the full contents of a read-only archive file, either
// memory-mapped or buffered. Data must not be used after Close.
type MappedFile struct {
	Path    string
	Size    int64
	ModTime time.Time
	Data    []byte

	file   *os.File
	mapped gommap.MMap
}

// OpenMappedFile opens path for reading, retrying transient failures. Missing
// files and permission errors are returned immediately.
func OpenMappedFile(path string, config Config) (*MappedFile, error) {
	log := config.GetLogger().Named("file")
	attempts := config.GetOpenAttempts()
	if attempts < 1 {
		attempts = 1
	}

	fd, err := retry.DoWithData(
		func() (*os.File, error) { return os.Open(path) },
		retry.Attempts(attempts),
		retry.Delay(config.GetOpenRetryDelay()),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransientOpenError),
		retry.OnRetry(func(n uint, err error) {
			metrics.Simple(metrics.CommonOpenRetries, 1)
			log.Debug("Retrying open", "path", path, "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		return nil, err
	}

	stat, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = fd.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() < HeaderSize {
		_ = fd.Close()
		return nil, errors.FormatError{File: path, Reason: "file is shorter than its header"}
	}

	m := &MappedFile{
		Path:    path,
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
		file:    fd,
	}

	if config.GetUseMmap() {
		m.mapped, err = gommap.Map(fd.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
		if err != nil {
			_ = fd.Close()
			return nil, fmt.Errorf("%s: mmap failed: %w", path, err)
		}
		m.Data = m.mapped
		return m, nil
	}

	m.Data = make([]byte, stat.Size())
	if _, err = io.ReadFull(fd, m.Data); err != nil {
		_ = fd.Close()
		return nil, fmt.Errorf("%s: read failed: %w", path, err)
	}
	// buffered files hold no descriptor past open
	_ = fd.Close()
	m.file = nil
	return m, nil
}

func isTransientOpenError(err error) bool {
	return !errs.Is(err, fs.ErrNotExist) && !errs.Is(err, fs.ErrPermission)
}

func (m *MappedFile) Close() error {
	var err error
	if m.mapped != nil {
		err = m.mapped.UnsafeUnmap()
		m.mapped = nil
	}
	if m.file != nil {
		err = errs.Join(err, m.file.Close())
		m.file = nil
	}
	m.Data = nil
	return err
}
