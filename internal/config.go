package internal

import (
	"time"

	"github.com/go-stdlog/stdlog"
)

type Config interface {
	GetArchiveRoot() string
	GetWorkers() int
	GetUseMmap() bool
	GetOpenAttempts() uint
	GetOpenRetryDelay() time.Duration
	GetLogger() stdlog.Logger
}
