package internal

import (
	"fmt"
	"sync"

	"github.com/go-stdlog/stdlog"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/metrics"
)

// WarningSink accumulates IntegrityWarnings for a single file or query, and
// logs each one as it is recorded.
type WarningSink struct {
	File string
	log  stdlog.Logger

	mu   sync.Mutex
	list []errors.IntegrityWarning
}

func NewWarningSink(file string, log stdlog.Logger) *WarningSink {
	if log == nil {
		log = stdlog.Discard
	}
	return &WarningSink{File: file, log: log}
}

func (w *WarningSink) Add(kind errors.WarningKind, format string, args ...any) {
	warn := errors.IntegrityWarning{
		File:   w.File,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
	metrics.Simple(metrics.CommonIntegrityWarnings, 1)
	w.log.Warning("Integrity warning", "file", warn.File, "kind", string(warn.Kind), "detail", warn.Detail)

	w.mu.Lock()
	w.list = append(w.list, warn)
	w.mu.Unlock()
}

// Extend appends already-recorded warnings without logging them again.
func (w *WarningSink) Extend(list []errors.IntegrityWarning) {
	w.mu.Lock()
	w.list = append(w.list, list...)
	w.mu.Unlock()
}

func (w *WarningSink) List() []errors.IntegrityWarning {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]errors.IntegrityWarning, len(w.list))
	copy(out, w.list)
	return out
}

func (w *WarningSink) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.list)
}
