package internal

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-stdlog/stdlog"
)

func mustBytesFromHex(s string) []byte {
	s = strings.ReplaceAll(s, " ", "")
	v, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type DummyConfig struct {
	ArchiveRoot    string
	Workers        int
	UseMmap        bool
	OpenAttempts   uint
	OpenRetryDelay time.Duration
	Logger         stdlog.Logger
}

func (d DummyConfig) GetArchiveRoot() string           { return d.ArchiveRoot }
func (d DummyConfig) GetWorkers() int                  { return d.Workers }
func (d DummyConfig) GetUseMmap() bool                 { return d.UseMmap }
func (d DummyConfig) GetOpenAttempts() uint            { return d.OpenAttempts }
func (d DummyConfig) GetOpenRetryDelay() time.Duration { return d.OpenRetryDelay }
func (d DummyConfig) GetLogger() stdlog.Logger         { return d.Logger }

func WithLogger() DummyOpt {
	return func(d *DummyConfig) { d.Logger = stdlog.NewStd(os.Stdout) }
}

func WithMmap() DummyOpt {
	return func(d *DummyConfig) { d.UseMmap = true }
}

type DummyOpt func(*DummyConfig)

func NewDummyConfig(t *testing.T, dummyOpts ...DummyOpt) *DummyConfig {
	t.Helper()
	d := &DummyConfig{
		ArchiveRoot:    t.TempDir(),
		Workers:        2,
		OpenAttempts:   2,
		OpenRetryDelay: time.Millisecond,
		Logger:         stdlog.Discard,
	}

	for _, opt := range dummyOpts {
		opt(d)
	}

	return d
}

func newSink() *WarningSink {
	return NewWarningSink("test", stdlog.Discard)
}
