package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

var metricsCh = make(chan *metricReading, 1024)
var readingsPool = sync.Pool{
	New: func() interface{} {
		return &metricReading{}
	},
}
var dispatching atomic.Bool
var inflight atomic.Int64

// Simple emits a single reading. Readings are dropped until a delegate is
// installed through Dispatch.
func Simple(kind MetricKind, value float64) {
	if !dispatching.Load() {
		return
	}
	r := readingsPool.Get().(*metricReading)
	r.Kind = kind
	r.Value = value
	inflight.Add(1)
	metricsCh <- r
}

// Measure returns a function that emits the elapsed time, in microseconds,
// since Measure was called.
func Measure(kind MetricKind) func() {
	start := time.Now()
	return func() {
		Simple(kind, float64(time.Since(start).Microseconds()))
	}
}

type metricReading struct {
	Kind  MetricKind
	Value float64
}

type delegate interface {
	Dispatch(kind MetricKind, value float64)
}

// Enable starts accepting readings. They are buffered until Dispatch runs.
func Enable() {
	dispatching.Store(true)
}

// Dispatch forwards readings to del until the process exits.
func Dispatch(del delegate) {
	dispatching.Store(true)
	for msg := range metricsCh {
		del.Dispatch(msg.Kind, msg.Value)
		readingsPool.Put(msg)
		inflight.Add(-1)
	}
}

// Wait blocks until every reading emitted so far was handed to the delegate.
func Wait() {
	for inflight.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}
