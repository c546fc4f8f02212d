// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/tabletdb/tabletdb/internal/base"
)

// errMergeBoom is returned by test mergers that simulate a failing
// compaction.
var errMergeBoom = errors.New("merge failed")

// Bounds for require.Eventually waits on background goroutines.
const (
	waitTimeout  = 10 * time.Second
	pollInterval = time.Millisecond
)

// testOptions returns Options suitable for tests: a silent logger and
// otherwise the defaults.
func testOptions() *Options {
	o := &Options{Logger: base.NoopLogger{}}
	return o.EnsureDefaults()
}

// manualClock is a test implementation of the monotonic clock consulted by
// the failure backoff checks. It starts at one second so that a recorded
// timestamp is never confused with the zero "never failed" value.
type manualClock struct {
	v atomic.Int64
}

func newManualClock() *manualClock {
	c := &manualClock{}
	c.v.Store(int64(time.Second))
	return c
}

func (c *manualClock) now() crtime.Mono {
	return crtime.Mono(c.v.Load())
}

func (c *manualClock) advance(d time.Duration) {
	c.v.Add(int64(d))
}

// testTimeSource hands out manually driven tickers, so tests control when
// the scheduler's waits and sleeps fire.
type testTimeSource struct {
	mu sync.Mutex
	tt *testTicker
}

func (tts *testTimeSource) newTicker(duration time.Duration) schedulerTicker {
	tts.mu.Lock()
	defer tts.mu.Unlock()
	tts.tt = &testTicker{channel: make(chan time.Time)}
	return tts.tt
}

// ticker returns the most recently created ticker, blocking until the
// scheduler goroutine has created one.
func (tts *testTimeSource) ticker() *testTicker {
	for {
		tts.mu.Lock()
		tt := tts.tt
		tts.mu.Unlock()
		if tt != nil {
			return tt
		}
		time.Sleep(time.Millisecond)
	}
}

type testTicker struct {
	channel chan time.Time
}

func (t *testTicker) stop() {}

func (t *testTicker) ch() <-chan time.Time {
	return t.channel
}

// appendRowset adds a single-version fragment rowset of the given data size
// to the tablet, continuing from the highest version present.
func appendRowset(t *Tablet, dataBytes uint64) *Rowset {
	v := int64(1)
	if rs := t.Rowsets(); len(rs) > 0 {
		v = rs[len(rs)-1].Version().End + 1
	}
	r := NewRowset(t.opts, t.DataDir(), RowsetMeta{
		RowsetID:    t.NextRowsetID(),
		TabletID:    t.ID(),
		Version:     Version{Start: v, End: v},
		NumSegments: 1,
		NumRows:     10,
		DataBytes:   dataBytes,
	})
	t.AddRowset(r)
	return r
}

func appendRowsets(t *Tablet, n int, dataBytes uint64) {
	for i := 0; i < n; i++ {
		appendRowset(t, dataBytes)
	}
}

// instrumentRowset replaces the rowset's resource hooks with counting stubs
// and returns the counters, so tests can assert on resource lifetime.
func instrumentRowset(r *Rowset) (loads, closes *atomic.Int32) {
	loads, closes = new(atomic.Int32), new(atomic.Int32)
	r.loadFn = func() error {
		loads.Add(1)
		return nil
	}
	r.closeFn = func() {
		closes.Add(1)
	}
	return loads, closes
}
