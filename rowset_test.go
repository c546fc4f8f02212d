// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestRowsetStateMachine(t *testing.T) {
	var sm rowsetStateMachine
	require.Equal(t, rowsetUnloaded, sm.current())

	// The only legal cycle: unloaded -> loaded -> unloading -> unloaded.
	require.NoError(t, sm.onLoad())
	require.Equal(t, rowsetLoaded, sm.current())
	require.NoError(t, sm.onClose(2))
	require.Equal(t, rowsetUnloading, sm.current())
	require.NoError(t, sm.onRelease())
	require.Equal(t, rowsetUnloaded, sm.current())

	// Close with no readers short-circuits unloading.
	require.NoError(t, sm.onLoad())
	require.NoError(t, sm.onClose(0))
	require.Equal(t, rowsetUnloaded, sm.current())

	// Illegal transitions from each state.
	require.ErrorIs(t, sm.onClose(0), ErrInvalidStateTransition)
	require.ErrorIs(t, sm.onRelease(), ErrInvalidStateTransition)
	require.NoError(t, sm.onLoad())
	require.ErrorIs(t, sm.onLoad(), ErrInvalidStateTransition)
	require.NoError(t, sm.onClose(1))
	require.ErrorIs(t, sm.onLoad(), ErrInvalidStateTransition)
	require.ErrorIs(t, sm.onClose(0), ErrInvalidStateTransition)
}

func newTestRowset(opts *Options, dir *DataDir) *Rowset {
	return NewRowset(opts, dir, RowsetMeta{
		RowsetID:    1,
		TabletID:    1,
		Version:     Version{Start: 1, End: 1},
		NumSegments: 1,
		NumRows:     10,
		DataBytes:   100,
		IndexBytes:  10,
	})
}

func TestRowsetLoadClose(t *testing.T) {
	opts := testOptions()
	r := newTestRowset(opts, nil)
	loads, closes := instrumentRowset(r)

	require.False(t, r.resourcesOpen.Load())
	require.NoError(t, r.Load())
	require.True(t, r.resourcesOpen.Load())
	// Load is idempotent while loaded.
	require.NoError(t, r.Load())
	require.Equal(t, int32(1), loads.Load())

	r.Close()
	require.False(t, r.resourcesOpen.Load())
	require.Equal(t, int32(1), closes.Load())
	// Close is idempotent once unloaded.
	r.Close()
	require.Equal(t, int32(1), closes.Load())

	// The lifecycle can repeat.
	require.NoError(t, r.Load())
	require.Equal(t, int32(2), loads.Load())
	r.Close()
	require.Equal(t, int32(2), closes.Load())
}

func TestRowsetCloseWithActiveReaders(t *testing.T) {
	opts := testOptions()
	r := newTestRowset(opts, nil)
	_, closes := instrumentRowset(r)

	require.NoError(t, r.Load())
	r.Acquire()
	r.Acquire()

	r.Close()
	// Readers are still active: resources stay open, the rowset drains.
	require.Equal(t, rowsetUnloading, r.sm.current())
	require.True(t, r.resourcesOpen.Load())
	require.Equal(t, int32(0), closes.Load())

	// A new Load is refused while draining.
	require.ErrorIs(t, r.Load(), ErrInvalidStateTransition)

	r.Release()
	require.True(t, r.resourcesOpen.Load())

	// The last reader performs the release, exactly once.
	r.Release()
	require.Equal(t, rowsetUnloaded, r.sm.current())
	require.False(t, r.resourcesOpen.Load())
	require.Equal(t, int32(1), closes.Load())
}

func TestRowsetLateReaderDelaysRelease(t *testing.T) {
	opts := testOptions()
	r := newTestRowset(opts, nil)
	_, closes := instrumentRowset(r)

	require.NoError(t, r.Load())
	r.Acquire()
	r.Close()
	require.Equal(t, rowsetUnloading, r.sm.current())

	// A reader may still acquire while the rowset drains; the release is
	// deferred until the last of all readers, not just those present at
	// Close time.
	r.Acquire()
	r.Release()
	require.True(t, r.resourcesOpen.Load())
	require.Equal(t, int32(0), closes.Load())
	r.Release()
	require.Equal(t, rowsetUnloaded, r.sm.current())
	require.Equal(t, int32(1), closes.Load())
}

func TestRowsetTransitionErrorIsSentinel(t *testing.T) {
	var sm rowsetStateMachine
	require.NoError(t, sm.onLoad())
	err := sm.onLoad()
	require.True(t, errors.Is(err, ErrInvalidStateTransition))
	require.Contains(t, err.Error(), "LOADED")
}

func TestRowsetConcurrentReaders(t *testing.T) {
	opts := testOptions()
	r := newTestRowset(opts, nil)
	_, closes := instrumentRowset(r)
	require.NoError(t, r.Load())

	const readers = 8
	const iters = 200
	var wg sync.WaitGroup
	var closed atomic.Bool
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				r.Acquire()
				// A reader that got in before the close may observe open
				// resources; one that got in after may not. Either way the
				// reference keeps any open resources alive until Release.
				r.Release()
			}
		}()
	}
	go func() {
		r.Close()
		closed.Store(true)
	}()
	wg.Wait()
	require.Eventually(t, closed.Load, waitTimeout, pollInterval)

	// All readers drained: the resources were released exactly once.
	require.Equal(t, uint64(0), r.refsByReader.Load())
	require.Equal(t, rowsetUnloaded, r.sm.current())
	require.False(t, r.resourcesOpen.Load())
	require.Equal(t, int32(1), closes.Load())
}

func TestRowsetMeta(t *testing.T) {
	m := RowsetMeta{NumSegments: 2, DataBytes: 100, IndexBytes: 20}
	require.False(t, m.Empty())
	require.Equal(t, uint64(120), m.TotalBytes())
	require.True(t, (&RowsetMeta{}).Empty())
	require.False(t, (&RowsetMeta{NumDeleteFiles: 1}).Empty())
}
