// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tabletdb/tabletdb/internal/base"
)

func TestCleanupManagerRemovesRowsets(t *testing.T) {
	var deleted []RowsetID
	opts := (&Options{
		Logger: base.NoopLogger{},
		EventListener: &EventListener{
			RowsetDeleted: func(info RowsetDeleteInfo) {
				deleted = append(deleted, info.RowsetID)
			},
		},
	}).EnsureDefaults()
	m := NewCompactionManager(opts)
	cm := OpenCleanupManager(opts, m.Metrics())
	defer cm.Close()

	dir := NewDataDir("/data/d0", 0)
	tab := NewTablet(opts, 1, dir)
	r1 := appendRowset(tab, 100)
	r2 := appendRowset(tab, 200)
	require.NoError(t, r1.Load())
	require.NoError(t, r2.Load())
	require.Equal(t, uint64(300), dir.UsedBytes())

	cm.EnqueueJob([]*Rowset{r1, r2})
	cm.Wait()

	require.False(t, r1.resourcesOpen.Load())
	require.False(t, r2.resourcesOpen.Load())
	require.Equal(t, uint64(0), dir.UsedBytes())
	require.Equal(t, []RowsetID{r1.ID(), r2.ID()}, deleted)
	require.Equal(t, 2.0, testutil.ToFloat64(m.Metrics().RowsetsRemoved))
}

func TestCleanupManagerDefersToReaders(t *testing.T) {
	opts := testOptions()
	cm := OpenCleanupManager(opts, nil)
	defer cm.Close()

	dir := NewDataDir("/data/d0", 0)
	tab := NewTablet(opts, 1, dir)
	r := appendRowset(tab, 100)
	require.NoError(t, r.Load())
	r.Acquire()

	cm.EnqueueJob([]*Rowset{r})
	cm.Wait()

	// The disk accounting is released immediately, but the open resources
	// survive until the reader finishes.
	require.Equal(t, uint64(0), dir.UsedBytes())
	require.True(t, r.resourcesOpen.Load())
	require.Equal(t, rowsetUnloading, r.sm.current())

	r.Release()
	require.False(t, r.resourcesOpen.Load())
	require.Equal(t, rowsetUnloaded, r.sm.current())
}

func TestCleanupManagerPacing(t *testing.T) {
	opts := testOptions()
	// A rate far above the test's volume: pacing engages without adding
	// observable delay.
	opts.TargetRowsetDeletionRate = 1 << 30
	cm := OpenCleanupManager(opts, nil)
	defer cm.Close()

	tab := NewTablet(opts, 1, NewDataDir("/data/d0", 0))
	var stale []*Rowset
	for i := 0; i < 10; i++ {
		r := appendRowset(tab, 1024)
		require.NoError(t, r.Load())
		stale = append(stale, r)
	}
	cm.EnqueueJob(stale)
	cm.Wait()
	for _, r := range stale {
		require.False(t, r.resourcesOpen.Load())
	}
}

func TestCleanupManagerWaitScope(t *testing.T) {
	opts := testOptions()
	cm := OpenCleanupManager(opts, nil)

	tab := NewTablet(opts, 1, NewDataDir("/data/d0", 0))
	r := appendRowset(tab, 100)
	require.NoError(t, r.Load())
	cm.EnqueueJob([]*Rowset{r})
	// Wait covers the jobs queued before the call; Close covers the rest.
	cm.Wait()
	require.False(t, r.resourcesOpen.Load())

	r2 := appendRowset(tab, 100)
	require.NoError(t, r2.Load())
	cm.EnqueueJob([]*Rowset{r2})
	cm.Close()
	require.False(t, r2.resourcesOpen.Load())
}
