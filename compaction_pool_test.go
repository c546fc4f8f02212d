// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactionPoolRunsJobs(t *testing.T) {
	p := NewCompactionPool(2, 16)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	// Close drains the queue before returning.
	p.Close()
	require.Equal(t, int32(10), ran.Load())
}

func TestCompactionPoolSaturated(t *testing.T) {
	p := NewCompactionPool(1, 1)
	started := make(chan struct{})
	gate := make(chan struct{})
	var ran atomic.Int32

	// Occupy the only worker.
	require.NoError(t, p.Submit(func() {
		close(started)
		<-gate
		ran.Add(1)
	}))
	<-started

	// Fill the queue, then overflow it. The rejected closure never runs.
	require.NoError(t, p.Submit(func() { ran.Add(1) }))
	require.ErrorIs(t, p.Submit(func() { ran.Add(1) }), ErrPoolSaturated)

	close(gate)
	p.Close()
	require.Equal(t, int32(2), ran.Load())
}

func TestCompactionPoolClosed(t *testing.T) {
	p := NewCompactionPool(1, 4)
	p.Close()
	// Close is idempotent.
	p.Close()
	require.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestCompactionPoolMinimumWorkers(t *testing.T) {
	p := NewCompactionPool(0, 1)
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	<-done
	p.Close()
}
