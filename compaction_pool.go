// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// ErrPoolSaturated is returned by CompactionPool.Submit when the pending
// queue is full. Distinguishable from any task-runtime failure: a rejected
// closure never ran.
var ErrPoolSaturated = errors.New("tabletdb: compaction pool saturated")

// ErrPoolClosed is returned by CompactionPool.Submit after Close.
var ErrPoolClosed = errors.New("tabletdb: compaction pool closed")

// CompactionPool executes submitted closures on a fixed set of worker
// goroutines, with a bounded pending queue. Submission never blocks.
type CompactionPool struct {
	jobsCh chan func()
	grp    errgroup.Group
	closed atomic.Bool
}

// NewCompactionPool starts a pool with the given number of workers and queue
// capacity. The pool must be Close()d.
func NewCompactionPool(workers, queueSize int) *CompactionPool {
	if workers < 1 {
		workers = 1
	}
	p := &CompactionPool{
		jobsCh: make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		p.grp.Go(func() error {
			for fn := range p.jobsCh {
				fn()
			}
			return nil
		})
	}
	return p
}

// Submit enqueues a closure for asynchronous execution. Returns
// ErrPoolSaturated without running the closure if the queue is full, and
// ErrPoolClosed after Close.
func (p *CompactionPool) Submit(fn func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	select {
	case p.jobsCh <- fn:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting submissions, runs the queued closures, and waits for
// the workers to exit. Callers must stop submitting before closing; Close
// must not race with Submit.
func (p *CompactionPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.jobsCh)
	_ = p.grp.Wait()
}
