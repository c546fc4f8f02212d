// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
	"github.com/tabletdb/tabletdb/internal/invariants"
)

// CleanupManager removes rowsets that a finished compaction replaced. The
// removal is lifecycle-safe: Close defers the resource release until active
// readers drain. Deletion is paced by a token bucket when
// Options.TargetRowsetDeletionRate is set, since deleting a large backlog at
// full speed can cause latency spikes on the disk serving queries.
type CleanupManager struct {
	opts    *Options
	metrics *Metrics

	// jobsCh is used as the cleanup job queue.
	jobsCh chan *cleanupJob
	// waitGroup is used to wait for the background goroutine to exit.
	waitGroup sync.WaitGroup
	closed    invariants.CloseChecker

	mu struct {
		sync.Mutex
		queuedJobs        int
		completedJobs     int
		completedJobsCond sync.Cond
	}
}

// In practice we should rarely have more than a couple of queued jobs.
const cleanupJobsChLen = 1000

type cleanupJob struct {
	staleRowsets []*Rowset
}

// OpenCleanupManager creates a CleanupManager and starts its background
// goroutine. The CleanupManager must be Close()d. The metrics may be nil.
func OpenCleanupManager(opts *Options, metrics *Metrics) *CleanupManager {
	cm := &CleanupManager{
		opts:    opts,
		metrics: metrics,
		jobsCh:  make(chan *cleanupJob, cleanupJobsChLen),
	}
	cm.mu.completedJobsCond.L = &cm.mu.Mutex
	cm.waitGroup.Add(1)
	go cm.mainLoop()
	return cm
}

// Close stops the background goroutine, waiting until all queued jobs are
// completed.
func (cm *CleanupManager) Close() {
	cm.closed.Close()
	close(cm.jobsCh)
	cm.waitGroup.Wait()
}

// EnqueueJob adds a cleanup job for the given stale rowsets.
func (cm *CleanupManager) EnqueueJob(staleRowsets []*Rowset) {
	job := &cleanupJob{staleRowsets: staleRowsets}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	select {
	case cm.jobsCh <- job:
		cm.mu.queuedJobs++
	default:
		if invariants.Enabled {
			panic("cleanup jobs queue full")
		}
		// Something is terribly wrong... Just drop the job.
		cm.opts.Logger.Errorf("cleanup jobs queue full")
	}
}

// Wait until the completion of all jobs that were already queued.
//
// Does not wait for jobs that are enqueued during the call.
func (cm *CleanupManager) Wait() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	n := cm.mu.queuedJobs
	for cm.mu.completedJobs < n {
		cm.mu.completedJobsCond.Wait()
	}
}

// mainLoop runs the manager's background goroutine.
func (cm *CleanupManager) mainLoop() {
	defer cm.waitGroup.Done()
	useLimiter := false
	var limiter tokenbucket.TokenBucket

	if r := cm.opts.TargetRowsetDeletionRate; r != 0 {
		useLimiter = true
		limiter.Init(tokenbucket.TokensPerSecond(r), tokenbucket.Tokens(r))
	}

	for job := range cm.jobsCh {
		for _, r := range job.staleRowsets {
			if useLimiter {
				cm.maybePace(&limiter, r.Meta().TotalBytes())
			}
			cm.removeRowset(r)
		}
		cm.mu.Lock()
		cm.mu.completedJobs++
		cm.mu.completedJobsCond.Broadcast()
		cm.mu.Unlock()
	}
}

// maybePace waits for tokens covering the rowset's size. Always called from
// the background goroutine.
func (cm *CleanupManager) maybePace(limiter *tokenbucket.TokenBucket, bytes uint64) {
	for {
		ok, d := limiter.TryToFulfill(tokenbucket.Tokens(bytes))
		if ok {
			break
		}
		time.Sleep(d)
	}
}

// removeRowset closes the rowset and releases its disk accounting. If
// readers still hold references, the rowset's resources stay open until the
// last Release; the accounting is adjusted immediately either way, since the
// files are unlinked as soon as the last handle drops.
func (cm *CleanupManager) removeRowset(r *Rowset) {
	r.Close()
	if d := r.DataDir(); d != nil {
		d.SubUsedBytes(r.Meta().TotalBytes())
	}
	if cm.metrics != nil {
		cm.metrics.RowsetsRemoved.Inc()
	}
	cm.opts.EventListener.RowsetDeleted(RowsetDeleteInfo{
		TabletID:  r.Meta().TabletID,
		RowsetID:  r.ID(),
		DataBytes: r.Meta().DataBytes,
	})
}
