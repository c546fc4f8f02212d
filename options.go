// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"runtime"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/tabletdb/tabletdb/internal/base"
)

// Options holds the configuration for the compaction control plane. The zero
// value is not usable; call EnsureDefaults before handing an Options to any
// constructor.
type Options struct {
	// Logger is used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// EventListener provides hooks for listening to significant compaction
	// events.
	EventListener *EventListener

	// MaxConcurrentCompactions is the global limit on compaction tasks
	// running at any point in time, across all kinds and data directories.
	// A value < 0 means no limit.
	//
	// The default is max(2, GOMAXPROCS/2).
	MaxConcurrentCompactions int

	// CumulativeCompactionsPerDisk limits concurrent cumulative compactions
	// per data directory. A value < 0 means no limit. The default is 2.
	CumulativeCompactionsPerDisk int

	// BaseCompactionsPerDisk limits concurrent base compactions per data
	// directory. A value < 0 means no limit. The default is 1.
	BaseCompactionsPerDisk int

	// MinCompactionFailureInterval is how long a tablet+kind is skipped by
	// the scheduler after a failed compaction of that kind. The default is
	// two minutes.
	MinCompactionFailureInterval time.Duration

	// CumulativeCompactionTrigger is the number of fragment rowsets above
	// the cumulative point at which a tablet reports a cumulative
	// compaction candidate. The default is 5.
	CumulativeCompactionTrigger int

	// BaseCompactionTrigger is the number of rowsets at or below the
	// cumulative point (the base rowset plus cumulative outputs) at which a
	// tablet reports a base compaction candidate. The default is 3.
	BaseCompactionTrigger int

	// PoolQueueSize bounds the compaction pool's pending-task queue. The
	// default is 1000.
	PoolQueueSize int

	// TargetRowsetDeletionRate is the rate (in bytes/s) at which stale
	// rowsets are removed by the cleanup manager. Deleting a large backlog
	// of rowsets at full speed can cause latency spikes on the same disk;
	// pacing spreads the work out.
	//
	// A value of 0 disables pacing.
	TargetRowsetDeletionRate int

	// RowsetMerger performs the actual merge of a task's input rowsets into
	// a single output rowset. The inputs are loaded and reader-acquired for
	// the duration of the call. The default merger combines rowset metadata
	// only; embedders replace it with a real columnar merge.
	RowsetMerger func(t *Tablet, kind CompactionKind, inputs []*Rowset) (*Rowset, error)

	// nowFn is a test hook for the monotonic clock used by the failure
	// backoff checks.
	nowFn func() crtime.Mono

	// timeSource is a test hook for the scheduler's wait/sleep timers.
	timeSource schedulerTimeSource
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the updated options.
func (o *Options) EnsureDefaults() *Options {
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.MaxConcurrentCompactions == 0 {
		o.MaxConcurrentCompactions = max(2, runtime.GOMAXPROCS(0)/2)
	}
	if o.CumulativeCompactionsPerDisk == 0 {
		o.CumulativeCompactionsPerDisk = 2
	}
	if o.BaseCompactionsPerDisk == 0 {
		o.BaseCompactionsPerDisk = 1
	}
	if o.MinCompactionFailureInterval == 0 {
		o.MinCompactionFailureInterval = 2 * time.Minute
	}
	if o.CumulativeCompactionTrigger == 0 {
		o.CumulativeCompactionTrigger = 5
	}
	if o.BaseCompactionTrigger == 0 {
		o.BaseCompactionTrigger = 3
	}
	if o.PoolQueueSize == 0 {
		o.PoolQueueSize = 1000
	}
	if o.RowsetMerger == nil {
		o.RowsetMerger = mergeRowsetMetas
	}
	if o.nowFn == nil {
		o.nowFn = crtime.NowMono
	}
	if o.timeSource == nil {
		o.timeSource = defaultTimeSource{}
	}
	return o
}

// perDiskLimit returns the configured per-data-directory concurrency limit
// for the given compaction kind. A negative value means no limit.
func (o *Options) perDiskLimit(kind CompactionKind) int {
	if kind == CompactionKindBase {
		return o.BaseCompactionsPerDisk
	}
	return o.CumulativeCompactionsPerDisk
}

func (o *Options) now() crtime.Mono {
	return o.nowFn()
}
