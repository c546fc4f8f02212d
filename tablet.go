// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/tabletdb/tabletdb/internal/base"
)

// Tablet is a logical shard of a table. It owns a version map of rowsets and
// the per-kind compaction state the scheduler relies on: a non-blocking
// mutex, a last-failure timestamp, and an in-flight task slot.
//
// The rowsets at versions below the cumulative point have been through at
// least one cumulative compaction (or are the base rowset); the rowsets at or
// above it are fragments produced by individual writes. Cumulative
// compactions merge the fragments and advance the point past their output;
// base compactions merge everything below the point.
type Tablet struct {
	id    base.TabletID
	dir   *DataDir
	opts  *Options
	state atomic.Int32

	// compactionMu holds one mutex per compaction kind. The scheduler only
	// ever try-locks these; a running task of that kind holds the lock for
	// its duration.
	compactionMu [base.NumCompactionKinds]sync.Mutex
	// lastFailure records, per kind, when a compaction task last failed
	// (crtime.Mono). Written by failing tasks, read by the scheduler's
	// backoff check.
	lastFailure [base.NumCompactionKinds]atomic.Int64

	// taskMu guards the in-flight task slots. Ordered before mu.
	taskMu   sync.Mutex
	inflight [base.NumCompactionKinds]*CompactionTask

	rowsetSeq atomic.Uint64

	mu struct {
		sync.Mutex
		// rowsets is the version map, sorted by Version.Start.
		rowsets []*Rowset
		// cumulativePoint is the version at which the fragment layer
		// begins.
		cumulativePoint int64
	}
}

// NewTablet constructs a tablet in the running state with an empty version
// map.
func NewTablet(opts *Options, id base.TabletID, dir *DataDir) *Tablet {
	t := &Tablet{id: id, dir: dir, opts: opts}
	t.state.Store(int32(base.TabletStateRunning))
	return t
}

// ID returns the tablet's ID.
func (t *Tablet) ID() base.TabletID { return t.id }

// DataDir returns the data directory hosting the tablet's rowsets.
func (t *Tablet) DataDir() *DataDir { return t.dir }

// State returns the tablet's lifecycle state.
func (t *Tablet) State() base.TabletState {
	return base.TabletState(t.state.Load())
}

// SetState updates the tablet's lifecycle state.
func (t *Tablet) SetState(s base.TabletState) {
	t.state.Store(int32(s))
}

// NextRowsetID returns a fresh rowset ID for a rowset of this tablet.
func (t *Tablet) NextRowsetID() base.RowsetID {
	return base.RowsetID(t.rowsetSeq.Add(1))
}

// AddRowset inserts a rowset into the tablet's version map. Called by the
// write path when a write commits, and by ingestion.
func (t *Tablet) AddRowset(r *Rowset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, _ := slices.BinarySearchFunc(t.mu.rowsets, r, func(a, b *Rowset) int {
		switch {
		case a.Version().Start < b.Version().Start:
			return -1
		case a.Version().Start > b.Version().Start:
			return 1
		default:
			return 0
		}
	})
	t.mu.rowsets = slices.Insert(t.mu.rowsets, i, r)
	if r.DataDir() != nil {
		r.DataDir().AddUsedBytes(r.Meta().TotalBytes())
	}
}

// Rowsets returns a snapshot of the tablet's version map. The caller gets no
// reader references; use AcquireReaders for that.
func (t *Tablet) Rowsets() []*Rowset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.mu.rowsets)
}

// NumRowsets returns the number of rowsets in the version map.
func (t *Tablet) NumRowsets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mu.rowsets)
}

// CumulativePoint returns the version at which the fragment layer begins.
func (t *Tablet) CumulativePoint() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mu.cumulativePoint
}

// AcquireReaders returns a snapshot of the version map with a reader
// reference acquired on every rowset. The caller must release via
// ReleaseRowsets when done.
func (t *Tablet) AcquireReaders() []*Rowset {
	t.mu.Lock()
	rs := slices.Clone(t.mu.rowsets)
	t.mu.Unlock()
	AcquireRowsets(rs)
	return rs
}

// pickCompactionInputs selects the input rowsets for a compaction of the
// given kind, or nil if the tablet does not currently need one.
func (t *Tablet) pickCompactionInputs(kind CompactionKind) []*Rowset {
	t.mu.Lock()
	defer t.mu.Unlock()
	var inputs []*Rowset
	for _, r := range t.mu.rowsets {
		below := r.Version().Start < t.mu.cumulativePoint
		if (kind == CompactionKindBase) == below {
			inputs = append(inputs, r)
		}
	}
	if len(inputs) < t.compactionTrigger(kind) {
		return nil
	}
	return inputs
}

func (t *Tablet) compactionTrigger(kind CompactionKind) int {
	if kind == CompactionKindBase {
		return t.opts.BaseCompactionTrigger
	}
	return t.opts.CumulativeCompactionTrigger
}

// CompactionScore returns the tablet's urgency for a compaction of the given
// kind; zero means no compaction is needed. Fragment count drives the score:
// every additional rowset adds read-time fan-in, regardless of size.
func (t *Tablet) CompactionScore(kind CompactionKind) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.mu.rowsets {
		below := r.Version().Start < t.mu.cumulativePoint
		if (kind == CompactionKindBase) == below {
			n++
		}
	}
	if n < t.compactionTrigger(kind) {
		return 0
	}
	return float64(n)
}

// NeedsCompaction reports whether the tablet currently needs a compaction of
// the given kind.
func (t *Tablet) NeedsCompaction(kind CompactionKind) bool {
	return t.CompactionScore(kind) > 0
}

// Candidate returns the tablet's current candidate for the given kind, and
// false if the tablet does not need that compaction.
func (t *Tablet) Candidate(kind CompactionKind) (CompactionCandidate, bool) {
	score := t.CompactionScore(kind)
	if score == 0 {
		return CompactionCandidate{}, false
	}
	return CompactionCandidate{Tablet: t, Kind: kind, Score: score}, true
}

// GetCompaction returns the tablet's in-flight compaction task for the given
// kind, if any. With create set, a new task is materialized when none is in
// flight and the tablet needs a compaction of that kind; the factory is
// idempotent and never starts the task.
func (t *Tablet) GetCompaction(kind CompactionKind, create bool) *CompactionTask {
	t.taskMu.Lock()
	defer t.taskMu.Unlock()
	if task := t.inflight[kind]; task != nil {
		return task
	}
	if !create {
		return nil
	}
	inputs := t.pickCompactionInputs(kind)
	if len(inputs) == 0 {
		return nil
	}
	task := newCompactionTask(t, kind, inputs)
	t.inflight[kind] = task
	return task
}

// ResetCompaction clears the in-flight marker for the given kind. Called
// when a task finishes, and by the scheduler when admission or submission
// fails after a task was materialized, so that the tablet reads as if the
// task never existed.
func (t *Tablet) ResetCompaction(kind CompactionKind) {
	t.taskMu.Lock()
	defer t.taskMu.Unlock()
	t.inflight[kind] = nil
}

// TryLockCompaction attempts to take the tablet's lock for the given
// compaction kind without blocking. Returns false immediately on contention.
// The two kinds are independent: a base and a cumulative compaction may run
// concurrently on the same tablet.
func (t *Tablet) TryLockCompaction(kind CompactionKind) bool {
	return t.compactionMu[kind].TryLock()
}

// UnlockCompaction releases the lock for the given compaction kind.
func (t *Tablet) UnlockCompaction(kind CompactionKind) {
	t.compactionMu[kind].Unlock()
}

// LastFailureTime returns when a compaction of the given kind last failed on
// this tablet, or zero if none has.
func (t *Tablet) LastFailureTime(kind CompactionKind) crtime.Mono {
	return crtime.Mono(t.lastFailure[kind].Load())
}

// SetLastFailureTime records a compaction failure for backoff purposes.
func (t *Tablet) SetLastFailureTime(kind CompactionKind, now crtime.Mono) {
	t.lastFailure[kind].Store(int64(now))
}

// applyCompaction replaces the task's input rowsets with its output in the
// version map. For cumulative compactions the cumulative point advances past
// the output, so the output becomes input for a later base compaction.
func (t *Tablet) applyCompaction(kind CompactionKind, inputs []*Rowset, output *Rowset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mu.rowsets = slices.DeleteFunc(t.mu.rowsets, func(r *Rowset) bool {
		return slices.Contains(inputs, r)
	})
	i, _ := slices.BinarySearchFunc(t.mu.rowsets, output, func(a, b *Rowset) int {
		switch {
		case a.Version().Start < b.Version().Start:
			return -1
		case a.Version().Start > b.Version().Start:
			return 1
		default:
			return 0
		}
	})
	t.mu.rowsets = slices.Insert(t.mu.rowsets, i, output)
	if kind == CompactionKindCumulative {
		t.mu.cumulativePoint = output.Version().End + 1
	}
	if output.DataDir() != nil {
		output.DataDir().AddUsedBytes(output.Meta().TotalBytes())
	}
}
