// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/crlib/crtime"
)

const (
	// schedulerCheckInterval bounds the wait-to-run predicate wait. The
	// periodic re-check defends against lost notifications and picks up
	// online configuration changes; a Notify at any time wakes the wait
	// early.
	schedulerCheckInterval = 5 * time.Second
	// schedulerIdleSleep is how long the scheduler sleeps after a round
	// that found no admissible candidate, absent a Notify.
	schedulerIdleSleep = 10 * time.Second
)

// CompactionScheduler decides when, what, and how many compactions run. One
// dedicated goroutine per scheduler instance drains the shared manager pool,
// applies the admission checks, and hands at most one admitted task per
// round to the compaction pool. Multiple instances may share one manager;
// the tablet try-locks and the manager's hard limits keep them from stepping
// on each other.
//
// The scheduling goroutine never blocks on a tablet lock and never performs
// I/O; its only suspension points are the bounded predicate wait and the
// idle sleep.
type CompactionScheduler struct {
	opts    *Options
	manager *CompactionManager
	pool    *CompactionPool
	cleaner *CleanupManager
	ts      schedulerTimeSource

	// round counts scheduling loop iterations. Diagnostic only.
	round atomic.Uint64

	// notifyCh carries at most one pending wake-up hint.
	notifyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
}

// NewCompactionScheduler constructs a scheduler and registers it with the
// manager for candidate notifications. The cleaner may be nil. Call Start to
// run the scheduling loop.
func NewCompactionScheduler(
	opts *Options, manager *CompactionManager, pool *CompactionPool, cleaner *CleanupManager,
) *CompactionScheduler {
	s := &CompactionScheduler{
		opts:     opts,
		manager:  manager,
		pool:     pool,
		cleaner:  cleaner,
		ts:       opts.timeSource,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	manager.RegisterScheduler(s)
	return s
}

// Start runs the scheduling loop on a new goroutine. Subsequent calls are
// no-ops.
func (s *CompactionScheduler) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.schedule()
}

// Stop terminates the scheduling loop and waits for it to exit. In-flight
// tasks are unaffected; there is no cancellation of submitted work.
func (s *CompactionScheduler) Stop() {
	close(s.stopCh)
	if s.started.Load() {
		<-s.doneCh
	}
}

// Notify is a non-blocking hint that new candidates may be available. Safe
// to call from any goroutine at any rate.
func (s *CompactionScheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Round returns the current scheduling round. Diagnostic only.
func (s *CompactionScheduler) Round() uint64 {
	return s.round.Load()
}

// schedule is the scheduling loop. It terminates only via Stop; errors
// during a round are contained at per-candidate granularity by the admission
// checks and never escape the loop.
func (s *CompactionScheduler) schedule() {
	defer close(s.doneCh)
	s.opts.Logger.Infof("compaction scheduler started")
	for {
		round := s.round.Add(1)
		s.manager.Metrics().ScheduleRounds.Inc()
		if !s.waitToRun() {
			return
		}
		task := s.tryGetNextCompactionTask()
		if task == nil {
			if !s.sleep(schedulerIdleSleep) {
				return
			}
			continue
		}
		s.submit(task, round)
	}
}

// submit assigns the task its ID and hands it to the compaction pool. On
// submission failure the tablet-side state is undone as if the task never
// existed and the candidate is re-inserted for a later round. Submission
// failure is not a task failure and must not count against backoff.
func (s *CompactionScheduler) submit(task *CompactionTask, round uint64) {
	task.setTaskID(s.manager.NextTaskID())
	task.Bind(s.manager, s.cleaner)
	s.opts.EventListener.CompactionSubmit(CompactionSubmitInfo{
		TaskID:   task.TaskID(),
		TabletID: task.Tablet().ID(),
		Kind:     task.Kind(),
		Score:    task.Score(),
		Round:    round,
	})
	s.manager.Metrics().TasksSubmitted.Inc()
	if err := s.pool.Submit(task.Start); err != nil {
		s.opts.Logger.Infof("tablet %s: submitting %s compaction failed: %s",
			task.Tablet().ID(), task.Kind(), err)
		task.Tablet().ResetCompaction(task.Kind())
		s.manager.Metrics().CandidatesRequeued.Inc()
		s.manager.reinsertCandidates([]CompactionCandidate{{
			Tablet: task.Tablet(),
			Kind:   task.Kind(),
			Score:  task.Score(),
		}})
	}
}

// canScheduleNext is the wait-to-run predicate: there are pooled candidates
// and the global running-task count is under its cap.
func (s *CompactionScheduler) canScheduleNext() bool {
	return s.manager.CandidatesCount() > 0 && !s.manager.ExceedsMaxTaskNum()
}

// waitToRun blocks until the wait-to-run predicate holds, re-checking every
// schedulerCheckInterval even absent a notification. Returns false if the
// scheduler was stopped.
func (s *CompactionScheduler) waitToRun() bool {
	if s.canScheduleNext() {
		return true
	}
	ticker := s.ts.newTicker(schedulerCheckInterval)
	defer ticker.stop()
	for !s.canScheduleNext() {
		select {
		case <-s.stopCh:
			return false
		case <-s.notifyCh:
		case <-ticker.ch():
		}
	}
	return true
}

// sleep waits up to d, waking early on Notify. Returns false if the
// scheduler was stopped.
func (s *CompactionScheduler) sleep(d time.Duration) bool {
	ticker := s.ts.newTicker(d)
	defer ticker.stop()
	select {
	case <-s.stopCh:
		return false
	case <-s.notifyCh:
		return true
	case <-ticker.ch():
		return true
	}
}

// tryGetNextCompactionTask drains the manager pool until it finds one
// admissible task, the pool runs dry, or the wait-to-run predicate stops
// holding. Candidates that failed only a transient check are re-inserted in
// bulk afterwards; picking first and re-inserting later keeps the manager's
// lock out of the tablet-specific checks.
func (s *CompactionScheduler) tryGetNextCompactionTask() *CompactionTask {
	var scratch []CompactionCandidate
	var admitted *CompactionTask
	for {
		if !s.canScheduleNext() {
			break
		}
		c := s.manager.PickCandidate()
		if !c.Valid() {
			break
		}
		task, requeue := s.canDoCompaction(c)
		if requeue {
			s.manager.Metrics().CandidatesRequeued.Inc()
			scratch = append(scratch, c)
		}
		if task != nil {
			admitted = task
			break
		}
	}
	s.manager.reinsertCandidates(scratch)
	return admitted
}

// checkPrecondition applies the permanent admissibility checks. A candidate
// failing any of them is dropped, not re-queued: the manager will pool a
// fresh candidate if the tablet ever needs compaction again.
func (s *CompactionScheduler) checkPrecondition(c CompactionCandidate) bool {
	if !c.Valid() {
		return false
	}
	t := c.Tablet
	if !t.NeedsCompaction(c.Kind) {
		return false
	}
	if state := t.State(); state != TabletStateRunning {
		s.opts.Logger.Infof("tablet %s: skipping %s compaction, state is %s",
			t.ID(), c.Kind, state)
		return false
	}
	if existing := t.GetCompaction(c.Kind, false); existing != nil {
		s.opts.Logger.Infof("tablet %s: skipping %s compaction, task %s already in flight",
			t.ID(), c.Kind, existing.TaskID())
		return false
	}
	return true
}

// canDoCompaction evaluates one candidate. It returns the materialized task
// if the candidate was admitted, and whether the candidate should be
// re-queued for a later round. (nil, false) means the candidate is dropped.
func (s *CompactionScheduler) canDoCompaction(c CompactionCandidate) (*CompactionTask, bool) {
	if !s.checkPrecondition(c) {
		s.manager.Metrics().CandidatesDropped.Inc()
		return nil, false
	}
	t := c.Tablet
	task := t.GetCompaction(c.Kind, true)
	if task == nil {
		// Materialization failed; by the precondition check the tablet
		// claimed to need this compaction, so this is an internal
		// inconsistency. Drop: re-queuing would hot-loop on it.
		s.manager.Metrics().CandidatesDropped.Inc()
		return nil, false
	}

	// From here on every non-admitted exit must make the tablet read as if
	// the task was never materialized.
	admitted := false
	defer func() {
		if !admitted {
			t.ResetCompaction(c.Kind)
		}
	}()

	dir := t.DataDir()
	if dir.ReachedCapacityLimit(task.InputBytes()) {
		s.opts.Logger.Infof("tablet %s: skipping %s compaction, data dir %s near capacity (input %d bytes)",
			t.ID(), c.Kind, dir.Path(), task.InputBytes())
		return nil, true
	}
	if !t.TryLockCompaction(c.Kind) {
		return nil, true
	}
	defer t.UnlockCompaction(c.Kind)
	if limit := s.opts.perDiskLimit(c.Kind); limit >= 0 {
		if n := s.manager.RunningTasksForDir(c.Kind, dir); n >= limit {
			s.opts.Logger.Infof("tablet %s: skipping %s compaction, %d tasks running on %s",
				t.ID(), c.Kind, n, dir.Path())
			return nil, true
		}
	}
	if last := t.LastFailureTime(c.Kind); last != 0 {
		if s.opts.now()-last <= crtime.Mono(s.opts.MinCompactionFailureInterval) {
			s.opts.Logger.Infof("tablet %s: skipping %s compaction, failed recently",
				t.ID(), c.Kind)
			return nil, true
		}
	}
	admitted = true
	return task, false
}

// schedulerTimeSource is used to abstract time.NewTicker for
// CompactionScheduler.
type schedulerTimeSource interface {
	newTicker(duration time.Duration) schedulerTicker
}

// schedulerTicker is used to abstract time.Ticker for CompactionScheduler.
type schedulerTicker interface {
	stop()
	ch() <-chan time.Time
}

// defaultTimeSource is a schedulerTimeSource using the time package.
type defaultTimeSource struct{}

var _ schedulerTimeSource = defaultTimeSource{}

func (defaultTimeSource) newTicker(duration time.Duration) schedulerTicker {
	return (*defaultTicker)(time.NewTicker(duration))
}

// defaultTicker uses time.Ticker.
type defaultTicker time.Ticker

var _ schedulerTicker = &defaultTicker{}

func (t *defaultTicker) stop() {
	(*time.Ticker)(t).Stop()
}

func (t *defaultTicker) ch() <-chan time.Time {
	return (*time.Ticker)(t).C
}
