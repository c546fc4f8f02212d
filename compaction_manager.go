// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/swiss"
	"github.com/tabletdb/tabletdb/internal/base"
)

// CompactionCandidate is a tablet+kind pair considered for scheduling,
// carrying a priority score. Candidates are cheap value types; the manager is
// their only source of truth and every instance a scheduler holds is a
// borrowed hint, re-validated before acting.
type CompactionCandidate struct {
	Tablet *Tablet
	Kind   CompactionKind
	Score  float64
}

// Valid reports whether the candidate references a tablet. An invalid
// candidate is what PickCandidate returns when the pool is empty.
func (c CompactionCandidate) Valid() bool { return c.Tablet != nil }

// String implements fmt.Stringer.
func (c CompactionCandidate) String() string {
	return redact.StringWithoutMarkers(c)
}

// SafeFormat implements redact.SafeFormatter.
func (c CompactionCandidate) SafeFormat(w redact.SafePrinter, _ rune) {
	if !c.Valid() {
		w.SafeString("invalid candidate")
		return
	}
	w.Printf("tablet %s %s (score %.1f)", c.Tablet.ID(), c.Kind, redact.SafeFloat(c.Score))
}

type candidateKey struct {
	tablet base.TabletID
	kind   CompactionKind
}

type candidateEntry struct {
	candidate CompactionCandidate
	// index is the entry's position in the heap, maintained by the heap
	// interface methods.
	index int
}

// candidateHeap is a max-heap of candidates ordered by score.
type candidateHeap []*candidateEntry

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	return h[i].candidate.Score > h[j].candidate.Score
}

func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *candidateHeap) Push(x any) {
	e := x.(*candidateEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// ErrTooManyTasks is returned by RegisterTask when starting the task would
// exceed the global concurrency limit. The admission checks in the scheduler
// make this rare, but concurrent schedulers only check the limit
// advisorily; registration is where it is enforced.
var ErrTooManyTasks = errors.New("tabletdb: too many running compaction tasks")

// CompactionManager is the shared candidate pool and running-task registry.
// Ingestion inserts candidates as tablets accumulate fragments; scheduler
// instances drain them. All methods are safe for concurrent use.
type CompactionManager struct {
	opts       *Options
	metrics    Metrics
	nextTaskID atomic.Int64

	mu struct {
		sync.Mutex
		heap  candidateHeap
		index swiss.Map[candidateKey, *candidateEntry]
		// running tracks the registered (executing) tasks.
		running map[base.TaskID]*CompactionTask
		// runningPerDir counts running tasks per data directory, per kind.
		runningPerDir map[*DataDir]*[base.NumCompactionKinds]int
		schedulers    []*CompactionScheduler
	}
}

// NewCompactionManager constructs a manager. The options must have had
// EnsureDefaults called.
func NewCompactionManager(opts *Options) *CompactionManager {
	m := &CompactionManager{opts: opts}
	m.metrics.init()
	m.mu.index.Init(64)
	m.mu.running = make(map[base.TaskID]*CompactionTask)
	m.mu.runningPerDir = make(map[*DataDir]*[base.NumCompactionKinds]int)
	return m
}

// Metrics returns the manager's metrics. The collectors can be registered
// with a prometheus.Registerer via Metrics.MustRegister.
func (m *CompactionManager) Metrics() *Metrics { return &m.metrics }

// RegisterScheduler registers a scheduler to be notified when candidates are
// inserted.
func (m *CompactionManager) RegisterScheduler(s *CompactionScheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.schedulers = append(m.mu.schedulers, s)
}

// NextTaskID returns a fresh task ID.
func (m *CompactionManager) NextTaskID() base.TaskID {
	return base.TaskID(m.nextTaskID.Add(1))
}

// PickCandidate removes and returns the highest-score candidate. Returns an
// invalid candidate if the pool is empty.
func (m *CompactionManager) PickCandidate() CompactionCandidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.mu.heap) == 0 {
		return CompactionCandidate{}
	}
	e := heap.Pop(&m.mu.heap).(*candidateEntry)
	m.mu.index.Delete(candidateKey{tablet: e.candidate.Tablet.ID(), kind: e.candidate.Kind})
	m.metrics.CandidatesPicked.Inc()
	return e.candidate
}

// InsertCandidates adds candidates to the pool in one call, then notifies the
// registered schedulers. A candidate for a tablet+kind already in the pool
// replaces the stored score. Invalid candidates are ignored.
func (m *CompactionManager) InsertCandidates(candidates []CompactionCandidate) {
	if len(candidates) == 0 {
		return
	}
	m.mu.Lock()
	m.insertLocked(candidates)
	schedulers := m.mu.schedulers
	m.mu.Unlock()
	for _, s := range schedulers {
		s.Notify()
	}
}

// reinsertCandidates returns candidates to the pool without notifying the
// schedulers. Used by a scheduler re-queuing candidates it just picked: a
// notification would only wake it right back up to re-pick the same
// candidates. The periodic predicate re-check and the idle sleep pick them
// up once their transient condition clears.
func (m *CompactionManager) reinsertCandidates(candidates []CompactionCandidate) {
	if len(candidates) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(candidates)
}

func (m *CompactionManager) insertLocked(candidates []CompactionCandidate) {
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		key := candidateKey{tablet: c.Tablet.ID(), kind: c.Kind}
		if e, ok := m.mu.index.Get(key); ok {
			e.candidate.Score = c.Score
			heap.Fix(&m.mu.heap, e.index)
			continue
		}
		e := &candidateEntry{candidate: c}
		heap.Push(&m.mu.heap, e)
		m.mu.index.Put(key, e)
	}
}

// SubmitTablet computes the tablet's current candidates for both kinds and
// inserts any with a non-zero score. Called by ingestion after a write
// commits and by a finished task, closing the scheduling loop.
func (m *CompactionManager) SubmitTablet(t *Tablet) {
	var candidates []CompactionCandidate
	for kind := CompactionKind(0); kind < base.NumCompactionKinds; kind++ {
		if c, ok := t.Candidate(kind); ok {
			candidates = append(candidates, c)
		}
	}
	m.InsertCandidates(candidates)
}

// CandidatesCount returns the number of pooled candidates.
func (m *CompactionManager) CandidatesCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mu.heap)
}

// RunningTaskCount returns the number of registered running tasks.
func (m *CompactionManager) RunningTaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mu.running)
}

// ExceedsMaxTaskNum reports whether the global running-task count has
// reached its configured maximum.
func (m *CompactionManager) ExceedsMaxTaskNum() bool {
	if m.opts.MaxConcurrentCompactions < 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mu.running) >= m.opts.MaxConcurrentCompactions
}

// RunningTasksForDir returns the number of running tasks of the given kind
// whose tablet lives in the given data directory. The scheduler compares
// this against the per-disk limit; it is advisory (other schedulers may be
// registering concurrently), with RegisterTask as the hard check.
func (m *CompactionManager) RunningTasksForDir(kind CompactionKind, dir *DataDir) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if counts := m.mu.runningPerDir[dir]; counts != nil {
		return counts[kind]
	}
	return 0
}

// RegisterTask records a task as running, enforcing the global limit. The
// caller must not start the task if an error is returned.
func (m *CompactionManager) RegisterTask(task *CompactionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts.MaxConcurrentCompactions >= 0 && len(m.mu.running) >= m.opts.MaxConcurrentCompactions {
		return errors.Wrapf(ErrTooManyTasks, "running %d", len(m.mu.running))
	}
	m.mu.running[task.TaskID()] = task
	counts := m.mu.runningPerDir[task.Tablet().DataDir()]
	if counts == nil {
		counts = new([base.NumCompactionKinds]int)
		m.mu.runningPerDir[task.Tablet().DataDir()] = counts
	}
	counts[task.Kind()]++
	m.metrics.RunningTasks.Inc()
	return nil
}

// UnregisterTask removes a task from the running registry.
func (m *CompactionManager) UnregisterTask(task *CompactionTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mu.running[task.TaskID()]; !ok {
		return
	}
	delete(m.mu.running, task.TaskID())
	if counts := m.mu.runningPerDir[task.Tablet().DataDir()]; counts != nil {
		counts[task.Kind()]--
	}
	m.metrics.RunningTasks.Dec()
}
