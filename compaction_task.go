// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"github.com/cockroachdb/errors"
	"github.com/tabletdb/tabletdb/internal/base"
	"github.com/tabletdb/tabletdb/internal/invariants"
)

// CompactionTask is one materialized unit of compaction work: a fixed set of
// input rowsets of one tablet, for one kind. The scheduler materializes a
// task through Tablet.GetCompaction, assigns it a task ID, and hands it to
// the compaction pool; Start runs the merge, applies the result, and performs
// all bookkeeping regardless of outcome.
type CompactionTask struct {
	tablet     *Tablet
	kind       CompactionKind
	score      float64
	inputs     []*Rowset
	inputBytes uint64

	// taskID is assigned exactly once, by the scheduler, before submission.
	taskID base.TaskID

	// manager and cleaner are bound by the scheduler before submission (or
	// explicitly via Bind when a task is driven by hand).
	manager *CompactionManager
	cleaner *CleanupManager
}

func newCompactionTask(t *Tablet, kind CompactionKind, inputs []*Rowset) *CompactionTask {
	task := &CompactionTask{
		tablet: t,
		kind:   kind,
		score:  float64(len(inputs)),
		inputs: inputs,
	}
	for _, r := range inputs {
		task.inputBytes += r.Meta().TotalBytes()
	}
	return task
}

// Tablet returns the tablet the task compacts.
func (task *CompactionTask) Tablet() *Tablet { return task.tablet }

// Kind returns the task's compaction kind.
func (task *CompactionTask) Kind() CompactionKind { return task.kind }

// Score returns the candidate score the task was materialized with.
func (task *CompactionTask) Score() float64 { return task.score }

// TaskID returns the task's ID; zero until the scheduler assigns one.
func (task *CompactionTask) TaskID() base.TaskID { return task.taskID }

// InputBytes returns the estimated on-disk size of the task's inputs, used
// by the scheduler's capacity check.
func (task *CompactionTask) InputBytes() uint64 { return task.inputBytes }

// NumInputRowsets returns the number of input rowsets.
func (task *CompactionTask) NumInputRowsets() int { return len(task.inputs) }

func (task *CompactionTask) setTaskID(id base.TaskID) {
	if invariants.Enabled && task.taskID != 0 {
		panic("tabletdb: task ID assigned twice")
	}
	task.taskID = id
}

// Bind attaches the manager and cleanup manager the task reports to. The
// scheduler binds admitted tasks before submission; tests driving a task by
// hand call it directly. The cleaner may be nil, in which case stale inputs
// are closed synchronously.
func (task *CompactionTask) Bind(m *CompactionManager, cleaner *CleanupManager) {
	task.manager = m
	task.cleaner = cleaner
}

// Start executes the task: register with the manager, pin and load the
// inputs, merge, publish the output, and retire the inputs. All tablet-side
// bookkeeping (in-flight marker, failure timestamp, candidate re-submission)
// happens here, on every exit path, so the scheduler never blocks on a
// running task.
func (task *CompactionTask) Start() {
	t := task.tablet
	m := task.manager
	opts := t.opts

	// Runs last: clear the in-flight marker, then re-report the tablet's
	// candidates so the pool reflects whatever state the task left behind.
	defer func() {
		t.ResetCompaction(task.kind)
		m.SubmitTablet(t)
	}()

	if err := m.RegisterTask(task); err != nil {
		// Transient: the global cap is enforced here because concurrent
		// schedulers only check it advisorily.
		opts.Logger.Infof("[TASK %s] tablet %s not started: %s", task.taskID, t.ID(), err)
		return
	}
	defer m.UnregisterTask(task)

	if !t.TryLockCompaction(task.kind) {
		// Another task of this kind holds the lock. The in-flight marker
		// should make this unreachable.
		opts.Logger.Errorf("[TASK %s] tablet %s %s lock held at task start", task.taskID, t.ID(), task.kind)
		return
	}
	defer t.UnlockCompaction(task.kind)

	AcquireRowsets(task.inputs)
	defer ReleaseRowsets(task.inputs)

	start := opts.now()
	fail := func(err error) {
		t.SetLastFailureTime(task.kind, opts.now())
		m.Metrics().TasksFailed.Inc()
		opts.EventListener.CompactionEnd(CompactionEndInfo{
			TaskID:   task.taskID,
			TabletID: t.ID(),
			Kind:     task.kind,
			Duration: start.Elapsed(),
			Err:      err,
		})
	}

	for _, r := range task.inputs {
		if err := r.Load(); err != nil {
			fail(errors.Wrap(err, "loading input rowset"))
			return
		}
	}

	opts.EventListener.CompactionBegin(CompactionBeginInfo{
		TaskID:       task.taskID,
		TabletID:     t.ID(),
		Kind:         task.kind,
		InputRowsets: len(task.inputs),
		InputBytes:   task.inputBytes,
	})

	output, err := opts.RowsetMerger(t, task.kind, task.inputs)
	if err != nil {
		fail(err)
		return
	}

	t.applyCompaction(task.kind, task.inputs, output)
	m.Metrics().TasksSucceeded.Inc()
	opts.EventListener.CompactionEnd(CompactionEndInfo{
		TaskID:   task.taskID,
		TabletID: t.ID(),
		Kind:     task.kind,
		Duration: start.Elapsed(),
		Output:   output.ID(),
	})

	if task.cleaner != nil {
		task.cleaner.EnqueueJob(task.inputs)
	} else {
		for _, r := range task.inputs {
			r.Close()
			if d := r.DataDir(); d != nil {
				d.SubUsedBytes(r.Meta().TotalBytes())
			}
		}
	}
}

// mergeRowsetMetas is the default RowsetMerger. It combines the inputs'
// metadata into a single output rowset covering their joint version range.
// The byte-level merge belongs to the storage layer proper; embedders plug a
// real columnar merge in via Options.RowsetMerger.
func mergeRowsetMetas(t *Tablet, kind CompactionKind, inputs []*Rowset) (*Rowset, error) {
	if len(inputs) == 0 {
		return nil, errors.AssertionFailedf("merge of zero rowsets")
	}
	meta := RowsetMeta{
		RowsetID: t.NextRowsetID(),
		TabletID: t.ID(),
		Version: base.Version{
			Start: inputs[0].Version().Start,
			End:   inputs[len(inputs)-1].Version().End,
		},
		NumSegments: 1,
	}
	for _, r := range inputs {
		meta.NumRows += r.Meta().NumRows
		meta.DataBytes += r.Meta().DataBytes
		meta.IndexBytes += r.Meta().IndexBytes
	}
	return NewRowset(t.opts, t.DataDir(), meta), nil
}
