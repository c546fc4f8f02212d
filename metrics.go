// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the control plane's counters. The collectors are created
// unregistered; embedders that scrape them call MustRegister with their own
// registry.
type Metrics struct {
	// ScheduleRounds counts scheduling loop iterations across all
	// schedulers sharing the manager.
	ScheduleRounds prometheus.Counter
	// CandidatesPicked counts candidates popped from the pool.
	CandidatesPicked prometheus.Counter
	// CandidatesDropped counts candidates discarded by a failed
	// precondition or task materialization.
	CandidatesDropped prometheus.Counter
	// CandidatesRequeued counts candidates returned to the pool after a
	// transient admission failure (capacity, lock, per-disk limit,
	// backoff) or a failed pool submission.
	CandidatesRequeued prometheus.Counter
	// TasksSubmitted counts tasks handed to the compaction pool.
	TasksSubmitted prometheus.Counter
	// TasksSucceeded and TasksFailed count finished task executions.
	TasksSucceeded prometheus.Counter
	TasksFailed    prometheus.Counter
	// RunningTasks gauges the currently registered tasks.
	RunningTasks prometheus.Gauge
	// RowsetsRemoved counts stale rowsets removed by the cleanup manager.
	RowsetsRemoved prometheus.Counter
}

func (m *Metrics) init() {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabletdb",
			Subsystem: "compaction",
			Name:      name,
			Help:      help,
		})
	}
	m.ScheduleRounds = counter("schedule_rounds_total", "Scheduling loop iterations.")
	m.CandidatesPicked = counter("candidates_picked_total", "Candidates popped from the pool.")
	m.CandidatesDropped = counter("candidates_dropped_total", "Candidates dropped permanently.")
	m.CandidatesRequeued = counter("candidates_requeued_total", "Candidates returned to the pool.")
	m.TasksSubmitted = counter("tasks_submitted_total", "Tasks handed to the compaction pool.")
	m.TasksSucceeded = counter("tasks_succeeded_total", "Tasks that finished successfully.")
	m.TasksFailed = counter("tasks_failed_total", "Tasks that finished with an error.")
	m.RunningTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabletdb",
		Subsystem: "compaction",
		Name:      "running_tasks",
		Help:      "Currently registered compaction tasks.",
	})
	m.RowsetsRemoved = counter("rowsets_removed_total", "Stale rowsets removed by the cleanup manager.")
}

// MustRegister registers all collectors with the given registerer.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ScheduleRounds, m.CandidatesPicked, m.CandidatesDropped,
		m.CandidatesRequeued, m.TasksSubmitted, m.TasksSucceeded,
		m.TasksFailed, m.RunningTasks, m.RowsetsRemoved,
	)
}
