// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tabletdb provides the compaction control plane of a columnar
// tablet store: the background machinery that decides, continuously and
// safely, which tablets get their small write-produced rowsets merged into
// larger ones while concurrent readers may be using those same rowsets.
//
// The pieces compose as follows. Ingestion adds rowsets to tablets and
// submits candidates to a shared CompactionManager. One or more
// CompactionScheduler instances drain the manager in score order, apply the
// admission checks (tablet state, non-blocking per-kind tablet locks, disk
// capacity, per-disk and global concurrency limits, failure backoff), and
// hand admitted CompactionTasks to a bounded CompactionPool. A finished task
// replaces its inputs in the tablet's version map and retires them through
// the CleanupManager, which waits for in-flight readers before releasing
// resources.
package tabletdb

import "github.com/tabletdb/tabletdb/internal/base"

// CompactionKind exports the base.CompactionKind type.
type CompactionKind = base.CompactionKind

const (
	// CompactionKindCumulative exports base.CompactionKindCumulative.
	CompactionKindCumulative = base.CompactionKindCumulative
	// CompactionKindBase exports base.CompactionKindBase.
	CompactionKindBase = base.CompactionKindBase
)

// TabletState exports the base.TabletState type.
type TabletState = base.TabletState

const (
	// TabletStateNotReady exports base.TabletStateNotReady.
	TabletStateNotReady = base.TabletStateNotReady
	// TabletStateRunning exports base.TabletStateRunning.
	TabletStateRunning = base.TabletStateRunning
	// TabletStateShutdown exports base.TabletStateShutdown.
	TabletStateShutdown = base.TabletStateShutdown
)

// TabletID exports the base.TabletID type.
type TabletID = base.TabletID

// RowsetID exports the base.RowsetID type.
type RowsetID = base.RowsetID

// TaskID exports the base.TaskID type.
type TaskID = base.TaskID

// Version exports the base.Version type.
type Version = base.Version

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger type.
type DefaultLogger = base.DefaultLogger

// NoopLogger exports the base.NoopLogger type.
type NoopLogger = base.NoopLogger
