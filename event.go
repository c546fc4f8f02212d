// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"time"

	"github.com/cockroachdb/redact"
	"github.com/tabletdb/tabletdb/internal/base"
)

// CompactionSubmitInfo contains the info for a compaction submission event,
// emitted when the scheduler hands an admitted task to the compaction pool.
type CompactionSubmitInfo struct {
	TaskID   base.TaskID
	TabletID base.TabletID
	Kind     CompactionKind
	Score    float64
	// Round is the scheduling round that admitted the task. Diagnostic only.
	Round uint64
}

// String implements fmt.Stringer.
func (i CompactionSubmitInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CompactionSubmitInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[TASK %s] tablet %s %s compaction submitted (score %.1f, round %d)",
		i.TaskID, i.TabletID, i.Kind, redact.SafeFloat(i.Score), redact.SafeUint(i.Round))
}

// CompactionBeginInfo contains the info for a compaction begin event.
type CompactionBeginInfo struct {
	TaskID       base.TaskID
	TabletID     base.TabletID
	Kind         CompactionKind
	InputRowsets int
	InputBytes   uint64
}

// String implements fmt.Stringer.
func (i CompactionBeginInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CompactionBeginInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[TASK %s] tablet %s %s compaction starting (%d rowsets, %d bytes)",
		i.TaskID, i.TabletID, i.Kind, redact.SafeInt(i.InputRowsets), redact.SafeUint(i.InputBytes))
}

// CompactionEndInfo contains the info for a compaction end event.
type CompactionEndInfo struct {
	TaskID   base.TaskID
	TabletID base.TabletID
	Kind     CompactionKind
	Duration time.Duration
	// Output holds the ID of the rowset the compaction produced. Unset if
	// the compaction failed.
	Output base.RowsetID
	Err    error
}

// String implements fmt.Stringer.
func (i CompactionEndInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CompactionEndInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("[TASK %s] tablet %s %s compaction failed: %v",
			i.TaskID, i.TabletID, i.Kind, i.Err)
		return
	}
	w.Printf("[TASK %s] tablet %s %s compaction done, output rowset %s in %.1fs",
		i.TaskID, i.TabletID, i.Kind, i.Output, redact.SafeFloat(i.Duration.Seconds()))
}

// RowsetDeleteInfo contains the info for a stale rowset removal event.
type RowsetDeleteInfo struct {
	TabletID  base.TabletID
	RowsetID  base.RowsetID
	DataBytes uint64
}

// String implements fmt.Stringer.
func (i RowsetDeleteInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i RowsetDeleteInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("tablet %s removed stale rowset %s (%d bytes)",
		i.TabletID, i.RowsetID, redact.SafeUint(i.DataBytes))
}

// EventListener contains a set of functions that will be invoked when various
// significant compaction events occur. Note that the functions should not run
// for an excessive amount of time as they are invoked synchronously and block
// the surrounding operation.
type EventListener struct {
	// BackgroundError is invoked whenever an error occurs on a background
	// goroutine: a failed compaction task or a swallowed rowset state
	// transition error.
	BackgroundError func(error)

	// CompactionSubmit is invoked when the scheduler submits an admitted
	// task to the compaction pool.
	CompactionSubmit func(CompactionSubmitInfo)

	// CompactionBegin is invoked after the inputs of a compaction task have
	// been loaded and pinned, immediately before the merge begins.
	CompactionBegin func(CompactionBeginInfo)

	// CompactionEnd is invoked after a compaction task finished, whether it
	// succeeded or failed.
	CompactionEnd func(CompactionEndInfo)

	// RowsetDeleted is invoked by the cleanup manager after a stale rowset
	// has been removed.
	RowsetDeleted func(RowsetDeleteInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.BackgroundError == nil {
		if logger != nil {
			l.BackgroundError = func(err error) {
				logger.Errorf("background error: %s", err)
			}
		} else {
			l.BackgroundError = func(error) {}
		}
	}
	if l.CompactionSubmit == nil {
		l.CompactionSubmit = func(CompactionSubmitInfo) {}
	}
	if l.CompactionBegin == nil {
		l.CompactionBegin = func(CompactionBeginInfo) {}
	}
	if l.CompactionEnd == nil {
		l.CompactionEnd = func(CompactionEndInfo) {}
	}
	if l.RowsetDeleted == nil {
		l.RowsetDeleted = func(RowsetDeleteInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	return EventListener{
		BackgroundError: func(err error) {
			logger.Errorf("background error: %s", err)
		},
		CompactionSubmit: func(info CompactionSubmitInfo) {
			logger.Infof("%s", info)
		},
		CompactionBegin: func(info CompactionBeginInfo) {
			logger.Infof("%s", info)
		},
		CompactionEnd: func(info CompactionEndInfo) {
			logger.Infof("%s", info)
		},
		RowsetDeleted: func(info RowsetDeleteInfo) {
			logger.Infof("%s", info)
		},
	}
}
