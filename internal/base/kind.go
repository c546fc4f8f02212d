// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/redact"

// CompactionKind distinguishes the two compaction flavors a tablet supports.
// Cumulative compactions are frequent, small merges of recently written
// rowsets; base compactions are infrequent, large merges that fold the
// cumulative output into the tablet's base rowset.
type CompactionKind int8

const (
	// CompactionKindCumulative merges recently written rowsets.
	CompactionKindCumulative CompactionKind = iota
	// CompactionKindBase merges the cumulative output into the base rowset.
	CompactionKindBase

	// NumCompactionKinds is the number of compaction kinds; usable as an
	// array length for per-kind state.
	NumCompactionKinds
)

// String implements fmt.Stringer.
func (k CompactionKind) String() string {
	switch k {
	case CompactionKindCumulative:
		return "cumulative"
	case CompactionKindBase:
		return "base"
	default:
		return "unknown"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (k CompactionKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// TabletState describes the lifecycle state of a tablet. Only tablets in
// TabletStateRunning are eligible for compaction.
type TabletState int8

const (
	// TabletStateNotReady is the state of a tablet that is still being
	// created or restored and cannot serve reads or compactions.
	TabletStateNotReady TabletState = iota
	// TabletStateRunning is the normal serving state.
	TabletStateRunning
	// TabletStateShutdown is the state of a tablet that is being dropped or
	// migrated away; no new compactions may be scheduled on it.
	TabletStateShutdown
)

// String implements fmt.Stringer.
func (s TabletState) String() string {
	switch s {
	case TabletStateNotReady:
		return "NOT_READY"
	case TabletStateRunning:
		return "RUNNING"
	case TabletStateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (s TabletState) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}
