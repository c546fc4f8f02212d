// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"

	"github.com/cockroachdb/redact"
)

// TabletID is an internal identifier for a tablet, assigned by the frontend
// when the tablet is created. It is stable across the tablet's lifetime.
type TabletID uint64

// String returns a string representation of the tablet ID.
func (id TabletID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// SafeFormat implements redact.SafeFormatter.
func (id TabletID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeUint(id))
}

// RowsetID is an internal identifier for a rowset within a tablet. A rowset
// produced by a compaction receives a fresh RowsetID; IDs are never reused.
type RowsetID uint64

// String returns a string representation of the rowset ID.
func (id RowsetID) String() string { return fmt.Sprintf("%06d", uint64(id)) }

// SafeFormat implements redact.SafeFormatter.
func (id RowsetID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(id))
}

// TaskID is an identifier for a submitted compaction task. It is assigned
// exactly once, by the scheduler, just before the task is handed to the
// compaction pool.
type TaskID int64

// String returns a string representation of the task ID.
func (id TaskID) String() string { return fmt.Sprintf("%d", int64(id)) }

// SafeFormat implements redact.SafeFormatter.
func (id TaskID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeInt(id))
}

// Version is an inclusive range of write versions covered by a rowset. A
// rowset produced by a single write has Start == End; a rowset produced by a
// compaction covers the union of its inputs.
type Version struct {
	Start int64
	End   int64
}

// String returns a string representation of the version range.
func (v Version) String() string { return fmt.Sprintf("[%d,%d]", v.Start, v.End) }

// SafeFormat implements redact.SafeFormatter.
func (v Version) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[%d,%d]", redact.SafeInt(v.Start), redact.SafeInt(v.End))
}

// Contains returns true if the range contains the given version.
func (v Version) Contains(other Version) bool {
	return v.Start <= other.Start && other.End <= v.End
}
