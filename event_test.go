// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestEventInfoStrings(t *testing.T) {
	require.Equal(t,
		"[TASK 7] tablet 3 cumulative compaction submitted (score 5.0, round 2)",
		CompactionSubmitInfo{TaskID: 7, TabletID: 3, Kind: CompactionKindCumulative, Score: 5, Round: 2}.String())
	require.Equal(t,
		"[TASK 7] tablet 3 base compaction starting (5 rowsets, 500 bytes)",
		CompactionBeginInfo{TaskID: 7, TabletID: 3, Kind: CompactionKindBase, InputRowsets: 5, InputBytes: 500}.String())
	require.Equal(t,
		"[TASK 7] tablet 3 cumulative compaction done, output rowset 000042 in 1.5s",
		CompactionEndInfo{TaskID: 7, TabletID: 3, Kind: CompactionKindCumulative, Output: 42, Duration: 1500 * time.Millisecond}.String())
	require.Equal(t,
		"[TASK 7] tablet 3 cumulative compaction failed: merge failed",
		CompactionEndInfo{TaskID: 7, TabletID: 3, Kind: CompactionKindCumulative, Err: errors.New("merge failed")}.String())
	require.Equal(t,
		"tablet 3 removed stale rowset 000042 (500 bytes)",
		RowsetDeleteInfo{TabletID: 3, RowsetID: 42, DataBytes: 500}.String())
}

type capturingLogger struct {
	lines []string
}

func (l *capturingLogger) Infof(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *capturingLogger) Errorf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *capturingLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Errorf(format, args...))
}

func TestMakeLoggingEventListener(t *testing.T) {
	var log capturingLogger
	l := MakeLoggingEventListener(&log)
	l.CompactionSubmit(CompactionSubmitInfo{TaskID: 1, TabletID: 2, Kind: CompactionKindCumulative, Score: 5, Round: 1})
	l.BackgroundError(errors.New("boom"))
	require.Equal(t, []string{
		"[TASK 1] tablet 2 cumulative compaction submitted (score 5.0, round 1)",
		"background error: boom",
	}, log.lines)
}

func TestEventListenerEnsureDefaults(t *testing.T) {
	var l EventListener
	l.EnsureDefaults(nil)
	// All hooks are callable after EnsureDefaults.
	l.BackgroundError(errors.New("boom"))
	l.CompactionSubmit(CompactionSubmitInfo{})
	l.CompactionBegin(CompactionBeginInfo{})
	l.CompactionEnd(CompactionEndInfo{})
	l.RowsetDeleted(RowsetDeleteInfo{})

	// Configured hooks survive.
	called := false
	l2 := EventListener{CompactionEnd: func(CompactionEndInfo) { called = true }}
	l2.EnsureDefaults(nil)
	l2.CompactionEnd(CompactionEndInfo{})
	require.True(t, called)
}
