// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestIDFormatting(t *testing.T) {
	require.Equal(t, "12", TabletID(12).String())
	require.Equal(t, "000042", RowsetID(42).String())
	require.Equal(t, "7", TaskID(7).String())
	require.Equal(t, "[3,9]", Version{Start: 3, End: 9}.String())

	// All IDs are safe for redaction.
	require.Equal(t, redact.RedactableString("000042"), redact.Sprint(RowsetID(42)))
	require.Equal(t, redact.RedactableString("[3,9]"), redact.Sprint(Version{Start: 3, End: 9}))
}

func TestVersionContains(t *testing.T) {
	v := Version{Start: 5, End: 10}
	require.True(t, v.Contains(v))
	require.True(t, v.Contains(Version{Start: 6, End: 9}))
	require.False(t, v.Contains(Version{Start: 4, End: 6}))
	require.False(t, v.Contains(Version{Start: 9, End: 11}))
}

func TestKindAndStateStrings(t *testing.T) {
	require.Equal(t, "cumulative", CompactionKindCumulative.String())
	require.Equal(t, "base", CompactionKindBase.String())
	require.Equal(t, "RUNNING", TabletStateRunning.String())
	require.Equal(t, "NOT_READY", TabletStateNotReady.String())
	require.Equal(t, "SHUTDOWN", TabletStateShutdown.String())
}
