// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataDirAccounting(t *testing.T) {
	d := NewDataDir("/data/d0", 0)
	require.Equal(t, "/data/d0", d.Path())
	d.AddUsedBytes(100)
	d.AddUsedBytes(50)
	require.Equal(t, uint64(150), d.UsedBytes())
	d.SubUsedBytes(70)
	require.Equal(t, uint64(80), d.UsedBytes())
}

func TestDataDirCapacityLimit(t *testing.T) {
	// Unknown capacity disables the check.
	d := NewDataDir("/data/d0", 0)
	d.AddUsedBytes(1 << 40)
	require.False(t, d.ReachedCapacityLimit(1 << 40))

	// Flood stage sits at 95% of capacity, counting the incoming bytes.
	d = NewDataDir("/data/d1", 1000)
	d.AddUsedBytes(900)
	require.False(t, d.ReachedCapacityLimit(0))
	require.False(t, d.ReachedCapacityLimit(49))
	require.True(t, d.ReachedCapacityLimit(50))
	require.True(t, d.ReachedCapacityLimit(500))
}
