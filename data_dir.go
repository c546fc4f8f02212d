// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import "sync/atomic"

// floodStageUsageRatio is the fraction of a data directory's capacity at
// which new compactions are refused. Leaving headroom matters because a
// compaction temporarily needs space for both its inputs and its output.
const floodStageUsageRatio = 0.95

// DataDir represents a physical disk mount point hosting rowsets for some
// subset of tablets. The scheduler consults it for free-space headroom before
// admitting a compaction; the accounting itself is updated by the write path
// and the cleanup manager.
type DataDir struct {
	path string
	// capacityBytes is the usable capacity of the directory's disk. Zero
	// means unknown, which disables the capacity check.
	capacityBytes uint64
	usedBytes     atomic.Uint64
}

// NewDataDir constructs a DataDir rooted at path. capacityBytes may be zero
// to disable capacity checking.
func NewDataDir(path string, capacityBytes uint64) *DataDir {
	return &DataDir{path: path, capacityBytes: capacityBytes}
}

// Path returns the directory's mount path. Diagnostics only.
func (d *DataDir) Path() string { return d.path }

// UsedBytes returns the bytes currently accounted against the directory.
func (d *DataDir) UsedBytes() uint64 { return d.usedBytes.Load() }

// AddUsedBytes accounts bytes written into the directory.
func (d *DataDir) AddUsedBytes(n uint64) { d.usedBytes.Add(n) }

// SubUsedBytes accounts bytes removed from the directory.
func (d *DataDir) SubUsedBytes(n uint64) { d.usedBytes.Add(^(n - 1)) }

// ReachedCapacityLimit reports whether writing incomingBytes more would push
// the directory past its flood-stage threshold. Always false if the capacity
// is unknown.
func (d *DataDir) ReachedCapacityLimit(incomingBytes uint64) bool {
	if d.capacityBytes == 0 {
		return false
	}
	return float64(d.usedBytes.Load()+incomingBytes) >= float64(d.capacityBytes)*floodStageUsageRatio
}
