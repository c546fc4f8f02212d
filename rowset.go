// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tabletdb

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/tabletdb/tabletdb/internal/base"
	"github.com/tabletdb/tabletdb/internal/invariants"
)

// ErrInvalidStateTransition is returned (or logged, see Rowset.Close) when a
// rowset state transition is attempted from a disallowed state. It indicates
// an ordering bug in the caller.
var ErrInvalidStateTransition = errors.New("tabletdb: invalid rowset state transition")

// rowsetState is the runtime resource state of a rowset. The rowset cycles
//
//	unloaded <--+
//	    |       |
//	    v       |
//	 loaded     |
//	    |       |
//	    v       |
//	unloading --+
//
// indefinitely across its lifetime.
type rowsetState int32

const (
	// rowsetUnloaded is the state of a newly created rowset, and of a
	// rowset whose resources have been released.
	rowsetUnloaded rowsetState = iota
	// rowsetLoaded is the state after Load; segment and index handles are
	// open.
	rowsetLoaded
	// rowsetUnloading is the state after Close was observed while readers
	// still held references; resources stay open until the last reader
	// releases.
	rowsetUnloading
)

func (s rowsetState) String() string {
	switch s {
	case rowsetUnloaded:
		return "UNLOADED"
	case rowsetLoaded:
		return "LOADED"
	case rowsetUnloading:
		return "UNLOADING"
	default:
		return "UNKNOWN"
	}
}

// rowsetStateMachine holds the state and validates transitions. Transitions
// are performed while holding the owning rowset's mutex; the state itself is
// atomic so lock-free fast paths may observe it.
type rowsetStateMachine struct {
	state atomic.Int32
}

func (m *rowsetStateMachine) current() rowsetState {
	return rowsetState(m.state.Load())
}

// onLoad transitions unloaded -> loaded.
func (m *rowsetStateMachine) onLoad() error {
	if s := m.current(); s != rowsetUnloaded {
		return errors.Wrapf(ErrInvalidStateTransition, "onLoad from %s", s)
	}
	m.state.Store(int32(rowsetLoaded))
	return nil
}

// onClose transitions loaded -> unloaded (no active readers) or loaded ->
// unloading (readers still hold references).
func (m *rowsetStateMachine) onClose(refsByReader uint64) error {
	if s := m.current(); s != rowsetLoaded {
		return errors.Wrapf(ErrInvalidStateTransition, "onClose from %s", s)
	}
	if refsByReader == 0 {
		m.state.Store(int32(rowsetUnloaded))
	} else {
		m.state.Store(int32(rowsetUnloading))
	}
	return nil
}

// onRelease transitions unloading -> unloaded.
func (m *rowsetStateMachine) onRelease() error {
	if s := m.current(); s != rowsetUnloading {
		return errors.Wrapf(ErrInvalidStateTransition, "onRelease from %s", s)
	}
	m.state.Store(int32(rowsetUnloaded))
	return nil
}

// RowsetMeta is the immutable metadata of a rowset.
type RowsetMeta struct {
	RowsetID       base.RowsetID
	TabletID       base.TabletID
	Version        base.Version
	NumSegments    int
	NumDeleteFiles int
	NumRows        uint64
	DataBytes      uint64
	IndexBytes     uint64
}

// Empty returns true if the rowset holds no data files.
func (m *RowsetMeta) Empty() bool {
	return m.NumSegments == 0 && m.NumDeleteFiles == 0
}

// TotalBytes returns the on-disk footprint of the rowset.
func (m *RowsetMeta) TotalBytes() uint64 {
	return m.DataBytes + m.IndexBytes
}

// Rowset is an immutable batch of rows produced by a single write or by a
// compaction. The metadata never changes; the runtime state (open segment
// handles, reader reference count) follows the lifecycle described on
// rowsetState.
//
// The tablet's version map owns the rowset. Readers hold temporary
// references (Acquire/Release) which keep the open resources alive past a
// concurrent Close; the resources are released exactly once, by Close itself
// if no readers are active, otherwise by the last releasing reader.
type Rowset struct {
	meta RowsetMeta
	dir  *DataDir
	opts *Options

	// loadFn opens the rowset's segment and index handles; closeFn releases
	// them. Pluggable so tests can observe resource lifetime. Both are
	// called with mu held.
	loadFn  func() error
	closeFn func()

	// mu guards state transitions and the open/release of resources. The
	// reader-side Acquire path is deliberately lock-free.
	mu            sync.Mutex
	refsByReader  atomic.Uint64
	sm            rowsetStateMachine
	resourcesOpen atomic.Bool
}

// NewRowset constructs a rowset in the unloaded state.
func NewRowset(opts *Options, dir *DataDir, meta RowsetMeta) *Rowset {
	r := &Rowset{meta: meta, dir: dir, opts: opts}
	r.loadFn = r.openSegments
	r.closeFn = r.releaseSegments
	return r
}

// Meta returns the rowset's immutable metadata.
func (r *Rowset) Meta() *RowsetMeta { return &r.meta }

// ID returns the rowset's ID.
func (r *Rowset) ID() base.RowsetID { return r.meta.RowsetID }

// Version returns the version range covered by the rowset.
func (r *Rowset) Version() base.Version { return r.meta.Version }

// DataDir returns the data directory hosting the rowset's files.
func (r *Rowset) DataDir() *DataDir { return r.dir }

// Load opens the rowset's segment and index handles. It must be called
// before the rowset's data is accessed. Calling Load on an already loaded
// rowset is a no-op; calling it while the rowset is draining readers
// (unloading) is an error.
func (r *Rowset) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch s := r.sm.current(); s {
	case rowsetLoaded:
		return nil
	case rowsetUnloaded:
	default:
		return errors.Wrapf(ErrInvalidStateTransition, "load from %s", s)
	}
	if err := r.loadFn(); err != nil {
		return err
	}
	r.resourcesOpen.Store(true)
	return r.sm.onLoad()
}

// Acquire increments the rowset's reader reference count. Callable from any
// state: a reader racing with Close simply delays the resource release until
// its matching Release.
func (r *Rowset) Acquire() {
	r.refsByReader.Add(1)
}

// Release decrements the reader reference count. If this was the last
// reference and a Close has been observed (the rowset is unloading), the
// resources are released and the rowset returns to the unloaded state.
func (r *Rowset) Release() {
	if r.refsByReader.Add(^uint64(0)) != 0 {
		return
	}
	r.mu.Lock()
	// Re-check under the mutex: Acquire takes no lock, so another reader
	// may have raced in after our decrement.
	if r.refsByReader.Load() == 0 && r.sm.current() == rowsetUnloading {
		r.closeResources()
		if err := r.sm.onRelease(); err != nil {
			// Unreachable: the state was checked above under mu.
			r.opts.EventListener.BackgroundError(err)
		}
	}
	r.mu.Unlock()
}

// Close marks the rowset for resource release. If no readers are active the
// segment and index handles are released immediately; otherwise the rowset
// enters the unloading state and the last releasing reader performs the
// release. Closing a rowset that is not loaded is a no-op, which makes Close
// idempotent.
//
// Close must not be invoked concurrently by multiple goroutines. A failed
// internal state transition is reported to the event listener and swallowed:
// Close is best-effort by contract and its callers do not expect an error.
func (r *Rowset) Close() {
	if r.sm.current() != rowsetLoaded {
		return
	}
	r.mu.Lock()
	if r.sm.current() != rowsetLoaded {
		r.mu.Unlock()
		return
	}
	refs := r.refsByReader.Load()
	if refs == 0 {
		r.closeResources()
	}
	err := r.sm.onClose(refs)
	r.mu.Unlock()
	if err != nil {
		r.opts.EventListener.BackgroundError(err)
	}
}

// closeResources releases the open handles. Called with mu held, from
// exactly one of Close or the final Release.
func (r *Rowset) closeResources() {
	if invariants.Enabled && !r.resourcesOpen.Load() {
		panic("tabletdb: releasing resources of a rowset with none open")
	}
	r.closeFn()
	r.resourcesOpen.Store(false)
}

// openSegments opens handles for the rowset's segments and delete files.
// Byte-level access is the concern of the scan and merge layers; here the
// handles only pin the files open.
func (r *Rowset) openSegments() error {
	// Metadata-only rowsets have nothing to open.
	return nil
}

func (r *Rowset) releaseSegments() {}

// AcquireRowsets acquires a reader reference on each rowset.
func AcquireRowsets(rowsets []*Rowset) {
	for _, r := range rowsets {
		r.Acquire()
	}
}

// ReleaseRowsets releases a reader reference on each rowset.
func ReleaseRowsets(rowsets []*Rowset) {
	for _, r := range rowsets {
		r.Release()
	}
}

// CloseRowsets closes each rowset.
func CloseRowsets(rowsets []*Rowset) {
	for _, r := range rowsets {
		r.Close()
	}
}
