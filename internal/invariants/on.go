// Copyright 2020 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build invariants || race

package invariants

// Enabled is true if we were built with the "invariants" or "race" build
// tags.
const Enabled = true

// CloseChecker is used to check that objects are closed exactly once.
type CloseChecker struct {
	closed bool
}

// Close panics if called twice on the same object.
func (d *CloseChecker) Close() {
	if d.closed {
		panic("double close")
	}
	d.closed = true
}

// AssertClosed panics if Close was not called.
func (d *CloseChecker) AssertClosed() {
	if !d.closed {
		panic("not closed")
	}
}

// AssertNotClosed panics if Close was called.
func (d *CloseChecker) AssertNotClosed() {
	if d.closed {
		panic("closed")
	}
}
