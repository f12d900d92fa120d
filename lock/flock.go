// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lock implements the single-writer advisory lock over the plugin
// directory (spec.md §4.A). A sentinel file's presence means a writer owns
// the store; staleness is judged by the sentinel's mtime rather than by
// any liveness check of the owning process, since that process may be on
// another machine entirely (spec.md §5 "Staleness").
package lock

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"
)

const sentinelName = ".pluginvm.lock"

// Lock is a single-writer lock over a plugin directory. The zero value is
// not usable; construct one with New.
type Lock struct {
	path  string
	flock *flock.Flock
	wait  time.Duration
	stale time.Duration
}

// New returns a Lock over pluginsPath's sentinel file. wait bounds how
// long Acquire polls before giving up; stale is the mtime age past which
// an un-stolen sentinel is assumed abandoned.
func New(pluginsPath string, wait, stale time.Duration) *Lock {
	p := filepath.Join(pluginsPath, sentinelName)
	return &Lock{
		path:  p,
		flock: flock.NewFlock(p),
		wait:  wait,
		stale: stale,
	}
}

// Acquire polls for up to l.wait, stealing a sentinel older than l.stale,
// and returns a release func once the lock is held. All mutating public
// PluginManager operations run between Acquire and the release call
// (spec.md §4.A "Contract").
func (l *Lock) Acquire() (release func(), err error) {
	deadline := time.Now().Add(l.wait)
	const pollInterval = 25 * time.Millisecond

	for {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating plugin directory")
		}

		ok, err := l.flock.TryLock()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring filesystem lock")
		}
		if ok {
			return func() {
				_ = os.Remove(l.path)
				_ = l.flock.Unlock()
			}, nil
		}

		if l.stealIfStale() {
			continue
		}

		if time.Now().After(deadline) {
			return nil, errors.Errorf("lock busy: %s held longer than %s", l.path, l.wait)
		}
		time.Sleep(pollInterval)
	}
}

// stealIfStale removes the sentinel if its mtime is older than l.stale,
// treating an unreachable owner as crashed (spec.md §5). It reports
// whether it removed anything, so the caller can retry TryLock promptly.
func (l *Lock) stealIfStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) <= l.stale {
		return false
	}
	// Another holder may steal it first; ignore a "not exist" race.
	_ = os.Remove(l.path)
	return true
}
