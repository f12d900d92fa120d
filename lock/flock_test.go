// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, time.Second, time.Minute)

	release, err := l.Acquire()
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, sentinelName))

	release()

	release2, err := l.Acquire()
	require.NoError(t, err)
	release2()
}

func TestAcquireContention(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, time.Second, time.Minute)
	second := New(dir, 100*time.Millisecond, time.Minute)

	release, err := first.Acquire()
	require.NoError(t, err)
	defer release()

	_, err = second.Acquire()
	require.Error(t, err)
}

func TestStealIfStaleRemovesAgedSentinel(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, sentinelName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(sentinel, nil, 0o644))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(sentinel, old, old))

	l := New(dir, time.Second, 10*time.Millisecond)
	require.True(t, l.stealIfStale())
	require.NoFileExists(t, sentinel)
}

func TestStealIfStaleLeavesFreshSentinel(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, sentinelName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(sentinel, nil, 0o644))

	l := New(dir, time.Second, time.Hour)
	require.False(t, l.stealIfStale())
	require.FileExists(t, sentinel)
}
