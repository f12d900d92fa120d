// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineFetcherRoundTrip(t *testing.T) {
	f := NewInlineFetcher()

	m, err := f.ResolveVersioned("scratch", "module.exports = { myVariable: 'value1' };", "")
	require.NoError(t, err)
	require.Equal(t, "0.0.0", m.Version)

	dir := t.TempDir()
	require.NoError(t, f.Download(m, dir))

	got, err := os.ReadFile(filepath.Join(dir, "index.js"))
	require.NoError(t, err)
	require.Contains(t, string(got), "myVariable")
}

func TestInlineFetcherDownloadWithoutResolveFails(t *testing.T) {
	f := NewInlineFetcher()
	err := f.Download(&Manifest{Name: "x", Version: "1.0.0"}, t.TempDir())
	require.Error(t, err)
}
