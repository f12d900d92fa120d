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

func TestParseSelectorDefaultsRefToHEAD(t *testing.T) {
	ownerRepo, ref, err := parseSelector("foo/bar")
	require.NoError(t, err)
	require.Equal(t, "foo/bar", ownerRepo)
	require.Equal(t, "HEAD", ref)
}

func TestParseSelectorSplitsRef(t *testing.T) {
	ownerRepo, ref, err := parseSelector("foo/bar#v1.2.3")
	require.NoError(t, err)
	require.Equal(t, "foo/bar", ownerRepo)
	require.Equal(t, "v1.2.3", ref)
}

func TestParseSelectorRejectsMalformedOwnerRepo(t *testing.T) {
	_, _, err := parseSelector("not-an-owner-repo")
	require.Error(t, err)

	_, _, err = parseSelector("too/many/slashes")
	require.Error(t, err)
}

func TestRemoteURLUsesTokenWhenPresent(t *testing.T) {
	f := &GitFetcher{Host: "github.com", Auth: &Auth{Token: "abc123"}}
	require.Equal(t, "https://abc123@github.com/foo/bar.git", f.remoteURL("foo/bar"))
}

func TestRemoteURLUsesBasicAuthWhenNoToken(t *testing.T) {
	f := &GitFetcher{Host: "bitbucket.org", Auth: &Auth{Username: "u", Password: "p"}}
	require.Equal(t, "https://u:p@bitbucket.org/foo/bar.git", f.remoteURL("foo/bar"))
}

func TestRemoteURLAnonymousWithoutAuth(t *testing.T) {
	f := &GitFetcher{Host: "github.com"}
	require.Equal(t, "https://github.com/foo/bar.git", f.remoteURL("foo/bar"))
}

func TestHasPackageJSONNamed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"widget","version":"2.0.0"}`), 0o644))

	require.True(t, hasPackageJSONNamed(dir, "widget", "2.0.0"))
	require.False(t, hasPackageJSONNamed(dir, "widget", "1.0.0"))
	require.False(t, hasPackageJSONNamed(dir, "other", "2.0.0"))
}

func TestCopyTreeExcludingVCSSkipsDotGit(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.js"), []byte("module.exports = {};"), 0o644))

	dst := t.TempDir()
	require.NoError(t, copyTreeExcludingVCS(src, dst))

	_, err := os.Stat(filepath.Join(dst, "index.js"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dst, ".git"))
	require.True(t, os.IsNotExist(err))
}
