// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"archive/tar"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestRegistryFetcherResolveAndDownload(t *testing.T) {
	tarball := buildTarball(t, map[string]string{
		"package.json": `{"name":"cookie","version":"0.3.1"}`,
		"index.js":     "module.exports.parse = function(s) { return {}; };",
	})

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"name": "cookie",
			"versions": {
				"0.3.0": {"version": "0.3.0", "dist": {"tarball": "%[1]s/t/0.3.0"}},
				"0.3.1": {"version": "0.3.1", "dist": {"tarball": "%[1]s/t/0.3.1"}}
			}
		}`, srv.URL)
	})
	mux.HandleFunc("/t/0.3.1", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	f := &RegistryFetcher{RegistryURL: srv.URL}

	m, err := f.Resolve("cookie", "0.3.1")
	require.NoError(t, err)
	require.Equal(t, "0.3.1", m.Version)

	dest := t.TempDir()
	require.NoError(t, f.Download(m, dest))

	got, err := os.ReadFile(filepath.Join(dest, "index.js"))
	require.NoError(t, err)
	require.Contains(t, string(got), "parse")
}

func TestRegistryFetcherUsesCacheProbeWhenEnabled(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		called = true
		fmt.Fprint(w, `{"name":"cookie","versions":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := &RegistryFetcher{
		RegistryURL: srv.URL,
		Probe: func(name, selector string) (string, bool) {
			return "0.3.1", true
		},
	}

	m, err := f.Resolve("cookie", "0.3.1")
	require.NoError(t, err)
	require.Equal(t, "0.3.1", m.Version)
	require.False(t, called, "registry should not be contacted when the cache probe is satisfied")
}

func TestRegistryFetcherNoCacheBypassesProbe(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		called = true
		fmt.Fprint(w, `{"name":"cookie","versions":{"0.3.1":{"version":"0.3.1"}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := &RegistryFetcher{
		RegistryURL: srv.URL,
		NoCache:     true,
		Probe: func(name, selector string) (string, bool) {
			return "0.3.1", true
		},
	}

	_, err := f.Resolve("cookie", "0.3.1")
	require.NoError(t, err)
	require.True(t, called, "noCache must always contact the registry")
}
