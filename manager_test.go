// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/golang/pluginvm/lock"
)

func writeFixture(t *testing.T, dir string, manifest map[string]interface{}, indexJS string) string {
	t.Helper()
	pluginDir := filepath.Join(dir, manifest["name"].(string))
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "package.json"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "index.js"), []byte(indexJS), 0o644))
	return pluginDir
}

func testOptions(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	return Options{
		PluginsPath:  filepath.Join(root, "plugin_packages"),
		VersionsPath: filepath.Join(root, "plugin_packages", ".versions"),
		LockWait:     200 * time.Millisecond,
		LockStale:    50 * time.Millisecond,
	}
}

// fakePkg is one version of one package served by a fake npm registry.
type fakePkg struct {
	Dependencies map[string]string
	Index        string
}

// newFakeRegistry serves pkgs (name -> version -> fakePkg) as npm-shaped
// registry documents and tarballs, the same request shapes
// fetch/registry_test.go exercises against RegistryFetcher directly.
func newFakeRegistry(t *testing.T, pkgs map[string]map[string]fakePkg) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()

	for name, versions := range pkgs {
		name, versions := name, versions
		mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			type dist struct {
				Tarball string `json:"tarball"`
			}
			type versionDoc struct {
				Version      string            `json:"version"`
				Dependencies map[string]string `json:"dependencies,omitempty"`
				Dist         dist              `json:"dist"`
			}
			doc := struct {
				Name     string                `json:"name"`
				Versions map[string]versionDoc `json:"versions"`
			}{Name: name, Versions: map[string]versionDoc{}}

			for v := range versions {
				doc.Versions[v] = versionDoc{
					Version:      v,
					Dependencies: versions[v].Dependencies,
					Dist:         dist{Tarball: fmt.Sprintf("%s/t/%s/%s", srv.URL, name, v)},
				}
			}
			require.NoError(t, json.NewEncoder(w).Encode(doc))
		})

		for v, pkg := range versions {
			v, pkg := v, pkg
			mux.HandleFunc(fmt.Sprintf("/t/%s/%s", name, v), func(w http.ResponseWriter, r *http.Request) {
				w.Write(buildTarball(t, name, v, pkg))
			})
		}
	}

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func buildTarball(t *testing.T, name, version string, pkg fakePkg) []byte {
	t.Helper()
	manifest, err := json.Marshal(map[string]interface{}{
		"name":         name,
		"version":      version,
		"dependencies": pkg.Dependencies,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for relName, content := range map[string]string{"package.json": string(manifest), "index.js": pkg.Index} {
		hdr := &tar.Header{Name: "package/" + relName, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestBasicLocalInstallAndRequire(t *testing.T) {
	opts := testOptions(t)
	m, err := New(opts)
	require.NoError(t, err)

	src := t.TempDir()
	dir := writeFixture(t, src,
		map[string]interface{}{"name": "basic", "version": "1.0.0"},
		`module.exports = { myVariable: "value1" };`)

	info, err := m.InstallFromPath("basic", dir, InstallOptions{})
	require.NoError(t, err)
	require.Equal(t, "1.0.0", info.Version)

	val, err := m.Require("basic")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"myVariable": "value1"}, val)
}

func TestForceReinstallPicksUpChangedSource(t *testing.T) {
	opts := testOptions(t)
	m, err := New(opts)
	require.NoError(t, err)

	src := t.TempDir()
	dir := writeFixture(t, src,
		map[string]interface{}{"name": "basic", "version": "1.0.0"},
		`module.exports = { myVariable: "value1" };`)

	_, err = m.InstallFromPath("basic", dir, InstallOptions{})
	require.NoError(t, err)
	val, err := m.Require("basic")
	require.NoError(t, err)
	require.Equal(t, "value1", val.(map[string]interface{})["myVariable"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(`module.exports = { myVariable: "value2" };`), 0o644))

	_, err = m.InstallFromPath("basic", dir, InstallOptions{Force: true})
	require.NoError(t, err)

	val, err = m.Require("basic")
	require.NoError(t, err)
	require.Equal(t, "value2", val.(map[string]interface{})["myVariable"])
}

func TestDependencyVersionPinningAcrossTopLevelUpdate(t *testing.T) {
	opts := testOptions(t)
	srv := newFakeRegistry(t, map[string]map[string]fakePkg{
		"my-plugin-a": {
			"1.0.0": {Index: `module.exports = { tag: "a = v1" };`},
			"2.0.0": {Index: `module.exports = { tag: "v2" };`},
		},
		"my-plugin-b": {
			"1.0.0": {
				Dependencies: map[string]string{"my-plugin-a": "1.0.0"},
				Index:        `module.exports = { tag: "b(" + require("my-plugin-a").tag + ")" };`,
			},
		},
	})
	opts.NpmRegistryURL = srv.URL
	m, err := New(opts)
	require.NoError(t, err)

	_, err = m.InstallFromNpm("my-plugin-a", "1.0.0", InstallOptions{})
	require.NoError(t, err)
	_, err = m.InstallFromNpm("my-plugin-b", "1.0.0", InstallOptions{})
	require.NoError(t, err)
	_, err = m.InstallFromNpm("my-plugin-a", "2.0.0", InstallOptions{})
	require.NoError(t, err)

	a, err := m.Require("my-plugin-a")
	require.NoError(t, err)
	require.Equal(t, "v2", a.(map[string]interface{})["tag"])

	b, err := m.Require("my-plugin-b")
	require.NoError(t, err)
	require.Equal(t, "b(a = v1)", b.(map[string]interface{})["tag"])
}

func TestUninstallPreservesLinkedDependency(t *testing.T) {
	opts := testOptions(t)
	srv := newFakeRegistry(t, map[string]map[string]fakePkg{
		"my-plugin-a": {
			"1.0.0": {Index: `module.exports = { tag: "a = v1" };`},
			"2.0.0": {Index: `module.exports = { tag: "v2" };`},
		},
		"my-plugin-b": {
			"1.0.0": {
				Dependencies: map[string]string{"my-plugin-a": "1.0.0"},
				Index:        `module.exports = { tag: "b(" + require("my-plugin-a").tag + ")" };`,
			},
		},
	})
	opts.NpmRegistryURL = srv.URL
	m, err := New(opts)
	require.NoError(t, err)

	_, err = m.InstallFromNpm("my-plugin-a", "1.0.0", InstallOptions{})
	require.NoError(t, err)
	_, err = m.InstallFromNpm("my-plugin-b", "1.0.0", InstallOptions{})
	require.NoError(t, err)
	_, err = m.InstallFromNpm("my-plugin-a", "2.0.0", InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Uninstall("my-plugin-a"))

	_, err = m.Require("my-plugin-a")
	require.Error(t, err, "top-level binding for a should be gone")

	b, err := m.Require("my-plugin-b")
	require.NoError(t, err)
	require.Equal(t, "b(a = v1)", b.(map[string]interface{})["tag"], "b's pinned dependency must survive a's uninstall")
}

func TestSandboxIsolation(t *testing.T) {
	opts := testOptions(t)
	opts.Sandbox = SandboxTemplate{Env: map[string]string{"K": "v"}}
	m, err := New(opts)
	require.NoError(t, err)

	src := t.TempDir()
	dir := writeFixture(t, src,
		map[string]interface{}{"name": "envreader", "version": "1.0.0"},
		`global.X = 1; module.exports = { k: process.env.K, x: global.X };`)

	_, err = m.InstallFromPath("envreader", dir, InstallOptions{})
	require.NoError(t, err)

	val, err := m.Require("envreader")
	require.NoError(t, err)
	out := val.(map[string]interface{})
	require.Equal(t, "v", out["k"])
	require.Equal(t, float64(1), out["x"])
	require.Empty(t, os.Getenv("K"), "host environment must not observe the plugin's sandbox env")
}

func TestAlreadyInstalledModes(t *testing.T) {
	opts := testOptions(t)
	srv := newFakeRegistry(t, map[string]map[string]fakePkg{
		"widget": {
			"1.2.0": {Index: `module.exports = {};`},
		},
	})
	opts.NpmRegistryURL = srv.URL
	m, err := New(opts)
	require.NoError(t, err)

	_, err = m.InstallFromNpm("widget", "1.2.0", InstallOptions{})
	require.NoError(t, err)

	_, ok := m.AlreadyInstalled("widget", "^1.0.0", Satisfies)
	require.True(t, ok)

	_, ok = m.AlreadyInstalled("widget", "^2.0.0", Satisfies)
	require.False(t, ok)

	_, ok = m.AlreadyInstalled("widget", "^2.0.0", SatisfiesOrGreater)
	require.False(t, ok, "1.2.0 is below 2.0.0's minimum bound")

	_, ok = m.AlreadyInstalled("widget", "^1.0.0", SatisfiesOrGreater)
	require.True(t, ok)
}

func TestInstallFromCodeDefaultVersionForcesReinstall(t *testing.T) {
	opts := testOptions(t)
	m, err := New(opts)
	require.NoError(t, err)

	info, err := m.InstallFromCode("inline-one", `module.exports = { n: 1 };`, "", InstallOptions{})
	require.NoError(t, err)
	require.Equal(t, "0.0.0", info.Version)

	val, err := m.Require("inline-one")
	require.NoError(t, err)
	require.Equal(t, float64(1), val.(map[string]interface{})["n"])

	_, err = m.InstallFromCode("inline-one", `module.exports = { n: 2 };`, "", InstallOptions{})
	require.NoError(t, err)

	val, err = m.Require("inline-one")
	require.NoError(t, err)
	require.Equal(t, float64(2), val.(map[string]interface{})["n"])
}

func TestRunScriptAgainstActiveView(t *testing.T) {
	opts := testOptions(t)
	m, err := New(opts)
	require.NoError(t, err)

	_, err = m.InstallFromCode("helper", `module.exports = { greet: function() { return "hi"; } };`, "1.0.0", InstallOptions{})
	require.NoError(t, err)

	val, err := m.RunScript(`module.exports = require("helper").greet();`)
	require.NoError(t, err)
	require.Equal(t, "hi", val)
}

func TestLockContentionDuringInstall(t *testing.T) {
	opts := testOptions(t)
	m, err := New(opts)
	require.NoError(t, err)

	holder := lock.New(opts.PluginsPath, time.Second, time.Hour)
	release, err := holder.Acquire()
	require.NoError(t, err)

	src := t.TempDir()
	dir := writeFixture(t, src, map[string]interface{}{"name": "basic", "version": "1.0.0"}, `module.exports = {};`)

	_, err = m.InstallFromPath("basic", dir, InstallOptions{})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, LockBusy, kind)

	release()

	time.Sleep(opts.LockStale * 2)
	_, err = m.InstallFromPath("basic", dir, InstallOptions{})
	require.NoError(t, err, "a fresh install should succeed once the sentinel is stale and nothing holds it")
}
