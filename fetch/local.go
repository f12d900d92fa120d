// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	shutil "github.com/termie/go-shutil"

	"github.com/pkg/errors"
)

// sourcePaths remembers the absolute path a given (name, version) resolved
// from, since Manifest itself has no room for fetcher-private state and
// Download must relocate the same files Resolve just read.
var sourcePaths sync.Map

func sourceOf(m *Manifest) (string, bool) {
	v, ok := sourcePaths.Load(m.Name + "@" + m.Version)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// LocalFetcher resolves an absolute filesystem path selector (spec.md
// §4.B "an absolute filesystem path").
type LocalFetcher struct{}

func (LocalFetcher) Resolve(name, selector string) (*Manifest, error) {
	if !filepath.IsAbs(selector) {
		return nil, errors.Errorf("local path selector %q must be absolute", selector)
	}
	raw, err := os.ReadFile(filepath.Join(selector, "package.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading package.json at %s", selector)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing package.json at %s", selector)
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Main == "" {
		m.Main = "index.js"
	}
	// The path itself is the only thing Download needs to find the files
	// again; stash it in a field that survives the round trip by reusing
	// Version as a sentinel is wrong, so LocalFetcher keeps its own
	// resolve->path table instead (see sourceOf above).
	sourcePaths.Store(m.Name+"@"+m.Version, selector)
	return &m, nil
}

func (LocalFetcher) Download(manifest *Manifest, destDir string) error {
	src, ok := sourceOf(manifest)
	if !ok {
		return errors.Errorf("no resolved source path for %s@%s; Resolve must run before Download", manifest.Name, manifest.Version)
	}

	_, err := shutil.CopyTree(src, destDir, &shutil.CopyTreeOptions{
		Symlinks:               true,
		IgnoreDanglingSymlinks: true,
		CopyFunction:           shutil.Copy,
	})
	return errors.Wrapf(err, "copying local plugin from %s", src)
}
