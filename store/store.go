// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Store owns the two regions of the VersionedStore (spec.md §3): the
// versioned region (.versions/<name>@<version>) and the active region
// (<pluginsPath>/<name>), plus the copy between them.
type Store struct {
	PluginsPath  string
	VersionsPath string
}

func New(pluginsPath, versionsPath string) *Store {
	return &Store{PluginsPath: pluginsPath, VersionsPath: versionsPath}
}

// VersionDir returns the canonical directory for (name, version), creating
// no files; callers (fetchers) materialise it via Download.
func (s *Store) VersionDir(name, version string) string {
	return VersionPath(s.VersionsPath, name, version)
}

// HasVersion reports whether (name, version) already has a canonical copy.
func (s *Store) HasVersion(name, version string) bool {
	fi, err := os.Stat(s.VersionDir(name, version))
	return err == nil && fi.IsDir()
}

// Versions returns every installed version of name, ordered ascending by
// semver (spec.md §4.D "versionsOf").
func (s *Store) Versions(name string) ([]string, error) {
	dir, prefix := versionsDir(s.VersionsPath, name)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var versions []*semver.Version
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		raw := strings.TrimPrefix(e.Name(), prefix)
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue // not a semver-shaped entry; ignore rather than fail the whole listing
		}
		versions = append(versions, v)
	}

	sort.Sort(semver.Collection(versions))

	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.Original()
	}
	return out, nil
}

// HighestVersion returns the highest installed version of name, per
// Invariant 5 (active version is always the highest installed).
func (s *Store) HighestVersion(name string) (string, bool, error) {
	versions, err := s.Versions(name)
	if err != nil {
		return "", false, err
	}
	if len(versions) == 0 {
		return "", false, nil
	}
	return versions[len(versions)-1], true, nil
}

// DeleteVersion removes (name, version)'s canonical copy. It is called for
// versions whose refcount reached zero (store/graph.go), and by a forced
// reinstall that clears the directory before downloading it again.
func (s *Store) DeleteVersion(name, version string) error {
	return os.RemoveAll(s.VersionDir(name, version))
}

// PublishActive recomputes the active view for name from whatever is
// currently the highest installed version, removing the active directory
// entirely if no version remains (Invariant 5).
func (s *Store) PublishActive(name string) error {
	active := ActivePath(s.PluginsPath, name)

	highest, ok, err := s.HighestVersion(name)
	if err != nil {
		return err
	}
	if !ok {
		return os.RemoveAll(active)
	}

	if err := os.RemoveAll(active); err != nil {
		return errors.Wrapf(err, "clearing stale active view for %s", name)
	}
	return copyTree(s.VersionDir(name, highest), active)
}

// copyTree recursively copies src to dst, preserving file modes, walking
// with godirwalk instead of the standard library's directory reads (the
// teacher vendors godirwalk for exactly this kind of bulk tree-copy).
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	return godirwalk.Walk(src, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			target := filepath.Join(dst, rel)

			if de.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyFile(path, target)
		},
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return nil
}
