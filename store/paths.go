// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the Version Manager (spec.md §4.D): the
// versioned on-disk store, the active-version map, the dependency graph,
// and reference counting that decides when a version becomes garbage.
package store

import (
	"path/filepath"
	"strings"
)

// ActivePath returns the active-view directory for name, e.g.
// "<pluginsPath>/@scope/name" for a scoped name (spec.md §6).
func ActivePath(pluginsPath, name string) string {
	return filepath.Join(pluginsPath, name)
}

// VersionPath returns the canonical .versions/ directory for (name,
// version), e.g. "<versionsPath>/@scope/name@version".
func VersionPath(versionsPath, name, version string) string {
	return filepath.Join(versionsPath, name+"@"+version)
}

// versionsDir returns the directory to scan for installed versions of
// name, and the "<base>@" prefix each version's directory entry carries.
func versionsDir(versionsPath, name string) (dir, prefix string) {
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		return filepath.Join(versionsPath, name[:idx]), name[idx+1:] + "@"
	}
	return versionsPath, name + "@"
}
