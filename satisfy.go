// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"github.com/Masterminds/semver/v3"

	"github.com/golang/pluginvm/store"
)

// satisfyingInstalledVersion implements spec.md §4.C step 2 ("is a version
// already installed that satisfies selector") by scanning the store's
// installed set from highest to lowest and returning the first match. An
// unparsable selector (a git ref, a literal path) is treated as
// satisfied only by an exact-string match against an installed version,
// since there is nothing semver-shaped to range-match against.
func satisfyingInstalledVersion(m *store.Manager, name, selector string) (string, bool) {
	versions, err := m.VersionsOf(name)
	if err != nil || len(versions) == 0 {
		return "", false
	}

	constraint, err := semver.NewConstraint(selector)
	if err != nil {
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i] == selector {
				return versions[i], true
			}
		}
		return "", false
	}

	for i := len(versions) - 1; i >= 0; i-- {
		v, err := semver.NewVersion(versions[i])
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			return versions[i], true
		}
	}
	return "", false
}
