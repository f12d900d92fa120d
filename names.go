// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"regexp"
	"strings"
)

// registryNameRE mirrors npm's lowercased, optionally-scoped name grammar
// (spec.md §6 "Plugin name rules").
var registryNameRE = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._-]*/)?[a-z0-9][a-z0-9._-]*$`)

// validatePluginName enforces spec.md §4.C step 1 and §6: non-empty, not a
// relative path, no traversal, registry-name grammar.
func validatePluginName(name string) error {
	if name == "" {
		return newError(InvalidPluginName, name, "", nil)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return newError(InvalidPluginName, name, "", nil)
	}
	if strings.Contains(name, "..") {
		return newError(InvalidPluginName, name, "", nil)
	}
	if !registryNameRE.MatchString(name) {
		return newError(InvalidPluginName, name, "", nil)
	}
	return nil
}

// matchesAny reports whether name matches any of the given patterns, used
// for ignoredDependencies (spec.md §4.C step 5) membership tests.
func matchesAny(name string, patterns []NamePattern) bool {
	for _, p := range patterns {
		if p.Matches(name) {
			return true
		}
	}
	return false
}
