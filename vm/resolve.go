// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// isPathSpec reports whether spec is a relative or absolute filesystem
// reference rather than a package name (spec.md §4.E step 3).
func isPathSpec(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/") || spec == "." || spec == ".."
}

// splitSpec splits a package-name spec into its head ("name" or
// "@scope/name") and an optional remainder path (spec.md §4.E step 4).
func splitSpec(spec string) (head, rest string) {
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, "/", 3)
		if len(parts) < 2 {
			return spec, ""
		}
		head = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			rest = parts[2]
		}
		return head, rest
	}
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// resolvePathSpec applies spec.md §4.E step 3's file-extension and
// directory resolution rules to spec relative to fromDir (or as-is if
// spec is already absolute), always returning a concrete file path. A file
// with a given name wins over a directory of the same name.
func resolvePathSpec(fromDir, spec string) (string, error) {
	base := spec
	if !filepath.IsAbs(spec) {
		base = filepath.Join(fromDir, spec)
	}
	return resolveFileOrDirectory(base)
}

// resolveFileOrDirectory implements the exact-then-.js-then-.json file
// probe, falling back to directory resolution via package.json main or
// index.js (spec.md §4.E step 3).
func resolveFileOrDirectory(base string) (string, error) {
	if fi, err := os.Stat(base); err == nil && !fi.IsDir() {
		return base, nil
	}

	for _, ext := range []string{".js", ".json"} {
		candidate := base + ext
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
	}

	if fi, err := os.Stat(base); err == nil && fi.IsDir() {
		return resolvePackageMain(base)
	}

	return "", errors.Errorf("cannot resolve module path %q", base)
}

// resolvePackageMain reads dir/package.json's main field (default
// index.js) and resolves it, so a main entry that itself points at a
// directory is handled the same way a require() spec would be.
func resolvePackageMain(dir string) (string, error) {
	main := "index.js"
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err == nil {
		var doc struct {
			Main string `json:"main"`
		}
		if jerr := json.Unmarshal(raw, &doc); jerr == nil && doc.Main != "" {
			main = doc.Main
		}
	}
	return resolveFileOrDirectory(filepath.Join(dir, main))
}
