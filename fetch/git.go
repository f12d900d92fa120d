// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// Auth is the {type, ...} credential bundle a git-host fetcher needs,
// mirrored from the root package's Authentication so this package carries
// no dependency back on it (spec.md §6 githubAuthentication/
// bitbucketAuthentication).
type Auth struct {
	Username string
	Password string
	Token    string
}

// GitFetcher resolves "owner/repo[#ref]" selectors (spec.md §6 "Git-host
// ref grammar") against a single git host, identified by its clone-URL
// host name (e.g. "github.com", "bitbucket.org").
type GitFetcher struct {
	Host string
	Auth *Auth

	mu     sync.Mutex
	clones map[string]string // "owner/repo#ref" -> local checkout dir
}

func NewGitFetcher(host string, auth *Auth) *GitFetcher {
	return &GitFetcher{Host: host, Auth: auth, clones: map[string]string{}}
}

// parseSelector splits "owner/repo[#ref]" per spec.md §6; ref defaults to
// HEAD when omitted.
func parseSelector(selector string) (ownerRepo, ref string, err error) {
	parts := strings.SplitN(selector, "#", 2)
	ownerRepo = parts[0]
	if len(parts) == 2 {
		ref = parts[1]
	} else {
		ref = "HEAD"
	}
	if strings.Count(ownerRepo, "/") != 1 {
		return "", "", errors.Errorf("invalid git selector %q, expected owner/repo[#ref]", selector)
	}
	return ownerRepo, ref, nil
}

func (f *GitFetcher) remoteURL(ownerRepo string) string {
	if f.Auth != nil && f.Auth.Token != "" {
		return fmt.Sprintf("https://%s@%s/%s.git", f.Auth.Token, f.Host, ownerRepo)
	}
	if f.Auth != nil && f.Auth.Username != "" {
		return fmt.Sprintf("https://%s:%s@%s/%s.git", f.Auth.Username, f.Auth.Password, f.Host, ownerRepo)
	}
	return fmt.Sprintf("https://%s/%s.git", f.Host, ownerRepo)
}

// checkout clones (or reuses a prior clone of) ownerRepo at ref, returning
// the local working directory.
func (f *GitFetcher) checkout(ownerRepo, ref string) (string, error) {
	key := ownerRepo + "#" + ref

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir, ok := f.clones[key]; ok {
		return dir, nil
	}

	dir, err := os.MkdirTemp("", "pluginvm-git-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp checkout directory")
	}

	repo, err := vcs.NewGitRepo(f.remoteURL(ownerRepo), dir)
	if err != nil {
		return "", errors.Wrapf(err, "initialising git repo for %s", ownerRepo)
	}
	if err := repo.Get(); err != nil {
		return "", errors.Wrapf(err, "cloning %s", ownerRepo)
	}
	if ref != "" && ref != "HEAD" {
		if err := repo.UpdateVersion(ref); err != nil {
			return "", errors.Wrapf(err, "checking out %s at %s", ownerRepo, ref)
		}
	}

	f.clones[key] = dir
	return dir, nil
}

// Resolve implements Fetcher: clone/checkout the selector and read its
// package.json.
func (f *GitFetcher) Resolve(name, selector string) (*Manifest, error) {
	ownerRepo, ref, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}

	dir, err := f.checkout(ownerRepo, ref)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading package.json for %s", ownerRepo)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing package.json for %s", ownerRepo)
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Main == "" {
		m.Main = "index.js"
	}
	return &m, nil
}

// Download copies the already-checked-out working tree into destDir.
func (f *GitFetcher) Download(manifest *Manifest, destDir string) error {
	// The selector that produced manifest isn't carried on Manifest, so
	// Download relies on Resolve having populated the clone cache for
	// every selector this process has seen; the acquisition pipeline
	// always calls Resolve immediately before Download (spec.md §4.C).
	f.mu.Lock()
	var dir string
	for _, d := range f.clones {
		if hasPackageJSONNamed(d, manifest.Name, manifest.Version) {
			dir = d
			break
		}
	}
	f.mu.Unlock()

	if dir == "" {
		return errors.Errorf("no checkout cached for %s@%s; Resolve must run before Download", manifest.Name, manifest.Version)
	}

	return copyTreeExcludingVCS(dir, destDir)
}

func hasPackageJSONNamed(dir, name, version string) bool {
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var m Manifest
	if json.Unmarshal(raw, &m) != nil {
		return false
	}
	return (m.Name == name || name == "") && m.Version == version
}

func copyTreeExcludingVCS(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = out.ReadFrom(in)
		return err
	})
}
