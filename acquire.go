// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"github.com/golang/pluginvm/fetch"
	"github.com/golang/pluginvm/store"
)

// sourceKind selects which Fetcher a top-level install call should use;
// recursion into a manifest's declared dependencies always goes through
// the registry fetcher, the way npm's own dependency resolution does
// regardless of how the top-level package was obtained.
type sourceKind int

const (
	sourceRegistry sourceKind = iota
	sourceGithub
	sourceBitbucket
	sourceLocal
	sourceInline
)

// acquisition is the Package Acquisition Pipeline of spec.md §4.C. It is
// constructed fresh by the facade for each install call (it is stateless
// across calls except for the shared Store and fetchers).
type acquisition struct {
	opts     Options
	versions *store.Manager
	registry fetch.Fetcher
	github   fetch.Fetcher
	bucket   fetch.Fetcher
	local    fetch.Fetcher
	inline   *fetch.InlineFetcher
}

func (a *acquisition) fetcherFor(kind sourceKind) fetch.Fetcher {
	switch kind {
	case sourceGithub:
		return a.github
	case sourceBitbucket:
		return a.bucket
	case sourceLocal:
		return a.local
	case sourceInline:
		return a.inline
	default:
		return a.registry
	}
}

// install implements spec.md §4.C's seven steps for one (name, selector),
// recursing depth-first into declared dependencies (spec.md §5 "Within a
// single install, dependency installation is sequential").
func (a *acquisition) install(kind sourceKind, name, selector string, opts InstallOptions, isTopLevel bool, parent store.Node, depNameInParent string) (*PluginInfo, error) {
	if err := validatePluginName(name); err != nil {
		return nil, err
	}

	if !opts.Force {
		if info, ok := a.alreadySatisfied(name, selector); ok {
			if isTopLevel {
				if err := a.versions.LinkTopLevel(name, info.Version); err != nil {
					return nil, wrapf(FetchFailed, err, "publishing %s@%s", name, info.Version)
				}
			} else {
				if err := a.versions.Link(parent, depNameInParent, store.Node{Name: name, Version: info.Version}); err != nil {
					return nil, wrapf(FetchFailed, err, "linking %s@%s", name, info.Version)
				}
			}
			return info, nil
		}
	}

	fetcher := a.fetcherFor(kind)
	manifest, err := fetcher.Resolve(name, selector)
	if err != nil {
		return nil, wrapf(NotFound, err, "resolving %s@%s", name, selector)
	}

	if !a.versions.Store.HasVersion(manifest.Name, manifest.Version) || opts.Force {
		// A forced reinstall into an already-materialised version directory
		// must clear it first: fetchers like LocalFetcher use shutil.CopyTree,
		// which refuses to copy into an existing destination.
		if opts.Force && a.versions.Store.HasVersion(manifest.Name, manifest.Version) {
			if err := a.versions.Store.DeleteVersion(manifest.Name, manifest.Version); err != nil {
				return nil, wrapf(FetchFailed, err, "clearing %s@%s for reinstall", manifest.Name, manifest.Version)
			}
		}
		dir := a.versions.Store.VersionDir(manifest.Name, manifest.Version)
		if err := fetcher.Download(manifest, dir); err != nil {
			return nil, wrapf(FetchFailed, err, "downloading %s@%s", manifest.Name, manifest.Version)
		}
	}

	self := store.Node{Name: manifest.Name, Version: manifest.Version}

	details := map[string]*PackageManifest{}
	flattened := map[string]string{}

	deps := manifest.Dependencies
	for depName, depSelector := range deps {
		dm, handled, err := a.installDependency(self, depName, depSelector, false)
		if err != nil {
			return nil, err
		}
		if handled {
			flattened[depName] = depSelector
			if dm != nil {
				details[depName] = dm
			}
		}
	}
	for depName, depSelector := range manifest.OptionalDependencies {
		dm, handled, err := a.installDependency(self, depName, depSelector, true)
		if err != nil {
			if a.opts.Logger != nil {
				a.opts.Logger.Warnf("optional dependency %s of %s failed: %s", depName, manifest.Name, err)
			}
			continue
		}
		if handled {
			flattened[depName] = depSelector
			if dm != nil {
				details[depName] = dm
			}
		}
	}

	if isTopLevel {
		if err := a.versions.LinkTopLevel(manifest.Name, manifest.Version); err != nil {
			return nil, wrapf(FetchFailed, err, "publishing %s@%s", manifest.Name, manifest.Version)
		}
	} else {
		if err := a.versions.Link(parent, depNameInParent, self); err != nil {
			return nil, wrapf(FetchFailed, err, "linking %s@%s", manifest.Name, manifest.Version)
		}
	}

	location := store.VersionPath(a.opts.VersionsPath, manifest.Name, manifest.Version)
	return &PluginInfo{
		Name:              manifest.Name,
		Version:           manifest.Version,
		Location:          location,
		MainFile:          joinPath(location, mainFileOf(manifest)),
		Dependencies:      flattened,
		DependencyDetails: details,
	}, nil
}

// mainFileOf returns m.Main, defaulting to index.js per spec.md §3 (the
// fetch package's Manifest carries no helper of its own, to keep that
// package free of a dependency back on the root package's types).
func mainFileOf(m *fetch.Manifest) string {
	if m.Main == "" {
		return "index.js"
	}
	return m.Main
}

// installDependency implements the skip rules of spec.md §4.C step 5:
// ignoredDependencies, staticDependencies, and host-resolvable names get
// no versioned copy and no DependencyGraph edge, and are returned as "not
// handled" so the caller leaves them out of the plugin's Dependencies and
// DependencyDetails maps.
func (a *acquisition) installDependency(parent store.Node, depName, depSelector string, optional bool) (*PackageManifest, bool, error) {
	if matchesAny(depName, a.opts.IgnoredDependencies) {
		return nil, false, nil
	}
	if _, ok := a.opts.StaticDependencies[depName]; ok {
		return nil, false, nil
	}
	if a.opts.HostRequire != nil {
		if _, ok := a.opts.HostRequire(depName); ok {
			return nil, false, nil
		}
	}

	info, err := a.install(sourceRegistry, depName, depSelector, InstallOptions{}, false, parent, depName)
	if err != nil {
		return nil, true, err
	}
	return &PackageManifest{Name: info.Name, Version: info.Version, Main: ""}, true, nil
}

// alreadySatisfied implements spec.md §4.C step 2: if an installed version
// already satisfies selector, no network or file writes happen.
func (a *acquisition) alreadySatisfied(name, selector string) (*PluginInfo, bool) {
	version, ok := satisfyingInstalledVersion(a.versions, name, selector)
	if !ok {
		return nil, false
	}
	location := store.VersionPath(a.opts.VersionsPath, name, version)
	return &PluginInfo{
		Name:     name,
		Version:  version,
		Location: location,
		MainFile: joinPath(location, "index.js"),
	}, true
}

func joinPath(dir, file string) string {
	if file == "" {
		file = "index.js"
	}
	return dir + string('/') + file
}
