// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

// PackageManifest is the metadata read from a package's package.json. It is
// immutable once parsed: fetchers produce one, the acquisition pipeline
// reads it, nobody mutates it in place.
type PackageManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Main                 string            `json:"main"`
	Dependencies         map[string]string `json:"dependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// mainOrDefault returns Main, defaulting to index.js per spec.md §3.
func (m *PackageManifest) mainOrDefault() string {
	if m.Main == "" {
		return "index.js"
	}
	return m.Main
}

// PluginInfo describes a single installed (name, version) pair as the
// facade and loader see it.
type PluginInfo struct {
	Name     string
	Version  string
	MainFile string // absolute path to the entry file
	Location string // absolute path to the plugin's directory

	// Dependencies is the flattened name->selector map the loader will
	// honour when resolving require() calls from within this plugin.
	Dependencies map[string]string

	// DependencyDetails is name -> the exact manifest the plugin was
	// linked to, filled in once every dependency has resolved.
	DependencyDetails map[string]*PackageManifest
}

// SandboxTemplate is the {env, global} pair used to build a plugin's
// isolated evaluation context (spec.md §4.E "Sandbox").
type SandboxTemplate struct {
	Env    map[string]string
	Global map[string]interface{}
}

// clone returns a deep-enough copy so that mutations inside a plugin never
// leak back into the template it was built from.
func (t *SandboxTemplate) clone() *SandboxTemplate {
	out := &SandboxTemplate{
		Env:    make(map[string]string, len(t.Env)),
		Global: make(map[string]interface{}, len(t.Global)),
	}
	for k, v := range t.Env {
		out.Env[k] = v
	}
	for k, v := range t.Global {
		out.Global[k] = v
	}
	return out
}

// InstallMode selects the registry fetcher's caching behaviour.
type InstallMode string

const (
	// UseCache skips the network if a satisfying version is already
	// present in .versions/. Default.
	UseCache InstallMode = "useCache"
	// NoCache always resolves against the registry.
	NoCache InstallMode = "noCache"
)

// AlreadyInstalledMode selects how alreadyInstalled compares an installed
// set against a requested selector.
type AlreadyInstalledMode string

const (
	// Satisfies requires some installed version to satisfy the selector
	// under normal semver range rules.
	Satisfies AlreadyInstalledMode = "satisfies"
	// SatisfiesOrGreater additionally accepts any installed version that
	// is greater-than-or-equal to the selector's minimum bound.
	SatisfiesOrGreater AlreadyInstalledMode = "satisfiesOrGreater"
)

// InstallOptions tunes a single install call.
type InstallOptions struct {
	Force bool
}
