// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// AuthKind distinguishes the two credential shapes a git host accepts.
type AuthKind string

const (
	AuthBasic AuthKind = "basic"
	AuthToken AuthKind = "token"
)

// Authentication is the {type, ...} credential bundle passed to the GitHub
// and Bitbucket fetchers. Exactly one of (Username+Password) or Token is
// meaningful, selected by Kind.
type Authentication struct {
	Kind     AuthKind
	Username string
	Password string
	Token    string
}

// NamePattern is a single entry of the ignoredDependencies list: either an
// exact string or a regular expression, per spec.md §4.C step 5.
type NamePattern struct {
	Literal string
	Regexp  *regexp.Regexp
}

func (p NamePattern) Matches(name string) bool {
	if p.Regexp != nil {
		return p.Regexp.MatchString(name)
	}
	return p.Literal == name
}

// Options configures a Manager. Every field is optional; New fills in
// defaults the way the teacher's NewContext derives GOPATH.
type Options struct {
	Cwd          string
	PluginsPath  string
	VersionsPath string

	Sandbox SandboxTemplate

	NpmRegistryURL    string
	NpmRegistryConfig interface{}
	NpmInstallMode    InstallMode

	// RequireCoreModules defaults to true; pass a pointer to false to
	// disable resolution of the host's core modules.
	RequireCoreModules *bool
	HostRequire        func(spec string) (interface{}, bool)

	IgnoredDependencies []NamePattern
	StaticDependencies  map[string]interface{}

	GithubAuthentication    *Authentication
	BitbucketAuthentication *Authentication

	LockWait  time.Duration
	LockStale time.Duration

	Logger Logger
}

// Logger is the minimal structured-logging capability the manager needs.
// *logrus.Logger and *logrus.Entry do not satisfy it directly (their
// WithField returns *logrus.Entry); the log package's Entry adapts them.
type Logger interface {
	WithField(key string, value interface{}) Logger
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const (
	defaultPluginsDir = "plugin_packages"
	defaultVersionsDir = ".versions"
	defaultRegistryURL = "https://registry.npmjs.org"
	defaultLockWait    = 5 * time.Second
	defaultLockStale   = 30 * time.Second
)

// withDefaults returns a copy of o with every unset field filled in,
// mirroring the teacher's NewContext default-derivation.
func (o Options) withDefaults() (Options, error) {
	out := o

	if out.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return out, errors.Wrap(err, "getting working directory")
		}
		out.Cwd = wd
	}
	if out.PluginsPath == "" {
		out.PluginsPath = filepath.Join(out.Cwd, defaultPluginsDir)
	}
	if out.VersionsPath == "" {
		out.VersionsPath = filepath.Join(out.PluginsPath, defaultVersionsDir)
	}
	if out.NpmRegistryURL == "" {
		out.NpmRegistryURL = defaultRegistryURL
	}
	if out.NpmInstallMode == "" {
		out.NpmInstallMode = UseCache
	}
	if out.LockWait == 0 {
		out.LockWait = defaultLockWait
	}
	if out.LockStale == 0 {
		out.LockStale = defaultLockStale
	}
	if out.Sandbox.Env == nil {
		out.Sandbox.Env = hostEnv()
	}
	if out.Sandbox.Global == nil {
		out.Sandbox.Global = map[string]interface{}{}
	}
	if out.StaticDependencies == nil {
		out.StaticDependencies = map[string]interface{}{}
	}
	if out.RequireCoreModules == nil {
		t := true
		out.RequireCoreModules = &t
	}

	return out, nil
}

// hostEnv copies the host's environment into a fresh map, per spec.md
// §4.E "Sandbox" (defaults derive from the host, shallow-copied).
func hostEnv() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
