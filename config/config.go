// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads a pluginvm.toml project file, overlaid by
// environment variables, into a pluginvm.Options the way trywpm-cli's own
// config package wires spf13/viper and pelletier/go-toml together, then
// validates the result with go-playground/validator/v10 before any I/O
// happens (SPEC_FULL.md "Configuration"/"Validation").
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/golang/pluginvm"
)

// File is the pluginvm.toml shape: a flat project config overlaying
// constructor Options (spec.md §6). Every field is optional.
type File struct {
	PluginsPath  string `mapstructure:"plugins_path" toml:"plugins_path" validate:"omitempty,dirpath|filepath"`
	VersionsPath string `mapstructure:"versions_path" toml:"versions_path"`

	NpmRegistryURL string `mapstructure:"npm_registry_url" toml:"npm_registry_url" validate:"omitempty,url"`
	NpmInstallMode string `mapstructure:"npm_install_mode" toml:"npm_install_mode" validate:"omitempty,oneof=useCache noCache"`

	RequireCoreModules *bool    `mapstructure:"require_core_modules" toml:"require_core_modules"`
	IgnoredDependencies []string `mapstructure:"ignored_dependencies" toml:"ignored_dependencies"`

	GithubToken    string `mapstructure:"github_token" toml:"github_token"`
	BitbucketToken string `mapstructure:"bitbucket_token" toml:"bitbucket_token"`

	LockWaitMS  int `mapstructure:"lock_wait_ms" toml:"lock_wait_ms" validate:"omitempty,gte=0"`
	LockStaleMS int `mapstructure:"lock_stale_ms" toml:"lock_stale_ms" validate:"omitempty,gte=0"`
}

var validate = validator.New()

// Load reads path (a pluginvm.toml) if it exists, overlays PLUGINVM_*
// environment variables via viper, validates the merged result, and
// returns the equivalent pluginvm.Options. path == "" skips the file and
// reads only the environment and built-in defaults.
func Load(path string) (pluginvm.Options, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("PLUGINVM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only answers Get calls for keys viper already knows;
	// Unmarshal sees an environment variable only if its key is bound.
	for _, key := range []string{
		"plugins_path", "versions_path", "npm_registry_url", "npm_install_mode",
		"require_core_modules", "ignored_dependencies", "github_token",
		"bitbucket_token", "lock_wait_ms", "lock_stale_ms",
	} {
		if err := v.BindEnv(key); err != nil {
			return pluginvm.Options{}, errors.Wrapf(err, "binding %s", key)
		}
	}

	if path != "" {
		raw, err := loadTOML(path)
		if err != nil {
			return pluginvm.Options{}, err
		}
		for k, val := range raw {
			v.SetDefault(k, val)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return pluginvm.Options{}, errors.Wrap(err, "decoding pluginvm config")
	}

	if err := validate.Struct(&f); err != nil {
		return pluginvm.Options{}, errors.Wrap(err, "validating pluginvm config")
	}

	return f.toOptions(), nil
}

// loadTOML parses path with pelletier/go-toml into a flat map viper can
// layer as config defaults, so environment variables (AutomaticEnv) still
// take precedence over the file (go-toml is a parser, not a layered
// config source, the way viper's own file support would be; trywpm-cli
// resolves the same tension the same way).
func loadTOML(path string) (map[string]interface{}, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return tree.ToMap(), nil
}

func (f File) toOptions() pluginvm.Options {
	opts := pluginvm.Options{
		PluginsPath:         f.PluginsPath,
		VersionsPath:        f.VersionsPath,
		NpmRegistryURL:      f.NpmRegistryURL,
		RequireCoreModules:  f.RequireCoreModules,
	}

	switch f.NpmInstallMode {
	case "noCache":
		opts.NpmInstallMode = pluginvm.NoCache
	case "useCache":
		opts.NpmInstallMode = pluginvm.UseCache
	}

	for _, name := range f.IgnoredDependencies {
		opts.IgnoredDependencies = append(opts.IgnoredDependencies, pluginvm.NamePattern{Literal: name})
	}

	if f.GithubToken != "" {
		opts.GithubAuthentication = &pluginvm.Authentication{Kind: pluginvm.AuthToken, Token: f.GithubToken}
	}
	if f.BitbucketToken != "" {
		opts.BitbucketAuthentication = &pluginvm.Authentication{Kind: pluginvm.AuthToken, Token: f.BitbucketToken}
	}

	if f.LockWaitMS > 0 {
		opts.LockWait = time.Duration(f.LockWaitMS) * time.Millisecond
	}
	if f.LockStaleMS > 0 {
		opts.LockStale = time.Duration(f.LockStaleMS) * time.Millisecond
	}

	return opts
}
