// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/robertkrimen/otto"

	"github.com/golang/pluginvm/store"
)

// PluginRef identifies the plugin whose context a require() call runs
// against. runScriptRef is the synthetic identity runScript's nameless
// module runs under: its require resolves against the active view rather
// than any single plugin's DependencyGraph bindings.
type PluginRef struct {
	Name    string
	Version string
}

var runScriptRef = PluginRef{Name: "\x00runScript"}

// Resolver is the Version Manager oracle the loader consults for package
// specs (spec.md §4.E step 4); store.Manager satisfies it directly.
type Resolver interface {
	ResolveFor(pluginName, pluginVersion, depName string) (string, bool)
	ActiveVersionOf(name string) (string, bool)
}

// pluginContext bundles one plugin's isolated evaluation Context with its
// own export cache (see cache.go for why the cache is scoped here rather
// than process-wide).
type pluginContext struct {
	ref   PluginRef
	vm    *Context
	cache *cache
}

// Loader implements the Sandboxed Module Loader of spec.md §4.E.
type Loader struct {
	mu           sync.Mutex
	contexts     map[PluginRef]*pluginContext
	versionsPath string
	resolver     Resolver

	RequireCoreModules bool
	HostRequire        func(spec string) (interface{}, bool)
	StaticDependencies map[string]interface{}
}

func NewLoader(versionsPath string, resolver Resolver) *Loader {
	return &Loader{
		contexts:           map[PluginRef]*pluginContext{},
		versionsPath:       versionsPath,
		resolver:           resolver,
		RequireCoreModules: true,
	}
}

// contextFor returns (creating if necessary) the Context for ref, built
// from tmpl on first use (spec.md §4.E "Sandboxes are installed on first
// load per plugin").
func (l *Loader) contextFor(ref PluginRef, tmpl Template) (*pluginContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pc, ok := l.contexts[ref]; ok {
		return pc, nil
	}

	ctx, err := NewContext(tmpl)
	if err != nil {
		return nil, err
	}
	pc := &pluginContext{ref: ref, vm: ctx, cache: newCache()}
	l.contexts[ref] = pc
	return pc, nil
}

// Require loads mainFile (relative to location) inside ref's sandbox and
// returns its exported value (spec.md §4.F "require").
func (l *Loader) Require(ref PluginRef, location, mainFile string, tmpl Template) (interface{}, error) {
	pc, err := l.contextFor(ref, tmpl)
	if err != nil {
		return nil, err
	}

	abs := mainFile
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(location, mainFile)
	}
	resolved, err := resolveFileOrDirectory(abs)
	if err != nil {
		return nil, newError(errors.Wrapf(err, "resolving main file for %s", ref.Name))
	}

	val, err := l.loadFile(pc, resolved)
	if err != nil {
		return nil, err
	}
	return val.Export()
}

// RunScript compiles code as a nameless module whose require resolves
// against the active view (spec.md §4.F "runScript").
func (l *Loader) RunScript(code string, tmpl Template) (interface{}, error) {
	pc, err := l.contextFor(runScriptRef, tmpl)
	if err != nil {
		return nil, err
	}

	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	synthetic := filepath.Join(dir, "__runScript__.js")

	exportsObj, err := pc.vm.VM.Object(`({})`)
	if err != nil {
		return nil, err
	}

	val, err := l.evalSource(pc, synthetic, code, exportsObj.Value())
	if err != nil {
		return nil, err
	}
	return val.Export()
}

// InvalidateRoot drops every cached export, across every plugin's Context,
// whose origin directory is inside root (spec.md §4.E "Invalidation").
func (l *Loader) InvalidateRoot(root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pc := range l.contexts {
		pc.cache.invalidatePrefix(root)
	}
}

// loadFile loads an already-extension-resolved file path inside pc,
// honouring the export cache and circular-require contract.
func (l *Loader) loadFile(pc *pluginContext, resolved string) (otto.Value, error) {
	canon, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return otto.Value{}, newError(errors.Wrapf(err, "canonicalising %s", resolved))
	}

	if exports, ok := pc.cache.lookup(canon); ok {
		return exports, nil
	}

	src, err := os.ReadFile(canon)
	if err != nil {
		return otto.Value{}, newError(errors.Wrapf(err, "reading %s", canon))
	}

	placeholder, err := pc.vm.VM.Object(`({})`)
	if err != nil {
		return otto.Value{}, err
	}

	state, known := pc.cache.begin(canon, placeholder.Value())
	if known {
		if state.done {
			return state.exports, nil
		}
		return state.loading, nil
	}

	// placeholder.Value() is handed straight to evalSource as the initial
	// module.exports, the same object reference cache.begin just recorded
	// as this module's in-progress exports. A circular require that lands
	// back here mid-evaluation (via state.loading above) therefore observes
	// whatever properties this module has assigned so far, per CommonJS.
	exports, err := l.evalSource(pc, canon, string(src), placeholder.Value())
	if err != nil {
		pc.cache.fail(canon)
		return otto.Value{}, err
	}

	pc.cache.finish(canon, exports)
	return exports, nil
}

// evalSource compiles source as the body of a CommonJS module function and
// calls it with module.exports seeded to exportsObj — the caller's
// placeholder for loadFile, or a fresh object for RunScript (spec.md §4.E
// "Execution").
func (l *Loader) evalSource(pc *pluginContext, filename, source string, exportsObj otto.Value) (otto.Value, error) {
	wrapperSrc := "(function(module, exports, require, __filename, __dirname, global, process) {\n" + source + "\n})"
	wrapper, err := pc.vm.VM.Run(wrapperSrc)
	if err != nil {
		return otto.Value{}, newError(errors.Wrapf(err, "compiling %s", filename))
	}

	moduleObj, err := pc.vm.VM.Object(`({})`)
	if err != nil {
		return otto.Value{}, err
	}
	if err := moduleObj.Set("exports", exportsObj); err != nil {
		return otto.Value{}, err
	}

	requireFn, err := pc.vm.VM.ToValue(func(call otto.FunctionCall) otto.Value {
		spec := call.Argument(0).String()
		v, rerr := l.requireSpec(pc, filename, spec)
		if rerr != nil {
			panic(pc.vm.VM.MakeCustomError("Error", rerr.Error()))
		}
		return v
	})
	if err != nil {
		return otto.Value{}, err
	}

	dirVal, err := pc.vm.VM.ToValue(filepath.Dir(filename))
	if err != nil {
		return otto.Value{}, err
	}
	fileVal, err := pc.vm.VM.ToValue(filename)
	if err != nil {
		return otto.Value{}, err
	}

	if _, err := wrapper.Call(otto.NullValue(), moduleObj.Value(), exportsObj, requireFn, fileVal, dirVal, pc.vm.Global, pc.vm.Process); err != nil {
		return otto.Value{}, newError(errors.Wrapf(err, "evaluating %s", filename))
	}

	return moduleObj.Get("exports")
}

// requireSpec implements the full resolution algorithm of spec.md §4.E for
// one require() call made from fromFile inside pc's plugin.
func (l *Loader) requireSpec(pc *pluginContext, fromFile, spec string) (otto.Value, error) {
	if l.RequireCoreModules {
		if mk, ok := coreModules[spec]; ok {
			return mk(pc.vm.VM)
		}
	}

	if v, ok := l.StaticDependencies[spec]; ok {
		return pc.vm.VM.ToValue(v)
	}

	if isPathSpec(spec) {
		abs, err := resolvePathSpec(filepath.Dir(fromFile), spec)
		if err != nil {
			return otto.Value{}, newError(errors.Wrapf(err, "resolving %s from %s", spec, fromFile))
		}
		return l.loadFile(pc, abs)
	}

	head, rest := splitSpec(spec)
	if version, ok := l.resolveDependency(pc, head); ok {
		depDir := store.VersionPath(l.versionsPath, head, version)
		var abs string
		var err error
		if rest == "" {
			abs, err = resolvePackageMain(depDir)
		} else {
			abs, err = resolvePathSpec(depDir, "./"+rest)
		}
		if err == nil {
			return l.loadFile(pc, abs)
		}
	}

	if l.HostRequire != nil {
		if v, ok := l.HostRequire(spec); ok {
			return pc.vm.VM.ToValue(v)
		}
	}

	return otto.Value{}, newError(errors.Errorf("module %q not found", spec))
}

// resolveDependency is D.resolveFor for a plugin's own context, or
// activeVersionOf for runScript's synthetic root (spec.md §4.F "runScript
// ... require that resolves against the active view").
func (l *Loader) resolveDependency(pc *pluginContext, head string) (string, bool) {
	if pc.ref == runScriptRef {
		return l.resolver.ActiveVersionOf(head)
	}
	return l.resolver.ResolveFor(pc.ref.Name, pc.ref.Version, head)
}

// loaderError marks a loader-originated failure, keeping this package free
// of the root package's Kind type (same decoupling pattern as
// fetch.Manifest). The facade does not inspect it: Manager.Require and
// Manager.RunScript report every loader error, an unresolved require()
// included, as ExecutionError.
type loaderError struct{ cause error }

func (e *loaderError) Error() string { return e.cause.Error() }
func (e *loaderError) Unwrap() error { return e.cause }

func newError(cause error) error { return &loaderError{cause: cause} }
