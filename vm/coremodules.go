// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"path"

	"github.com/robertkrimen/otto"
)

// coreModules is the small set of Node-style core module names the host
// recognises per spec.md §4.E step 1 ("a recognised core module name").
// It is deliberately minimal rather than a full Node API surface: plugins
// that need more should declare it as a staticDependency instead.
var coreModules = map[string]func(*otto.Otto) (otto.Value, error){
	"path": buildPathModule,
}

func buildPathModule(vm *otto.Otto) (otto.Value, error) {
	obj, err := vm.Object(`({})`)
	if err != nil {
		return otto.Value{}, err
	}

	set := func(name string, fn func(otto.FunctionCall) otto.Value) error {
		v, err := vm.ToValue(fn)
		if err != nil {
			return err
		}
		return obj.Set(name, v)
	}

	if err := set("join", func(call otto.FunctionCall) otto.Value {
		parts := make([]string, 0, len(call.ArgumentList))
		for _, a := range call.ArgumentList {
			parts = append(parts, a.String())
		}
		result, _ := vm.ToValue(path.Join(parts...))
		return result
	}); err != nil {
		return otto.Value{}, err
	}

	if err := set("basename", func(call otto.FunctionCall) otto.Value {
		result, _ := vm.ToValue(path.Base(call.Argument(0).String()))
		return result
	}); err != nil {
		return otto.Value{}, err
	}

	if err := set("dirname", func(call otto.FunctionCall) otto.Value {
		result, _ := vm.ToValue(path.Dir(call.Argument(0).String()))
		return result
	}); err != nil {
		return otto.Value{}, err
	}

	if err := set("extname", func(call otto.FunctionCall) otto.Value {
		result, _ := vm.ToValue(path.Ext(call.Argument(0).String()))
		return result
	}); err != nil {
		return otto.Value{}, err
	}

	return obj.Value(), nil
}
