// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import "github.com/pkg/errors"

// Manager is the Version Manager of spec.md §4.D: it owns the Store (disk)
// and the Graph (bookkeeping) together, so that every graph mutation that
// changes a refcount to zero is immediately reflected on disk.
type Manager struct {
	Store *Store
	Graph *Graph
}

func NewManager(pluginsPath, versionsPath string) *Manager {
	return &Manager{
		Store: New(pluginsPath, versionsPath),
		Graph: NewGraph(),
	}
}

// Link binds pluginNode's declared dependency depName to depNode,
// publishing the active view for any name whose installed set changed as
// a result (spec.md §4.D "link").
func (m *Manager) Link(pluginNode Node, depName string, depNode Node) error {
	purged := m.Graph.Link(pluginNode, depName, depNode)
	if err := m.sweep(purged); err != nil {
		return err
	}
	// A freshly linked version may now be the highest installed version of
	// its name even though nothing was purged (spec.md §4.D "Policy": the
	// active view always reflects the highest installed version, whether
	// or not the version driving that is itself top-level).
	return m.Store.PublishActive(depNode.Name)
}

// LinkTopLevel marks (name, version) as an installed top-level plugin,
// i.e. adds the Root->name edge (spec.md §3 "Active-Version Map").
func (m *Manager) LinkTopLevel(name, version string) error {
	purged := m.Graph.Link(Root, name, Node{Name: name, Version: version})
	if err := m.sweep(purged); err != nil {
		return err
	}
	return m.Store.PublishActive(name)
}

// Uninstall removes only the top-level binding for name (spec.md §9,
// second open question: dependents keep their own binding regardless).
// It returns an error if name has no top-level version (the facade
// reports that error as NotFound).
func (m *Manager) Uninstall(name string) error {
	if _, ok := m.Graph.TopLevelVersion(name); !ok {
		return errors.Errorf("%s is not installed", name)
	}
	purged := m.Graph.RemoveEdge(Root, name)
	return m.sweep(append(purged, Node{Name: name}))
}

// sweep deletes every purged (name, version) from .versions/ and
// republishes the active view for every distinct name touched, which is
// how Invariant 5 (active == highest installed) is kept current after any
// mutation (spec.md §4.D "unlink").
func (m *Manager) sweep(purged []Node) error {
	names := map[string]bool{}
	for _, n := range purged {
		if n.Version != "" {
			if err := m.Store.DeleteVersion(n.Name, n.Version); err != nil {
				return errors.Wrapf(err, "deleting purged version %s@%s", n.Name, n.Version)
			}
		}
		names[n.Name] = true
	}
	for name := range names {
		if err := m.Store.PublishActive(name); err != nil {
			return errors.Wrapf(err, "publishing active view for %s", name)
		}
	}
	return nil
}

// ActiveVersionOf returns the version currently published in the active
// view for name (spec.md §4.D "activeVersionOf").
func (m *Manager) ActiveVersionOf(name string) (string, bool) {
	version, ok, err := m.Store.HighestVersion(name)
	if err != nil {
		return "", false
	}
	return version, ok
}

// VersionsOf returns the ordered set of installed versions of name
// (spec.md §4.D "versionsOf").
func (m *Manager) VersionsOf(name string) ([]string, error) {
	return m.Store.Versions(name)
}

// ResolveFor returns the version pluginName@pluginVersion is bound to for
// depName (spec.md §4.D "resolveFor" — the loader's oracle).
func (m *Manager) ResolveFor(pluginName, pluginVersion, depName string) (string, bool) {
	n, ok := m.Graph.ResolveFor(Node{Name: pluginName, Version: pluginVersion}, depName)
	return n.Version, ok
}
