// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import "sync"

// Node identifies a single installed (name, version) pair in the
// DependencyGraph (spec.md §3).
type Node struct {
	Name    string
	Version string
}

// Root is the synthetic source node every top-level plugin hangs off of.
// Modelling "is a top-level plugin" as an edge Root->(name)->Node lets
// Invariant 3 ("refcount equals in-degree plus 1 if top-level") collapse
// into plain in-degree counting, with Root contributing the "+1".
var Root = Node{}

// Graph is the DependencyGraph: for every installed plugin P, the exact
// version it was linked to for each declared dependency name.
type Graph struct {
	mu       sync.Mutex
	edges    map[Node]map[string]Node
	refcount map[Node]int
}

func NewGraph() *Graph {
	return &Graph{
		edges:    map[Node]map[string]Node{},
		refcount: map[Node]int{},
	}
}

// Link records that src depends on depName at exactly dst, incrementing
// dst's refcount. If src already had a different binding for depName, the
// old target is unlinked first (and, if that drops it to zero, purged
// recursively) — spec.md §4.D "link".
func (g *Graph) Link(src Node, depName string, dst Node) (purged []Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.edges[src]; ok {
		if old, ok2 := m[depName]; ok2 {
			if old == dst {
				return nil
			}
			purged = g.decrementAndCascadeLocked(old)
		}
	} else {
		g.edges[src] = map[string]Node{}
	}

	g.edges[src][depName] = dst
	g.refcount[dst]++
	return purged
}

// RemoveEdge drops the src->depName edge entirely (no replacement),
// decrementing and possibly cascading the purge of its old target. This is
// how a top-level uninstall severs Root->name without implying any other
// plugin's bindings changed (spec.md §9, second open question).
func (g *Graph) RemoveEdge(src Node, depName string) (purged []Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.edges[src]
	if !ok {
		return nil
	}
	dst, ok := m[depName]
	if !ok {
		return nil
	}
	delete(m, depName)
	return g.decrementAndCascadeLocked(dst)
}

// decrementAndCascadeLocked decrements n's refcount and, if it reaches
// zero, removes n as a graph node and recursively decrements everything n
// itself pointed to — spec.md §4.D "unlink": "decrements every refcount
// for edges originating at that node". Callers must hold g.mu.
func (g *Graph) decrementAndCascadeLocked(n Node) (purged []Node) {
	g.refcount[n]--
	if g.refcount[n] > 0 {
		return nil
	}

	children := g.edges[n]
	delete(g.edges, n)
	delete(g.refcount, n)
	purged = append(purged, n)

	for _, child := range children {
		purged = append(purged, g.decrementAndCascadeLocked(child)...)
	}
	return purged
}

// RefCount returns n's current reference count (0 if n is unknown).
func (g *Graph) RefCount(n Node) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refcount[n]
}

// ResolveFor returns the specific version src is bound to for depName, the
// loader's version-resolution oracle (spec.md §4.D "resolveFor").
func (g *Graph) ResolveFor(src Node, depName string) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.edges[src]
	if !ok {
		return Node{}, false
	}
	dst, ok := m[depName]
	return dst, ok
}

// TopLevelVersion returns the version name is installed at as a top-level
// plugin, if any.
func (g *Graph) TopLevelVersion(name string) (string, bool) {
	n, ok := g.ResolveFor(Root, name)
	return n.Version, ok
}
