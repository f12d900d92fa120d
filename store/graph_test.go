// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphRefcountEqualsInDegree(t *testing.T) {
	g := NewGraph()
	a1 := Node{Name: "a", Version: "1.0.0"}
	b1 := Node{Name: "b", Version: "1.0.0"}

	g.Link(Root, "a", a1)
	require.Equal(t, 1, g.RefCount(a1))

	g.Link(b1, "a", a1)
	require.Equal(t, 2, g.RefCount(a1))

	purged := g.Link(Root, "b", b1)
	require.Empty(t, purged)
	require.Equal(t, 1, g.RefCount(b1))
}

func TestGraphReplaceEdgeDecrementsOldTarget(t *testing.T) {
	g := NewGraph()
	a1 := Node{Name: "a", Version: "1.0.0"}
	a2 := Node{Name: "a", Version: "2.0.0"}

	g.Link(Root, "a", a1)
	purged := g.Link(Root, "a", a2)

	require.Equal(t, []Node{a1}, purged)
	require.Equal(t, 0, g.RefCount(a1))
	require.Equal(t, 1, g.RefCount(a2))
}

func TestGraphCascadeRemovesTransitiveChain(t *testing.T) {
	g := NewGraph()
	a1 := Node{Name: "a", Version: "1.0.0"}
	b1 := Node{Name: "b", Version: "1.0.0"}
	c1 := Node{Name: "c", Version: "1.0.0"}

	g.Link(Root, "a", a1)
	g.Link(a1, "b", b1)
	g.Link(b1, "c", c1)

	purged := g.RemoveEdge(Root, "a")

	require.ElementsMatch(t, []Node{a1, b1, c1}, purged)
	require.Equal(t, 0, g.RefCount(a1))
	require.Equal(t, 0, g.RefCount(b1))
	require.Equal(t, 0, g.RefCount(c1))
}

func TestGraphSharedTransitiveDepSurvivesOneRemoval(t *testing.T) {
	g := NewGraph()
	a1 := Node{Name: "a", Version: "1.0.0"}
	b1 := Node{Name: "b", Version: "1.0.0"}
	shared := Node{Name: "shared", Version: "1.0.0"}

	g.Link(Root, "a", a1)
	g.Link(Root, "b", b1)
	g.Link(a1, "shared", shared)
	g.Link(b1, "shared", shared)

	require.Equal(t, 2, g.RefCount(shared))

	purged := g.RemoveEdge(Root, "a")
	require.ElementsMatch(t, []Node{a1}, purged)
	require.Equal(t, 1, g.RefCount(shared))

	purged = g.RemoveEdge(Root, "b")
	require.ElementsMatch(t, []Node{b1, shared}, purged)
	require.Equal(t, 0, g.RefCount(shared))
}

func TestResolveForReturnsPluginSpecificBinding(t *testing.T) {
	g := NewGraph()
	a1 := Node{Name: "a", Version: "1.0.0"}
	pluginNode := Node{Name: "p", Version: "1.0.0"}

	g.Link(pluginNode, "a", a1)

	got, ok := g.ResolveFor(pluginNode, "a")
	require.True(t, ok)
	require.Equal(t, a1, got)

	_, ok = g.ResolveFor(Node{Name: "other", Version: "1.0.0"}, "a")
	require.False(t, ok)
}
