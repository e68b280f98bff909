// Package scopetree renders a durable.ScopeTree as an ASCII tree,
// adapted from the teacher's GraphDebugExtension
// (extensions/graph_debug.go): the same treedrawer-based horizontal
// tree rendering, retargeted from an executor dependency graph to the
// durable scope tree, and from "dump on resolution error" to "dump on
// demand" since scope failures are ordinary workflow errors here, not
// a distinct flow-panic path.
package scopetree

import (
	"sort"

	"github.com/durable-go/durable"
	"github.com/m1gwings/treedrawer/tree"
)

// Render draws the subtree rooted at rootScopeID as a horizontal ASCII
// tree, one box per scope id.
func Render(t *durable.ScopeTree, rootScopeID string) string {
	root := build(t, rootScopeID)
	return root.String()
}

func build(t *durable.ScopeTree, scopeID string) *tree.Tree {
	node := tree.NewTree(tree.NodeString(scopeID))
	children := t.Children(scopeID)
	sort.Strings(children)
	for _, child := range children {
		addChild(node, build(t, child))
	}
	return node
}

// addChild grafts child (and, recursively, its own children) onto
// parent. treedrawer's AddChild takes a node value and returns the new
// child node, rather than taking a subtree directly.
func addChild(parent *tree.Tree, child *tree.Tree) {
	grafted := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addChild(grafted, grandchild)
	}
}
