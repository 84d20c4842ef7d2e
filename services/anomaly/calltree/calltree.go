// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package calltree holds the call-tree data model consumed by the
// anomaly analysis pipeline.
//
// A Tree is an arena of call nodes: children are stored as indices, so
// traversal never recurses and deep callstacks cannot exhaust the Go
// stack. Trees are built once (by a loader or by the host platform) and
// are read-only afterwards.
//
// Timestamps, durations and self times are integer nanoseconds. Depth is
// 1-based: calls with no parent sit at depth 1, their callees at depth 2,
// and so on.
package calltree

import "sort"

// Node is a single recorded function call.
type Node struct {
	// Address identifies the called symbol.
	Address uint64

	// Depth is the 1-based callstack depth of this call.
	Depth int

	// Start is the call's start timestamp.
	Start int64

	// Duration is the call's total duration.
	Duration int64

	// SelfTime is the duration minus time spent in callees.
	SelfTime int64

	children []int
}

// Tree owns an arena of call nodes.
type Tree struct {
	nodes []Node
}

// NewTree returns an empty call tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at the given arena index.
func (t *Tree) Node(i int) *Node {
	return &t.nodes[i]
}

// AddCall appends a call under the given parent and returns its arena
// index. Pass parent = -1 for a call with no parent (depth 1). Children
// must be added in call order; that order is what the encoder later
// relies on.
func (t *Tree) AddCall(parent int, address uint64, start, duration, selfTime int64) int {
	depth := 1
	if parent >= 0 {
		depth = t.nodes[parent].Depth + 1
	}
	t.nodes = append(t.nodes, Node{
		Address:  address,
		Depth:    depth,
		Start:    start,
		Duration: duration,
		SelfTime: selfTime,
	})
	idx := len(t.nodes) - 1
	if parent >= 0 {
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}
	return idx
}

// Children returns the arena indices of a node's callees in call order.
func (t *Tree) Children(i int) []int {
	return t.nodes[i].children
}

// RootCall is a call at the configured target depth, the unit of
// encoding. It carries its owning tree so the subtree can be walked.
type RootCall struct {
	tree *Tree
	node int
}

// Root returns the root node of this sub-callstack.
func (r RootCall) Root() *Node {
	return r.tree.Node(r.node)
}

// Walk visits the root and every descendant in depth-first call order.
// The walk is iterative with an explicit stack. A non-nil error from fn
// stops the walk and is returned.
func (r RootCall) Walk(fn func(n *Node) error) error {
	stack := []int{r.node}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(r.tree.Node(idx)); err != nil {
			return err
		}
		// Push children in reverse so the first callee is visited first.
		children := r.tree.Children(idx)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

// RootCalls returns every call at the given depth, ordered by start
// time. These are the units the pipeline encodes independently.
func (t *Tree) RootCalls(depth int) []RootCall {
	var roots []RootCall
	for i := range t.nodes {
		if t.nodes[i].Depth == depth {
			roots = append(roots, RootCall{tree: t, node: i})
		}
	}
	sort.SliceStable(roots, func(a, b int) bool {
		return roots[a].Root().Start < roots[b].Root().Start
	})
	return roots
}
