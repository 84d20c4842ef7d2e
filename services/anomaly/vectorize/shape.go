// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorize turns call trees into fixed-length feature vectors.
//
// Encoding is two-pass by design: Collect first scans the entire dataset
// to size a shared Layout, then Encode maps every root call's subtree
// into a vector of exactly that size. Slot positions are a pure function
// of the Layout, so two runs over the same dataset produce identical
// vectors.
//
// Depths inside a vector are relative to the root call: its direct
// callees sit at depth 1. The root itself is not encoded; its offset is
// identically zero and its timing travels in the vector header.
package vectorize

import (
	"sort"

	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
)

// Layout is the dataset-wide sizing information required before any
// vector can be encoded.
type Layout struct {
	// MaxDepth is the largest relative depth observed under any root.
	MaxDepth int

	// MaxOccurrences maps an address to the largest number of times any
	// single root call invokes it at any one depth, maximized across the
	// whole dataset.
	MaxOccurrences map[uint64]int

	// Column table derived from MaxOccurrences: addresses in ascending
	// order, each reserving a block of MaxOccurrences[addr] columns.
	base  map[uint64]int
	width int
}

// finalize computes the deterministic column table. Addresses are sorted
// ascending so slot assignment is reproducible run to run.
func (l *Layout) finalize() {
	addrs := make([]uint64, 0, len(l.MaxOccurrences))
	for addr := range l.MaxOccurrences {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	l.base = make(map[uint64]int, len(addrs))
	col := 0
	for _, addr := range addrs {
		l.base[addr] = col
		col += l.MaxOccurrences[addr]
	}
	l.width = col
}

// Width returns the number of columns: the sum of the reserved
// per-address occurrence blocks.
func (l Layout) Width() int {
	return l.width
}

// VectorLen returns the length of every vector encoded with this
// layout: two slots (offset, self time) per (depth, column) cell.
func (l Layout) VectorLen() int {
	return 2 * l.MaxDepth * l.width
}

// column returns the column for the k-th occurrence of addr, or false
// when addr is unknown or k exceeds the reserved block.
func (l Layout) column(addr uint64, k int) (int, bool) {
	width, ok := l.MaxOccurrences[addr]
	if !ok || k >= width {
		return 0, false
	}
	return l.base[addr] + k, true
}

// addrDepth keys occurrence counts per (address, relative depth) pair.
// The per-depth granularity matters: the reserved block per address is
// sized from the worst single depth, not the sum across depths.
type addrDepth struct {
	addr  uint64
	depth int
}

// Collect computes the global Layout for a dataset of root calls.
//
// For each root the walk counts occurrences per (address, depth) pair
// and tracks the deepest node. Per tree, each address collapses to its
// maximum count across depths; the global layout keeps the larger value
// per address across all trees. Cost is O(total nodes); Collect has no
// side effects and is idempotent.
func Collect(roots []calltree.RootCall) Layout {
	layout := Layout{MaxOccurrences: make(map[uint64]int)}

	counts := make(map[addrDepth]int)
	perTree := make(map[uint64]int)
	for _, root := range roots {
		clear(counts)
		clear(perTree)

		rootDepth := root.Root().Depth
		_ = root.Walk(func(n *calltree.Node) error {
			depth := n.Depth - rootDepth
			if depth == 0 {
				return nil // the root itself is header material
			}
			if depth > layout.MaxDepth {
				layout.MaxDepth = depth
			}
			counts[addrDepth{n.Address, depth}]++
			return nil
		})

		// Collapse across depths for this tree.
		for key, count := range counts {
			if count > perTree[key.addr] {
				perTree[key.addr] = count
			}
		}
		// Merge into the running dataset-wide maximums.
		for addr, count := range perTree {
			if count > layout.MaxOccurrences[addr] {
				layout.MaxOccurrences[addr] = count
			}
		}
	}

	layout.finalize()
	return layout
}
