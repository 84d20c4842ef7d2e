// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorize

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
)

// ErrShapeMismatch indicates an encode operation hit a node the layout
// has no reserved slot for. This only happens when the layout was
// computed from a different or incomplete dataset; it is a hard error,
// never a soft degradation.
var ErrShapeMismatch = errors.New("vectorize: node exceeds reserved layout shape")

// Vector is one root call's subtree encoded as a fixed-length numeric
// vector, plus the header needed to place results back on the timeline.
type Vector struct {
	// Timestamp is the root call's start time.
	Timestamp int64

	// Duration is the root call's total duration.
	Duration int64

	// Depth is the root call's absolute callstack depth.
	Depth int32

	// Values has exactly Layout.VectorLen() entries. The slot pair for
	// the k-th occurrence of address a at relative depth d holds the
	// node's offset from the root start and its self time.
	Values []float64
}

// Encode maps one root call into a Vector using the given layout.
//
// The subtree is walked depth-first in call order with per
// (address, depth) occurrence counters reset for this call. A node at
// relative depth d, address a, occurrence k writes to slots
// 2*((d-1)*Width + column(a, k)) and the slot after it. Returns
// ErrShapeMismatch if any node falls outside the layout.
func Encode(root calltree.RootCall, layout Layout) (Vector, error) {
	rootNode := root.Root()
	vec := Vector{
		Timestamp: rootNode.Start,
		Duration:  rootNode.Duration,
		Depth:     int32(rootNode.Depth),
		Values:    make([]float64, layout.VectorLen()),
	}

	occurrences := make(map[addrDepth]int)
	err := root.Walk(func(n *calltree.Node) error {
		depth := n.Depth - rootNode.Depth
		if depth == 0 {
			return nil
		}
		if depth > layout.MaxDepth {
			return fmt.Errorf("%w: depth %d exceeds max depth %d", ErrShapeMismatch, depth, layout.MaxDepth)
		}

		key := addrDepth{n.Address, depth}
		k := occurrences[key]
		occurrences[key] = k + 1

		col, ok := layout.column(n.Address, k)
		if !ok {
			return fmt.Errorf("%w: occurrence %d of address %#x at depth %d", ErrShapeMismatch, k, n.Address, depth)
		}

		slot := 2 * ((depth-1)*layout.Width() + col)
		vec.Values[slot] = float64(n.Start - rootNode.Start)
		vec.Values[slot+1] = float64(n.SelfTime)
		return nil
	})
	if err != nil {
		return Vector{}, err
	}
	return vec, nil
}
