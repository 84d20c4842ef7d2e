// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
)

// twoSingleChildRoots builds the canonical two-root dataset: each root
// has a single callee with address 7; offsets 10 and 30, self times 5
// and 8.
func twoSingleChildRoots(t *testing.T) []calltree.RootCall {
	t.Helper()
	tree := calltree.NewTree()
	r1 := tree.AddCall(-1, 100, 1000, 50, 10)
	tree.AddCall(r1, 7, 1010, 5, 5)
	r2 := tree.AddCall(-1, 100, 2000, 60, 10)
	tree.AddCall(r2, 7, 2030, 8, 8)

	roots := tree.RootCalls(1)
	require.Len(t, roots, 2)
	return roots
}

// TestCollectIdempotent verifies running Collect twice on the same
// input yields an identical layout.
func TestCollectIdempotent(t *testing.T) {
	roots := twoSingleChildRoots(t)
	first := Collect(roots)
	second := Collect(roots)
	assert.Equal(t, first, second)
}

// TestCollectTwoLevelMax verifies the per-tree collapse across depths:
// an address called twice at two different depths reserves a block of
// two columns, not four.
func TestCollectTwoLevelMax(t *testing.T) {
	tree := calltree.NewTree()
	root := tree.AddCall(-1, 1, 0, 100, 10)
	a := tree.AddCall(root, 5, 10, 20, 5)
	tree.AddCall(a, 5, 12, 5, 5)
	tree.AddCall(a, 5, 18, 5, 5)
	tree.AddCall(root, 5, 40, 20, 20)

	layout := Collect(tree.RootCalls(1))
	assert.Equal(t, 2, layout.MaxDepth)
	assert.Equal(t, map[uint64]int{5: 2}, layout.MaxOccurrences)
	assert.Equal(t, 2, layout.Width())
	assert.Equal(t, 8, layout.VectorLen())
}

// TestCollectMergesAcrossTrees verifies the global merge keeps the
// larger per-address maximum across root calls.
func TestCollectMergesAcrossTrees(t *testing.T) {
	tree := calltree.NewTree()
	r1 := tree.AddCall(-1, 1, 0, 100, 10)
	tree.AddCall(r1, 9, 10, 10, 10)
	r2 := tree.AddCall(-1, 1, 200, 100, 10)
	tree.AddCall(r2, 9, 210, 10, 10)
	tree.AddCall(r2, 9, 230, 10, 10)
	tree.AddCall(r2, 9, 250, 10, 10)

	layout := Collect(tree.RootCalls(1))
	assert.Equal(t, map[uint64]int{9: 3}, layout.MaxOccurrences)
}

// TestVectorLengthUniform verifies every vector has the layout-derived
// length regardless of the individual tree's shape.
func TestVectorLengthUniform(t *testing.T) {
	tree := calltree.NewTree()
	r1 := tree.AddCall(-1, 1, 0, 100, 10)
	a := tree.AddCall(r1, 2, 10, 40, 10)
	tree.AddCall(a, 3, 20, 10, 10)
	r2 := tree.AddCall(-1, 1, 200, 100, 100)
	tree.AddCall(r2, 2, 210, 10, 10)

	roots := tree.RootCalls(1)
	layout := Collect(roots)
	want := 2 * layout.MaxDepth * layout.Width()

	for _, root := range roots {
		vec, err := Encode(root, layout)
		require.NoError(t, err)
		assert.Len(t, vec.Values, want)
	}
}

// TestEncodeTwoRootScenario pins the concrete end-to-end expectation:
// layout {7: 1} at depth 1 gives 2-element vectors [offset, selfTime].
func TestEncodeTwoRootScenario(t *testing.T) {
	roots := twoSingleChildRoots(t)
	layout := Collect(roots)

	assert.Equal(t, 1, layout.MaxDepth)
	assert.Equal(t, map[uint64]int{7: 1}, layout.MaxOccurrences)
	require.Equal(t, 2, layout.VectorLen())

	v1, err := Encode(roots[0], layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 5}, v1.Values)
	assert.Equal(t, int64(1000), v1.Timestamp)
	assert.Equal(t, int64(50), v1.Duration)
	assert.Equal(t, int32(1), v1.Depth)

	v2, err := Encode(roots[1], layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 8}, v2.Values)
}

// TestEncodeDeterministicColumns verifies addresses map to columns in
// ascending address order.
func TestEncodeDeterministicColumns(t *testing.T) {
	tree := calltree.NewTree()
	root := tree.AddCall(-1, 1, 0, 100, 10)
	tree.AddCall(root, 50, 30, 10, 3) // higher address, called first
	tree.AddCall(root, 20, 60, 10, 4) // lower address, called second

	roots := tree.RootCalls(1)
	layout := Collect(roots)
	require.Equal(t, 4, layout.VectorLen())

	vec, err := Encode(roots[0], layout)
	require.NoError(t, err)
	// Address 20 owns columns before address 50 regardless of call order.
	assert.Equal(t, []float64{60, 4, 30, 3}, vec.Values)
}

// TestEncodeShapeMismatch verifies fail-fast when a layout from a
// different dataset cannot hold the tree being encoded.
func TestEncodeShapeMismatch(t *testing.T) {
	small := calltree.NewTree()
	r := small.AddCall(-1, 1, 0, 100, 10)
	small.AddCall(r, 7, 10, 10, 10)
	layout := Collect(small.RootCalls(1))

	t.Run("extra occurrence", func(t *testing.T) {
		big := calltree.NewTree()
		br := big.AddCall(-1, 1, 0, 100, 10)
		big.AddCall(br, 7, 10, 10, 10)
		big.AddCall(br, 7, 30, 10, 10)

		_, err := Encode(big.RootCalls(1)[0], layout)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("unknown address", func(t *testing.T) {
		big := calltree.NewTree()
		br := big.AddCall(-1, 1, 0, 100, 10)
		big.AddCall(br, 8, 10, 10, 10)

		_, err := Encode(big.RootCalls(1)[0], layout)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("too deep", func(t *testing.T) {
		big := calltree.NewTree()
		br := big.AddCall(-1, 1, 0, 100, 10)
		c := big.AddCall(br, 7, 10, 10, 5)
		big.AddCall(c, 7, 12, 5, 5)

		_, err := Encode(big.RootCalls(1)[0], layout)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

// TestEncodeLeafRoot verifies a dataset of leaf-only roots produces
// empty vectors rather than failing.
func TestEncodeLeafRoot(t *testing.T) {
	tree := calltree.NewTree()
	tree.AddCall(-1, 1, 0, 100, 100)

	roots := tree.RootCalls(1)
	layout := Collect(roots)
	assert.Equal(t, 0, layout.VectorLen())

	vec, err := Encode(roots[0], layout)
	require.NoError(t, err)
	assert.Empty(t, vec.Values)
}
