// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
	"github.com/AleutianAI/stacksight/services/anomaly/config"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

// countingProgress records updates for assertions.
type countingProgress struct {
	total    int
	worked   int
	subtasks []string
}

func (p *countingProgress) Begin(_ string, total int) { p.total = total }
func (p *countingProgress) SubTask(name string)       { p.subtasks = append(p.subtasks, name) }
func (p *countingProgress) Worked(units int)          { p.worked += units }

// sampleRoots builds a tree with several similar calls and one outlier
// at depth 1, each with a single child.
func sampleRoots(t *testing.T) []calltree.RootCall {
	t.Helper()
	tree := calltree.NewTree()
	for i, selfTime := range []int64{5, 6, 5, 90} {
		start := int64(100 * (i + 1))
		root := tree.AddCall(-1, 0x10, start, 50, 2)
		tree.AddCall(root, 0x20, start+10, 20, selfTime)
	}
	roots := tree.RootCalls(1)
	require.Len(t, roots, 4)
	return roots
}

func TestRunStatisticalEndToEnd(t *testing.T) {
	store := arrays.NewStore(t.TempDir(), "e2e", nil)
	sink := results.NewMemorySink()
	progress := &countingProgress{}

	params := config.Defaults()
	orch := New(params, store, sink, nil, progress)
	require.Equal(t, StateIdle, orch.State())

	require.NoError(t, orch.Run(context.Background(), sampleRoots(t)))

	assert.Equal(t, StateDone, orch.State())
	assert.NotEmpty(t, orch.RunID())
	assert.True(t, store.Exists())

	got := sink.Results()
	require.Len(t, got, 4)
	summary, ok := sink.Summary()
	require.True(t, ok)
	assert.Equal(t, 0.10, summary.Threshold)

	// Every weighted unit accounted for.
	assert.Equal(t, progress.total, progress.worked)
	assert.Contains(t, progress.subtasks, StateShapeCollecting.String())
	assert.Contains(t, progress.subtasks, StateEncoding.String())
	assert.Contains(t, progress.subtasks, StateAnalyzing.String())
}

func TestRunReusesExistingContainer(t *testing.T) {
	store := arrays.NewStore(t.TempDir(), "cached", nil)
	params := config.Defaults()

	first := New(params, store, results.NewMemorySink(), nil, nil)
	require.NoError(t, first.Run(context.Background(), sampleRoots(t)))

	// Second run over the same store must skip shape collection and
	// encoding and still produce a full result set.
	progress := &countingProgress{}
	sink := results.NewMemorySink()
	second := New(params, store, sink, nil, progress)
	require.NoError(t, second.Run(context.Background(), sampleRoots(t)))

	assert.Len(t, sink.Results(), 4)
	assert.NotContains(t, progress.subtasks, StateShapeCollecting.String())
	assert.NotContains(t, progress.subtasks, StateEncoding.String())
	assert.Equal(t, progress.total, progress.worked)
}

// TestRunFreshDataDir covers the first-run path: the data directory
// does not exist until the run creates it.
func TestRunFreshDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stacksight-data")
	store := arrays.NewStore(dir, "first-run", nil)
	sink := results.NewMemorySink()

	orch := New(config.Defaults(), store, sink, nil, nil)
	require.NoError(t, orch.Run(context.Background(), sampleRoots(t)))

	assert.Equal(t, StateDone, orch.State())
	assert.True(t, store.Exists())
	assert.Len(t, sink.Results(), 4)
}

func TestRunCancelledLeavesNoContainer(t *testing.T) {
	dir := t.TempDir()
	store := arrays.NewStore(dir, "cancelled", nil)
	sink := results.NewMemorySink()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(config.Defaults(), store, sink, nil, nil)
	require.ErrorIs(t, orch.Run(ctx, sampleRoots(t)), context.Canceled)

	assert.Equal(t, StateAborted, orch.State())
	assert.False(t, store.Exists())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, sink.Results())
}

func TestRunTrainVariantWritesModel(t *testing.T) {
	store := arrays.NewStore(t.TempDir(), "train", nil)
	modelPath := filepath.Join(t.TempDir(), "model.gob")

	params := config.Defaults()
	params.Variant = config.VariantModelTrain
	params.ModelPath = modelPath
	require.NoError(t, params.Validate())

	orch := New(params, store, results.NewMemorySink(), nil, nil)
	require.NoError(t, orch.Run(context.Background(), sampleRoots(t)))

	info, err := os.Stat(modelPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRunModelApplyVariant(t *testing.T) {
	dir := t.TempDir()
	store := arrays.NewStore(dir, "apply", nil)
	modelPath := filepath.Join(t.TempDir(), "model.gob")

	train := config.Defaults()
	train.Variant = config.VariantModelTrain
	train.ModelPath = modelPath
	require.NoError(t, New(train, store, results.NewMemorySink(), nil, nil).
		Run(context.Background(), sampleRoots(t)))

	apply := train
	apply.Variant = config.VariantModelApply
	sink := results.NewMemorySink()
	progress := &countingProgress{}
	orch := New(apply, store, sink, nil, progress)
	require.NoError(t, orch.Run(context.Background(), sampleRoots(t)))

	assert.Len(t, sink.Results(), 4)
	// Model loading contributes its own work unit to the total.
	assert.Equal(t, workShape+workEncoding+workAnalysis+workModel+workFinalize, progress.total)
	assert.Equal(t, progress.total, progress.worked)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "state(99)", State(99).String())
}
