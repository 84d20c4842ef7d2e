// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detect

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
)

// TrainingParams drive a model fit.
type TrainingParams struct {
	LearningRate float64
	Epochs       int
	BatchSize    int
	ModelPath    string
}

// Train fits a reconstruction model from the container's vectors and
// saves it at ModelPath. Per-slot centers move toward each batch's
// mean by the learning rate, repeated over epochs; a closing sweep
// fixes the scale to the root mean square residual against the final
// centers.
func Train(ctx context.Context, store *arrays.Store, params TrainingParams, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.InitRead(); err != nil {
		return fmt.Errorf("detect: open container for training: %w", err)
	}
	defer store.CloseRead()

	size := store.VectorSize()
	centers := make([]float64, size)
	batchSum := make([]float64, size)

	for epoch := 0; epoch < params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if epoch > 0 {
			if err := store.Reset(); err != nil {
				return fmt.Errorf("detect: rewind for epoch %d: %w", epoch, err)
			}
		}
		batchCount := 0
		for store.HasNext() {
			vec, err := store.Read()
			if err != nil {
				return fmt.Errorf("detect: training sweep: %w", err)
			}
			for i, v := range vec.Values {
				batchSum[i] += v
			}
			batchCount++
			if batchCount == params.BatchSize {
				stepCenters(centers, batchSum, batchCount, params.LearningRate)
				batchCount = 0
			}
		}
		if batchCount > 0 {
			stepCenters(centers, batchSum, batchCount, params.LearningRate)
		}
		logger.Debug("training epoch complete", slog.Int("epoch", epoch))
	}

	// Closing sweep: residual spread against the fitted centers.
	if err := store.Reset(); err != nil {
		return fmt.Errorf("detect: rewind for scale sweep: %w", err)
	}
	var sumSq float64
	var count int64
	for store.HasNext() {
		vec, err := store.Read()
		if err != nil {
			return fmt.Errorf("detect: scale sweep: %w", err)
		}
		for i, v := range vec.Values {
			d := v - centers[i]
			sumSq += d * d
		}
		count++
	}
	if count == 0 {
		return ErrEmptyContainer
	}
	scale := math.Sqrt(sumSq / float64(count*int64(max(size, 1))))

	model := &ReconstructionModel{Centers: centers, Scale: scale}
	if err := SaveModel(params.ModelPath, model); err != nil {
		return err
	}
	logger.Info("model trained",
		slog.Int64("vectors", count),
		slog.Int("vector_size", size),
		slog.Float64("scale", scale),
		slog.String("path", params.ModelPath),
	)
	return nil
}

// stepCenters moves the centers toward the batch mean and clears the
// accumulator.
func stepCenters(centers, batchSum []float64, batchCount int, rate float64) {
	for i := range centers {
		mean := batchSum[i] / float64(batchCount)
		centers[i] += rate * (mean - centers[i])
		batchSum[i] = 0
	}
}
