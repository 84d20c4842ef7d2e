// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detect

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

// ErrModelShape indicates a model was trained on vectors of a
// different length than the container holds.
var ErrModelShape = errors.New("detect: model and container vector sizes differ")

// Scorer turns one vector into a raw anomaly score. Higher is more
// anomalous; the scale is the scorer's own, rescaling happens later.
type Scorer interface {
	Score(values []float64) float64
	VectorSize() int
}

// ReconstructionModel scores a vector by its reconstruction error
// against the per-slot centers learned during training, normalized by
// the spread observed on the training set.
type ReconstructionModel struct {
	Centers []float64
	Scale   float64
}

// Score is the root mean square distance from the centers, divided by
// the training spread.
func (m *ReconstructionModel) Score(values []float64) float64 {
	if len(values) == 0 || len(values) != len(m.Centers) {
		return 0
	}
	var sum float64
	for i, v := range values {
		d := v - m.Centers[i]
		sum += d * d
	}
	rms := math.Sqrt(sum / float64(len(values)))
	if m.Scale > 0 {
		return rms / m.Scale
	}
	return rms
}

// VectorSize reports the vector length the model was trained on.
func (m *ReconstructionModel) VectorSize() int { return len(m.Centers) }

// SaveModel writes the model to disk in gob form.
func SaveModel(path string, m *ReconstructionModel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("detect: create model file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("detect: encode model: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("detect: flush model file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("detect: close model file: %w", err)
	}
	return nil
}

// LoadModel reads a model previously written by SaveModel.
func LoadModel(path string) (*ReconstructionModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detect: open model file: %w", err)
	}
	defer f.Close()
	var m ReconstructionModel
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&m); err != nil {
		return nil, fmt.Errorf("detect: decode model %s: %w", path, err)
	}
	return &m, nil
}

// ModelBased scores vectors against a previously trained model. A
// Scorer may be injected directly; otherwise Apply loads one from
// ModelPath.
type ModelBased struct {
	ModelPath string
	Threshold float64
	Scorer    Scorer
	Logger    *slog.Logger

	// OnModelLoaded fires once the scorer is ready, before scoring
	// starts. The orchestrator hooks progress reporting here.
	OnModelLoaded func()
}

// Apply scores every vector in one sweep and emits rescaled results.
func (d *ModelBased) Apply(ctx context.Context, store *arrays.Store, sink results.Sink) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scorer := d.Scorer
	if scorer == nil {
		model, err := LoadModel(d.ModelPath)
		if err != nil {
			return err
		}
		scorer = model
	}
	if scorer.VectorSize() != store.VectorSize() {
		return fmt.Errorf("%w: model %d, container %d",
			ErrModelShape, scorer.VectorSize(), store.VectorSize())
	}
	if d.OnModelLoaded != nil {
		d.OnModelLoaded()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := make([]scored, 0, store.Count())
	for store.HasNext() {
		vec, err := store.Read()
		if err != nil {
			if len(entries) == 0 {
				return fmt.Errorf("detect: scoring: %w", err)
			}
			logger.Warn("scoring cut short, emitting partial results",
				slog.String("error", err.Error()),
				slog.Int("scored", len(entries)),
			)
			break
		}
		entries = append(entries, scored{
			timestamp: vec.Timestamp,
			duration:  vec.Duration,
			depth:     vec.Depth,
			raw:       scorer.Score(vec.Values),
		})
	}
	return emit(entries, d.Threshold, sink, logger)
}
