// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detect scores persisted call vectors for anomalies. Each
// detector consumes the vectors of an open container, assigns every
// vector a raw score, then rescales the run's raw scores into [0,1]
// before emitting them to a result sink: 0 is the run's most ordinary
// vector, 1 its most anomalous. Rescaling preserves ranking only, so
// scores compare within a run, never across runs.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

// ErrEmptyContainer indicates a detector ran against a container with
// no vectors.
var ErrEmptyContainer = errors.New("detect: container holds no vectors")

// Detector scores the vectors of an open container into a sink. The
// store arrives with a read session already initialized and positioned
// at the first vector; Apply owns any mid-run Reset it needs but must
// not close the session.
type Detector interface {
	Apply(ctx context.Context, store *arrays.Store, sink results.Sink) error
}

// Run opens a read session on the store, applies the detector and
// closes the session regardless of outcome.
func Run(ctx context.Context, d Detector, store *arrays.Store, sink results.Sink) error {
	if err := store.InitRead(); err != nil {
		return fmt.Errorf("detect: open container: %w", err)
	}
	defer store.CloseRead()
	return d.Apply(ctx, store, sink)
}

// scored pairs a vector's identity with its raw, not yet rescaled
// score.
type scored struct {
	timestamp int64
	duration  int64
	depth     int32
	raw       float64
}

// emit rescales raw scores by the run's own extremes and writes them to
// the sink, followed by the run summary. A run whose scores are all
// equal rescales to uniform zeros.
func emit(entries []scored, threshold float64, sink results.Sink, logger *slog.Logger) error {
	if len(entries) == 0 {
		return ErrEmptyContainer
	}
	min, max := entries[0].raw, entries[0].raw
	for _, e := range entries[1:] {
		min = math.Min(min, e.raw)
		max = math.Max(max, e.raw)
	}
	span := max - min
	normMax := 0.0
	for _, e := range entries {
		score := 0.0
		if span > 0 {
			score = (e.raw - min) / span
		}
		normMax = math.Max(normMax, score)
		if err := sink.AddResult(e.timestamp, e.duration, e.depth, score); err != nil {
			return fmt.Errorf("detect: emit result: %w", err)
		}
	}
	if err := sink.AddSummary(0, normMax, threshold); err != nil {
		return fmt.Errorf("detect: emit summary: %w", err)
	}
	logger.Info("scores emitted",
		slog.Int("vectors", len(entries)),
		slog.Float64("raw_min", min),
		slog.Float64("raw_max", max),
	)
	return nil
}
