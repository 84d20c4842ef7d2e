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
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

// Statistical scores each vector by how far its slots sit from the
// population's own per-slot distribution. Two sweeps over the
// container: the first accumulates per-slot mean and standard
// deviation, the second scores every vector as the mean absolute
// z-score across its slots, raised to the N-th power.
type Statistical struct {
	// N sharpens the contrast between ordinary and anomalous vectors.
	// Rescaling makes the final scores invariant in ranking for any
	// N >= 1.
	N         int
	Threshold float64
	Logger    *slog.Logger
}

// slotStats accumulates a running mean and variance per vector slot
// using Welford's update.
type slotStats struct {
	count int64
	mean  []float64
	m2    []float64
}

func newSlotStats(size int) *slotStats {
	return &slotStats{
		mean: make([]float64, size),
		m2:   make([]float64, size),
	}
}

func (st *slotStats) observe(values []float64) {
	st.count++
	for i, v := range values {
		delta := v - st.mean[i]
		st.mean[i] += delta / float64(st.count)
		st.m2[i] += delta * (v - st.mean[i])
	}
}

// stddev returns the population standard deviation of slot i.
func (st *slotStats) stddev(i int) float64 {
	if st.count == 0 {
		return 0
	}
	return math.Sqrt(st.m2[i] / float64(st.count))
}

// Apply runs the two sweeps. Cancellation is honored between sweeps
// and a decode failure during the scoring sweep degrades to a partial
// result rather than discarding the scores already computed.
func (s *Statistical) Apply(ctx context.Context, store *arrays.Store, sink results.Sink) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := s.N
	if n < 1 {
		n = 1
	}

	stats := newSlotStats(store.VectorSize())
	for store.HasNext() {
		vec, err := store.Read()
		if err != nil {
			return fmt.Errorf("detect: statistics sweep: %w", err)
		}
		stats.observe(vec.Values)
	}
	if stats.count == 0 {
		return ErrEmptyContainer
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Reset(); err != nil {
		return fmt.Errorf("detect: rewind container: %w", err)
	}

	entries := make([]scored, 0, stats.count)
	for store.HasNext() {
		vec, err := store.Read()
		if err != nil {
			// With nothing scored yet there is no partial result to
			// keep; the decode failure is the outcome.
			if len(entries) == 0 {
				return fmt.Errorf("detect: scoring sweep: %w", err)
			}
			logger.Warn("scoring sweep cut short, emitting partial results",
				slog.String("error", err.Error()),
				slog.Int("scored", len(entries)),
			)
			break
		}
		entries = append(entries, scored{
			timestamp: vec.Timestamp,
			duration:  vec.Duration,
			depth:     vec.Depth,
			raw:       s.rawScore(vec.Values, stats, n),
		})
	}
	return emit(entries, s.Threshold, sink, logger)
}

// rawScore is the mean absolute z-score over the vector's slots,
// raised to the N-th power. Slots with zero spread contribute zero.
func (s *Statistical) rawScore(values []float64, stats *slotStats, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for i, v := range values {
		if sd := stats.stddev(i); sd > 0 {
			total += math.Abs(v-stats.mean[i]) / sd
		}
	}
	d := total / float64(len(values))
	return math.Pow(d, float64(n))
}
