// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package results receives per-vector anomaly scores and the run
// summary from a detector.
//
// A score is active over [timestamp, timestamp+duration) and cleared
// afterward; the summary records the run's min, max and display
// threshold. The hierarchical key space has two top-level prefixes:
// a results series and an info record.
package results

import "sync"

// Sink records detector output.
type Sink interface {
	// AddResult records one score, active over
	// [timestamp, timestamp+duration) at the given callstack depth.
	AddResult(timestamp, duration int64, depth int32, score float64) error

	// AddSummary records the run summary. Called once, after every
	// result of the run has been added.
	AddSummary(min, max, threshold float64) error
}

// Result is one recorded score.
type Result struct {
	Timestamp int64
	Duration  int64
	Depth     int32
	Score     float64
}

// Summary is the run-level score summary.
type Summary struct {
	Min       float64
	Max       float64
	Threshold float64
}

// MemorySink collects results in memory. Used by tests and by the CLI
// when no result store is configured.
//
// Thread safety: safe for concurrent use, although the pipeline itself
// is single-threaded.
type MemorySink struct {
	mu      sync.Mutex
	results []Result
	summary *Summary
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// AddResult appends one result.
func (s *MemorySink) AddResult(timestamp, duration int64, depth int32, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, Result{Timestamp: timestamp, Duration: duration, Depth: depth, Score: score})
	return nil
}

// AddSummary records the run summary.
func (s *MemorySink) AddSummary(min, max, threshold float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &Summary{Min: min, Max: max, Threshold: threshold}
	return nil
}

// Results returns a copy of the recorded results in insertion order.
func (s *MemorySink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Summary returns the recorded summary, or false if none was added.
func (s *MemorySink) Summary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}
