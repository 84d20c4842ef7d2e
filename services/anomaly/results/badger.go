// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package results

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Key layout inside the result store. Result entries are keyed by
// zero-padded decimal timestamp so a badger prefix iteration walks the
// series in time order; a score entry carries the value, a clear entry
// at timestamp+duration has an empty value.
const (
	resultsPrefix = "results/"
	infoMinKey    = "info/min"
	infoMaxKey    = "info/max"
	infoThreshold = "info/threshold"
)

// ErrNoSummary indicates the info record has not been written yet.
var ErrNoSummary = errors.New("results: no summary recorded")

// BadgerSink persists scores in an embedded badger database, indexed
// by timestamp.
type BadgerSink struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (creating if needed) a badger-backed result store at
// the given directory. Badger's internal logging is disabled; the sink
// logs through the provided logger instead.
func OpenBadger(path string, logger *slog.Logger) (*BadgerSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("results: create store directory %s: %w", path, err)
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("results: open badger store: %w", err)
	}
	return NewBadgerSink(db, logger), nil
}

// OpenBadgerInMemory opens an in-memory result store, used in tests.
func OpenBadgerInMemory(logger *slog.Logger) (*BadgerSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("results: open in-memory store: %w", err)
	}
	return NewBadgerSink(db, logger), nil
}

// NewBadgerSink wraps an already-open badger database.
func NewBadgerSink(db *badger.DB, logger *slog.Logger) *BadgerSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerSink{
		db:     db,
		logger: logger.With(slog.String("component", "results")),
	}
}

// Close closes the underlying database.
func (s *BadgerSink) Close() error {
	return s.db.Close()
}

func resultKey(timestamp int64) []byte {
	return fmt.Appendf(nil, "%s%020d", resultsPrefix, timestamp)
}

func encodeScore(score float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(score))
	return buf[:]
}

func decodeScore(val []byte) (float64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("results: score entry has %d bytes, want 8", len(val))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(val)), nil
}

// AddResult writes the score at its timestamp and a clear marker at
// timestamp+duration, so the score reads as active over the call's
// lifetime and absent afterward.
func (s *BadgerSink) AddResult(timestamp, duration int64, depth int32, score float64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(resultKey(timestamp), encodeScore(score)); err != nil {
			return err
		}
		end := resultKey(timestamp + duration)
		// A later call may legitimately start where this one ends; its
		// score entry wins over our clear marker.
		if _, err := txn.Get(end); errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(end, nil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("results: add result at %d: %w", timestamp, err)
	}
	s.logger.Debug("result recorded",
		slog.Int64("timestamp", timestamp),
		slog.Int64("duration", duration),
		slog.Int("depth", int(depth)),
		slog.Float64("score", score),
	)
	return nil
}

// AddSummary writes the info record.
func (s *BadgerSink) AddSummary(min, max, threshold float64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(infoMinKey), encodeScore(min)); err != nil {
			return err
		}
		if err := txn.Set([]byte(infoMaxKey), encodeScore(max)); err != nil {
			return err
		}
		return txn.Set([]byte(infoThreshold), encodeScore(threshold))
	})
	if err != nil {
		return fmt.Errorf("results: add summary: %w", err)
	}
	s.logger.Info("summary recorded",
		slog.Float64("min", min),
		slog.Float64("max", max),
		slog.Float64("threshold", threshold),
	)
	return nil
}

// Score returns the score entry at exactly the given timestamp.
// The second return is false for absent entries and clear markers.
func (s *BadgerSink) Score(timestamp int64) (float64, bool, error) {
	var score float64
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(timestamp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return nil // clear marker
			}
			decoded, err := decodeScore(val)
			if err != nil {
				return err
			}
			score = decoded
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("results: read score at %d: %w", timestamp, err)
	}
	return score, found, nil
}

// Summary reads back the info record, or ErrNoSummary if the run never
// wrote one.
func (s *BadgerSink) Summary() (Summary, error) {
	var summary Summary
	err := s.db.View(func(txn *badger.Txn) error {
		for key, dst := range map[string]*float64{
			infoMinKey:    &summary.Min,
			infoMaxKey:    &summary.Max,
			infoThreshold: &summary.Threshold,
		} {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoSummary
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				decoded, err := decodeScore(val)
				if err != nil {
					return err
				}
				*dst = decoded
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoSummary) {
			return Summary{}, ErrNoSummary
		}
		return Summary{}, fmt.Errorf("results: read summary: %w", err)
	}
	return summary, nil
}

// Series returns all score entries in time order, skipping clear
// markers. Used by the CLI to print a run's results.
func (s *BadgerSink) Series() ([]Result, error) {
	var out []Result
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(resultsPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var ts int64
			if _, err := fmt.Sscanf(string(item.Key()), resultsPrefix+"%d", &ts); err != nil {
				continue
			}
			err := item.Value(func(val []byte) error {
				if len(val) == 0 {
					return nil
				}
				score, err := decodeScore(val)
				if err != nil {
					return err
				}
				out = append(out, Result{Timestamp: ts, Score: score})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("results: read series: %w", err)
	}
	return out, nil
}
