// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package arrays persists encoded vectors in a compact streaming
// container: a gzip-compressed vector stream plus a small metadata file.
//
// Lifecycle: InitWrite -> Write... -> CloseWrite makes the container
// durable; InitRead -> Read... -> CloseRead consumes it; Reset restarts
// whichever session is open from its beginning; Dispose closes any open
// session and deletes both files. Write and read sessions are mutually
// exclusive on one Store.
//
// The metadata file is the single source of truth for the vector count,
// vector size and encoding mode, and is only written by CloseWrite. The
// stream itself carries no sizing information, which is what lets a
// write session start before the dataset size is known.
package arrays

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/stacksight/services/anomaly/vectorize"
)

// File name suffixes, derived from the analysis name. Deleting both
// files forces the next run to regenerate the container.
const (
	arraysSuffix   = ".arrays.zip.dat"
	metadataSuffix = ".metadata.dat"
)

var (
	// ErrSessionOpen indicates a session was opened while another one
	// is still active on the same store.
	ErrSessionOpen = errors.New("arrays: a session is already open")

	// ErrExhausted indicates Read was called with no vectors left.
	ErrExhausted = errors.New("arrays: no vectors left to read")
)

// EncodingMode selects the storage representation of vector records.
// It has no effect on scores; both modes round-trip identically.
type EncodingMode byte

const (
	// ModePrimitive stores records as raw little-endian numeric blocks.
	ModePrimitive EncodingMode = 0

	// ModeBoxed stores records through encoding/gob.
	ModeBoxed EncodingMode = 1
)

// String returns "primitive", "boxed", or "unknown".
func (m EncodingMode) String() string {
	switch m {
	case ModePrimitive:
		return "primitive"
	case ModeBoxed:
		return "boxed"
	default:
		return "unknown"
	}
}

// Metadata is the container's sizing record.
type Metadata struct {
	// Count is the number of vectors in the stream.
	Count int64

	// VectorSize is the length of every vector.
	VectorSize int32

	// Mode is the storage representation of the stream.
	Mode EncodingMode
}

// Store is the on-disk container for one analysis run's vectors.
//
// A Store is exclusively owned by one analysis run; it is not safe for
// concurrent use and must never be shared across runs.
type Store struct {
	name       string
	arraysPath string
	metaPath   string
	logger     *slog.Logger

	mode       EncodingMode
	vectorSize int32

	// count is the number of vectors written so far during a write
	// session, and the number left to read during a read session.
	count int64

	// Write session.
	wfile *os.File
	wbuf  *bufio.Writer
	gzw   *gzip.Writer
	enc   *gob.Encoder

	// Read session.
	rfile *os.File
	gzr   *gzip.Reader
	dec   *gob.Decoder
}

// NewStore creates a store rooted in dir. File identity derives from
// the analysis name, so re-running the same analysis finds its own
// container.
func NewStore(dir, name string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		name:       name,
		arraysPath: filepath.Join(dir, name+arraysSuffix),
		metaPath:   filepath.Join(dir, name+metadataSuffix),
		logger:     logger.With(slog.String("component", "arrays"), slog.String("analysis", name)),
	}
}

// ArraysPath returns the path of the compressed vector stream.
func (s *Store) ArraysPath() string { return s.arraysPath }

// MetadataPath returns the path of the metadata file.
func (s *Store) MetadataPath() string { return s.metaPath }

// Count returns vectors written so far (write session) or vectors left
// to read (read session).
func (s *Store) Count() int64 { return s.count }

// VectorSize returns the per-vector length from the current session.
func (s *Store) VectorSize() int { return int(s.vectorSize) }

// Mode returns the encoding mode of the current session.
func (s *Store) Mode() EncodingMode { return s.mode }

// Exists reports whether both container files are present, i.e. a
// previous run completed a write session.
func (s *Store) Exists() bool {
	if _, err := os.Stat(s.arraysPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.metaPath); err != nil {
		return false
	}
	return true
}

// InitWrite opens a write session and resets the written count to
// zero. Fails with ErrSessionOpen if any session is active.
func (s *Store) InitWrite(vectorSize int, mode EncodingMode) error {
	if s.wfile != nil || s.rfile != nil {
		return ErrSessionOpen
	}

	if err := os.MkdirAll(filepath.Dir(s.arraysPath), 0750); err != nil {
		return fmt.Errorf("arrays: create store directory: %w", err)
	}
	file, err := os.Create(s.arraysPath)
	if err != nil {
		return fmt.Errorf("arrays: create %s: %w", s.arraysPath, err)
	}

	s.wfile = file
	s.wbuf = bufio.NewWriter(file)
	s.gzw = gzip.NewWriter(s.wbuf)
	s.mode = mode
	s.vectorSize = int32(vectorSize)
	s.count = 0
	if mode == ModeBoxed {
		s.enc = gob.NewEncoder(s.gzw)
	}

	s.logger.Debug("write session opened",
		slog.Int("vector_size", vectorSize),
		slog.String("mode", mode.String()),
	)
	return nil
}

// Write appends one vector to the open write session. With no session
// open this is a warn-and-drop no-op, matching the container's
// degrade-not-crash I/O policy.
func (s *Store) Write(vec vectorize.Vector) error {
	if s.wfile == nil {
		s.logger.Warn("vector dropped; no write session open")
		return nil
	}
	if err := s.encodeVector(vec); err != nil {
		return fmt.Errorf("arrays: write vector: %w", err)
	}
	s.count++
	vectorsWrittenTotal.Inc()
	return nil
}

// CloseWrite flushes and closes the stream, then persists the metadata
// record. Must be called exactly once per write session to make the
// container durable and readable.
func (s *Store) CloseWrite() error {
	if s.wfile == nil {
		return nil
	}

	var errs []error
	if err := s.gzw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gzip stream: %w", err))
	}
	if err := s.wbuf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush stream buffer: %w", err))
	}
	if err := s.wfile.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync arrays file: %w", err))
	}
	if err := s.wfile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close arrays file: %w", err))
	}
	s.wfile = nil
	s.wbuf = nil
	s.gzw = nil
	s.enc = nil

	if err := s.writeMetadata(); err != nil {
		errs = append(errs, err)
	}

	if size, err := os.Stat(s.arraysPath); err == nil {
		storeSizeGauge.WithLabelValues(s.name).Set(float64(size.Size()))
	}

	if len(errs) > 0 {
		return fmt.Errorf("arrays: close write: %w", errors.Join(errs...))
	}
	s.logger.Info("write session closed", slog.Int64("vectors", s.count))
	return nil
}

// InitRead reads the metadata record, then opens the compressed stream.
// Failing to open either file is a hard error; the caller aborts its
// stage rather than reading a half-present container.
func (s *Store) InitRead() error {
	if s.wfile != nil || s.rfile != nil {
		return ErrSessionOpen
	}

	if err := s.readMetadata(); err != nil {
		return err
	}

	file, err := os.Open(s.arraysPath)
	if err != nil {
		return fmt.Errorf("arrays: open %s: %w", s.arraysPath, err)
	}
	gzr, err := gzip.NewReader(bufio.NewReader(file))
	if err != nil {
		file.Close()
		return fmt.Errorf("arrays: open compressed stream: %w", err)
	}

	s.rfile = file
	s.gzr = gzr
	if s.mode == ModeBoxed {
		s.dec = gob.NewDecoder(gzr)
	}

	s.logger.Debug("read session opened",
		slog.Int64("vectors", s.count),
		slog.Int("vector_size", int(s.vectorSize)),
		slog.String("mode", s.mode.String()),
	)
	return nil
}

// HasNext reports whether another vector is left to read.
func (s *Store) HasNext() bool {
	return s.rfile != nil && s.count > 0
}

// Read returns the next vector and decrements the remaining count.
// Returns ErrExhausted once the remaining count reaches zero, and a
// decode error if the stream is corrupt or the session is missing.
func (s *Store) Read() (vectorize.Vector, error) {
	if s.rfile == nil {
		return vectorize.Vector{}, fmt.Errorf("arrays: decode vector: no read session open")
	}
	if s.count <= 0 {
		return vectorize.Vector{}, ErrExhausted
	}

	vec, err := s.decodeVector()
	if err != nil {
		return vectorize.Vector{}, fmt.Errorf("arrays: decode vector: %w", err)
	}
	s.count--
	vectorsReadTotal.Inc()
	return vec, nil
}

// CloseRead closes the read stream. Safe to call with no session open.
func (s *Store) CloseRead() error {
	if s.rfile == nil {
		return nil
	}

	var errs []error
	if err := s.gzr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gzip stream: %w", err))
	}
	if err := s.rfile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close arrays file: %w", err))
	}
	s.rfile = nil
	s.gzr = nil
	s.dec = nil

	if len(errs) > 0 {
		return fmt.Errorf("arrays: close read: %w", errors.Join(errs...))
	}
	return nil
}

// Reset restarts the currently open session from its beginning: a read
// session rereads from the first vector, a write session truncates and
// starts over. With no session open, Reset does nothing.
func (s *Store) Reset() error {
	switch {
	case s.rfile != nil:
		if err := s.CloseRead(); err != nil {
			return err
		}
		return s.InitRead()
	case s.wfile != nil:
		size := int(s.vectorSize)
		mode := s.mode
		if err := s.CloseWrite(); err != nil {
			return err
		}
		return s.InitWrite(size, mode)
	default:
		return nil
	}
}

// Dispose closes any open session and deletes both container files.
// Safe on a store that was never initialized.
func (s *Store) Dispose() error {
	if s.wfile != nil {
		if err := s.CloseWrite(); err != nil {
			s.logger.Warn("close write during dispose", slog.String("error", err.Error()))
		}
	}
	if s.rfile != nil {
		if err := s.CloseRead(); err != nil {
			s.logger.Warn("close read during dispose", slog.String("error", err.Error()))
		}
	}

	var errs []error
	for _, path := range []string{s.arraysPath, s.metaPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	storeSizeGauge.DeleteLabelValues(s.name)

	if len(errs) > 0 {
		return fmt.Errorf("arrays: dispose: %w", errors.Join(errs...))
	}
	s.logger.Debug("container disposed")
	return nil
}

// writeMetadata persists the metadata record atomically: write to a
// temp file, then rename over the final path.
func (s *Store) writeMetadata() error {
	tmp := s.metaPath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := Metadata{Count: s.count, VectorSize: s.vectorSize, Mode: s.mode}
	for _, field := range []any{meta.Count, meta.VectorSize, byte(meta.Mode)} {
		if err := binary.Write(file, binary.LittleEndian, field); err != nil {
			file.Close()
			os.Remove(tmp)
			return fmt.Errorf("write metadata: %w", err)
		}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmp, s.metaPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename metadata into place: %w", err)
	}
	return nil
}

// readMetadata loads the metadata record into the session state.
func (s *Store) readMetadata() error {
	file, err := os.Open(s.metaPath)
	if err != nil {
		return fmt.Errorf("arrays: open metadata %s: %w", s.metaPath, err)
	}
	defer file.Close()

	var meta Metadata
	var mode byte
	if err := binary.Read(file, binary.LittleEndian, &meta.Count); err != nil {
		return fmt.Errorf("arrays: read metadata: %w", err)
	}
	if err := binary.Read(file, binary.LittleEndian, &meta.VectorSize); err != nil {
		return fmt.Errorf("arrays: read metadata: %w", err)
	}
	if err := binary.Read(file, binary.LittleEndian, &mode); err != nil {
		return fmt.Errorf("arrays: read metadata: %w", err)
	}
	meta.Mode = EncodingMode(mode)

	s.count = meta.Count
	s.vectorSize = meta.VectorSize
	s.mode = meta.Mode
	return nil
}

// encodeVector writes one record in the session's encoding mode.
func (s *Store) encodeVector(vec vectorize.Vector) error {
	if s.mode == ModeBoxed {
		return s.enc.Encode(vec)
	}
	if err := binary.Write(s.gzw, binary.LittleEndian, vec.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(s.gzw, binary.LittleEndian, vec.Duration); err != nil {
		return err
	}
	if err := binary.Write(s.gzw, binary.LittleEndian, vec.Depth); err != nil {
		return err
	}
	return binary.Write(s.gzw, binary.LittleEndian, vec.Values)
}

// decodeVector reads one record in the session's encoding mode.
func (s *Store) decodeVector() (vectorize.Vector, error) {
	var vec vectorize.Vector
	if s.mode == ModeBoxed {
		if err := s.dec.Decode(&vec); err != nil {
			return vectorize.Vector{}, err
		}
		if len(vec.Values) != int(s.vectorSize) {
			return vectorize.Vector{}, fmt.Errorf("record has %d values, metadata says %d", len(vec.Values), s.vectorSize)
		}
		return vec, nil
	}

	if err := binary.Read(s.gzr, binary.LittleEndian, &vec.Timestamp); err != nil {
		if errors.Is(err, io.EOF) {
			return vectorize.Vector{}, fmt.Errorf("stream ended before metadata count: %w", err)
		}
		return vectorize.Vector{}, err
	}
	if err := binary.Read(s.gzr, binary.LittleEndian, &vec.Duration); err != nil {
		return vectorize.Vector{}, err
	}
	if err := binary.Read(s.gzr, binary.LittleEndian, &vec.Depth); err != nil {
		return vectorize.Vector{}, err
	}
	vec.Values = make([]float64, s.vectorSize)
	if err := binary.Read(s.gzr, binary.LittleEndian, vec.Values); err != nil {
		return vectorize.Vector{}, err
	}
	return vec, nil
}
