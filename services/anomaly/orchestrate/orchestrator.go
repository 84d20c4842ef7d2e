// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrate drives a full anomaly analysis run: shape
// collection over the call trees, vector encoding into the persistent
// container, then the configured detector or trainer. The container is
// reused across runs with the same analysis name; cancellation between
// stages leaves either the previous complete container or no container
// at all, never a half-written one.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
	"github.com/AleutianAI/stacksight/services/anomaly/config"
	"github.com/AleutianAI/stacksight/services/anomaly/detect"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
	"github.com/AleutianAI/stacksight/services/anomaly/vectorize"
)

// State tracks where a run currently is. States advance monotonically;
// Aborted and Done are terminal.
type State int

const (
	StateIdle State = iota
	StateShapeCollecting
	StateEncoding
	StateAnalyzing
	StateSummarizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateShapeCollecting:
		return "shape-collecting"
	case StateEncoding:
		return "encoding"
	case StateAnalyzing:
		return "analyzing"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Work weights per stage. Analysis dominates a run, encoding the
// container costs about twice the shape pass.
const (
	workShape    = 1
	workEncoding = 2
	workAnalysis = 3
	workModel    = 1
	workFinalize = 1
)

// Orchestrator runs one analysis end to end.
type Orchestrator struct {
	params   config.Params
	store    *arrays.Store
	sink     results.Sink
	logger   *slog.Logger
	progress Progress

	state State
	runID string

	// writing is set between InitWrite and a successful CloseWrite;
	// an abort in that window disposes the partial container.
	writing bool
}

// New builds an orchestrator. A nil progress reports nowhere.
func New(params config.Params, store *arrays.Store, sink results.Sink, logger *slog.Logger, progress Progress) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &Orchestrator{
		params:   params,
		store:    store,
		sink:     sink,
		logger:   logger.With(slog.String("component", "orchestrate")),
		progress: progress,
		state:    StateIdle,
	}
}

// State returns the run's current state.
func (o *Orchestrator) State() State { return o.state }

// RunID returns the identifier of the last run, empty before the first.
func (o *Orchestrator) RunID() string { return o.runID }

func (o *Orchestrator) setState(s State) {
	o.state = s
	o.progress.SubTask(s.String())
	o.logger.Debug("state change", slog.String("state", s.String()), slog.String("run_id", o.runID))
}

// Run executes an analysis over the given root calls. The error is
// context.Canceled when the run was cancelled; in that case and on any
// other failure the state ends at Aborted and a partially written
// container has been removed.
func (o *Orchestrator) Run(ctx context.Context, roots []calltree.RootCall) error {
	o.runID = uuid.NewString()
	started := time.Now()
	variant := string(o.params.Variant)

	ctx, span := otel.Tracer("stacksight/orchestrate").Start(ctx, "anomaly.run")
	span.SetAttributes(
		attribute.String("run_id", o.runID),
		attribute.String("variant", variant),
		attribute.Int("roots", len(roots)),
	)
	defer span.End()

	o.logger.Info("run starting",
		slog.String("run_id", o.runID),
		slog.String("variant", variant),
		slog.Int("roots", len(roots)),
	)

	err := o.run(ctx, roots)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		o.abort()
	} else {
		o.setState(StateDone)
	}
	runsTotal.WithLabelValues(variant, outcome).Inc()
	runDuration.WithLabelValues(variant).Observe(time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		o.logger.Error("run failed", slog.String("run_id", o.runID), slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("run complete",
		slog.String("run_id", o.runID),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, roots []calltree.RootCall) error {
	total := workShape + workEncoding + workAnalysis + workFinalize
	if o.params.Variant == config.VariantModelApply {
		total += workModel
	}
	o.progress.Begin("callstack anomaly analysis", total)

	if o.store.Exists() {
		o.logger.Info("container exists, skipping vector generation",
			slog.String("path", o.store.ArraysPath()))
		o.progress.Worked(workShape + workEncoding)
	} else {
		if err := o.generate(ctx, roots); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	o.setState(StateAnalyzing)
	if err := o.analyze(ctx); err != nil {
		return err
	}
	o.progress.Worked(workAnalysis)

	if err := ctx.Err(); err != nil {
		return err
	}
	o.setState(StateSummarizing)
	o.progress.Worked(workFinalize)
	return nil
}

// generate performs both passes: shape collection over all roots, then
// encoding every root into the container.
func (o *Orchestrator) generate(ctx context.Context, roots []calltree.RootCall) error {
	o.setState(StateShapeCollecting)
	if err := ctx.Err(); err != nil {
		return err
	}
	layout := vectorize.Collect(roots)
	o.logger.Info("shape collected",
		slog.Int("max_depth", layout.MaxDepth),
		slog.Int("vector_len", layout.VectorLen()),
	)
	o.progress.Worked(workShape)

	o.setState(StateEncoding)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.InitWrite(layout.VectorLen(), o.params.EncodingMode()); err != nil {
		return fmt.Errorf("orchestrate: open container: %w", err)
	}
	o.writing = true
	for _, root := range roots {
		vec, err := vectorize.Encode(root, layout)
		if err != nil {
			return fmt.Errorf("orchestrate: encode root: %w", err)
		}
		if err := o.store.Write(vec); err != nil {
			return fmt.Errorf("orchestrate: write vector: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.CloseWrite(); err != nil {
		return fmt.Errorf("orchestrate: close container: %w", err)
	}
	o.writing = false
	o.progress.Worked(workEncoding)
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context) error {
	switch o.params.Variant {
	case config.VariantStatistical:
		det := &detect.Statistical{
			N:         o.params.NValue,
			Threshold: o.params.AnomalyThreshold,
			Logger:    o.logger,
		}
		return detect.Run(ctx, det, o.store, o.sink)
	case config.VariantModelApply:
		det := &detect.ModelBased{
			ModelPath:     o.params.ModelPath,
			Threshold:     o.params.AnomalyThreshold,
			Logger:        o.logger,
			OnModelLoaded: func() { o.progress.Worked(workModel) },
		}
		return detect.Run(ctx, det, o.store, o.sink)
	case config.VariantModelTrain:
		return detect.Train(ctx, o.store, detect.TrainingParams{
			LearningRate: o.params.LearningRate,
			Epochs:       o.params.Epochs,
			BatchSize:    o.params.BatchSize,
			ModelPath:    o.params.ModelPath,
		}, o.logger)
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownVariant, o.params.Variant)
	}
}

// abort moves to the terminal Aborted state and removes a partially
// written container so a later run regenerates it from scratch.
func (o *Orchestrator) abort() {
	if o.writing {
		if err := o.store.Dispose(); err != nil {
			o.logger.Warn("dispose after abort", slog.String("error", err.Error()))
		}
		o.writing = false
	}
	o.setState(StateAborted)
}
