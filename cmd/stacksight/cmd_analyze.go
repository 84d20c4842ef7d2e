// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/stacksight/pkg/logging"
	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/calltree"
	"github.com/AleutianAI/stacksight/services/anomaly/config"
	"github.com/AleutianAI/stacksight/services/anomaly/orchestrate"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

// newLogger builds the process logger from the global flags.
func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "stacksight",
		Quiet:   quiet,
	})
}

// loadParams overlays the optional parameter file on the defaults and
// applies command-line overrides.
func loadParams() (config.Params, error) {
	params := config.Defaults()
	if paramsPath != "" {
		loaded, err := config.Load(paramsPath)
		if err != nil {
			return config.Params{}, err
		}
		params = loaded
	}
	if boxed {
		params.Boxed = true
	}
	return params, nil
}

// loadRoots parses the trace file and selects the calls at the target
// depth.
func loadRoots(path string, targetDepth int) ([]calltree.RootCall, error) {
	tree, err := calltree.LoadFile(path)
	if err != nil {
		return nil, err
	}
	roots := tree.RootCalls(targetDepth)
	if len(roots) == 0 {
		return nil, fmt.Errorf("trace %s has no calls at depth %d", path, targetDepth)
	}
	return roots, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	params, err := loadParams()
	if err != nil {
		return err
	}
	if modelPath != "" {
		params.Variant = config.VariantModelApply
		params.ModelPath = modelPath
	}
	if err := params.Validate(); err != nil {
		return err
	}

	roots, err := loadRoots(args[0], params.TargetDepth)
	if err != nil {
		return err
	}

	sink, err := results.OpenBadger(resultsDir, logger.Slog())
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := arrays.NewStore(dataDir, analysisName, logger.Slog())
	progress := &orchestrate.LogProgress{Logger: logger.Slog()}
	orch := orchestrate.New(params, store, sink, logger.Slog(), progress)
	if err := orch.Run(ctx, roots); err != nil {
		return err
	}

	summary, err := sink.Summary()
	if err != nil {
		return err
	}
	fmt.Printf("Analyzed %d calls (threshold %.2f)\n", len(roots), summary.Threshold)
	series, err := sink.Series()
	if err != nil {
		return err
	}
	for _, r := range series {
		marker := ""
		if r.Score >= summary.Threshold {
			marker = "  <- anomalous"
		}
		fmt.Printf("  t=%-12d score=%.4f%s\n", r.Timestamp, r.Score, marker)
	}
	return nil
}
