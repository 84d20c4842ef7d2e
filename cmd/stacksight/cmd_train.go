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

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/config"
	"github.com/AleutianAI/stacksight/services/anomaly/orchestrate"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

func runTrain(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	params, err := loadParams()
	if err != nil {
		return err
	}
	params.Variant = config.VariantModelTrain
	params.ModelPath = modelPath
	if err := params.Validate(); err != nil {
		return err
	}

	roots, err := loadRoots(args[0], params.TargetDepth)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := arrays.NewStore(dataDir, analysisName, logger.Slog())
	progress := &orchestrate.LogProgress{Logger: logger.Slog()}
	orch := orchestrate.New(params, store, results.NewMemorySink(), logger.Slog(), progress)
	if err := orch.Run(ctx, roots); err != nil {
		return err
	}

	fmt.Printf("Trained model on %d calls: %s\n", len(roots), params.ModelPath)
	return nil
}
