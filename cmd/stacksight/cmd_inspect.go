// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
	"github.com/AleutianAI/stacksight/services/anomaly/results"
)

func runInspect(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	store := arrays.NewStore(dataDir, analysisName, logger.Slog())
	if store.Exists() {
		if err := store.InitRead(); err != nil {
			return err
		}
		fmt.Printf("Container %s:\n", analysisName)
		fmt.Printf("  vectors:     %d\n", store.Count())
		fmt.Printf("  vector size: %d\n", store.VectorSize())
		fmt.Printf("  encoding:    %s\n", store.Mode())
		if dumpVectors {
			for store.HasNext() {
				vec, err := store.Read()
				if err != nil {
					store.CloseRead()
					return err
				}
				fmt.Printf("  t=%-12d d=%-8d depth=%-3d %v\n",
					vec.Timestamp, vec.Duration, vec.Depth, vec.Values)
			}
		}
		if err := store.CloseRead(); err != nil {
			return err
		}
	} else {
		fmt.Printf("Container %s: not present\n", analysisName)
	}

	sink, err := results.OpenBadger(resultsDir, logger.Slog())
	if err != nil {
		return err
	}
	defer sink.Close()

	summary, err := sink.Summary()
	if errors.Is(err, results.ErrNoSummary) {
		fmt.Println("Results: none recorded")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Results (scores in [%.2f, %.2f], threshold %.2f):\n",
		summary.Min, summary.Max, summary.Threshold)
	series, err := sink.Series()
	if err != nil {
		return err
	}
	for _, r := range series {
		fmt.Printf("  t=%-12d score=%.4f\n", r.Timestamp, r.Score)
	}
	return nil
}
