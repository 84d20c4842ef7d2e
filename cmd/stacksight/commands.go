// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	paramsPath   string
	dataDir      string
	resultsDir   string
	analysisName string
	modelPath    string
	boxed        bool
	dumpVectors  bool
	verbose      bool
	quiet        bool
	logDir       string

	rootCmd = &cobra.Command{
		Use:   "stacksight",
		Short: "Anomaly detection over callstack profiling traces",
		Long: `Stacksight converts hierarchical call traces into fixed-shape
feature vectors, persists them in a compressed container, and scores
each call for anomaly against the population or a trained model.`,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [trace file]",
		Short: "Vectorize a trace and score every call for anomaly",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}

	trainCmd = &cobra.Command{
		Use:   "train [trace file]",
		Short: "Vectorize a trace and fit an anomaly model from it",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrain, // Defined in cmd_train.go
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Print the results and container metadata of a past analysis",
		Args:  cobra.NoArgs,
		RunE:  runInspect, // Defined in cmd_inspect.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&paramsPath, "params", "", "YAML parameter file (defaults apply when empty)")
	pf.StringVar(&dataDir, "data-dir", "stacksight-data", "Directory for vector containers")
	pf.StringVar(&resultsDir, "results-dir", "stacksight-results", "Directory for the result store")
	pf.StringVar(&analysisName, "analysis", "callstack-anomaly", "Analysis name, keys the container files")
	pf.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	pf.BoolVar(&quiet, "quiet", false, "Disable stderr logging")
	pf.StringVar(&logDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")

	analyzeCmd.Flags().StringVar(&modelPath, "model", "", "Score against this trained model instead of population statistics")
	analyzeCmd.Flags().BoolVar(&boxed, "boxed", false, "Use the boxed container encoding")
	trainCmd.Flags().StringVar(&modelPath, "model", "model.gob", "Output path for the trained model")
	trainCmd.Flags().BoolVar(&boxed, "boxed", false, "Use the boxed container encoding")
	inspectCmd.Flags().BoolVar(&dumpVectors, "vectors", false, "Also dump every stored vector")

	rootCmd.AddCommand(analyzeCmd, trainCmd, inspectCmd)
}
