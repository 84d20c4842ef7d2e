// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stacksight_runs_total",
		Help: "Analysis runs by variant and outcome.",
	}, []string{"variant", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stacksight_run_duration_seconds",
		Help:    "Wall-clock duration of analysis runs.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"variant"})
)
