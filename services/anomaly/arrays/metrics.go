// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package arrays

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vectorsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacksight_arrays_vectors_written_total",
		Help: "Total vectors appended across all write sessions",
	})

	vectorsReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacksight_arrays_vectors_read_total",
		Help: "Total vectors decoded across all read sessions",
	})

	storeSizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stacksight_arrays_file_size_bytes",
		Help: "Size of the compressed arrays file per analysis",
	}, []string{"analysis"})
)
