// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrate

import "log/slog"

// Progress receives weighted progress updates from a run. Work units
// are abstract; Begin announces the total and Worked reports
// completed units. Implementations must tolerate totals that finish
// early when a run aborts.
type Progress interface {
	Begin(task string, total int)
	SubTask(name string)
	Worked(units int)
}

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) Begin(string, int) {}
func (NopProgress) SubTask(string)    {}
func (NopProgress) Worked(int)        {}

// LogProgress reports progress through a logger, used by the CLI.
type LogProgress struct {
	Logger *slog.Logger

	task   string
	total  int
	worked int
}

func (p *LogProgress) Begin(task string, total int) {
	p.task = task
	p.total = total
	p.worked = 0
	p.Logger.Info("starting", slog.String("task", task), slog.Int("total_work", total))
}

func (p *LogProgress) SubTask(name string) {
	p.Logger.Info("progress", slog.String("task", p.task), slog.String("stage", name))
}

func (p *LogProgress) Worked(units int) {
	p.worked += units
	p.Logger.Info("progress",
		slog.String("task", p.task),
		slog.Int("worked", p.worked),
		slog.Int("total_work", p.total),
	)
}
