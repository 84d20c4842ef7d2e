// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package calltree

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonCall is the on-disk trace format: a forest of timed calls.
//
//	{
//	  "calls": [
//	    {"address": 7, "start": 100, "duration": 50, "self_time": 20,
//	     "children": [ ... ]}
//	  ]
//	}
type jsonCall struct {
	Address  uint64     `json:"address"`
	Start    int64      `json:"start"`
	Duration int64      `json:"duration"`
	SelfTime int64      `json:"self_time"`
	Children []jsonCall `json:"children,omitempty"`
}

type jsonTrace struct {
	Calls []jsonCall `json:"calls"`
}

// LoadFile reads a JSON trace file into a Tree.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse converts JSON trace data into a Tree. Conversion is iterative;
// arbitrarily deep traces are fine.
func Parse(data []byte) (*Tree, error) {
	var trace jsonTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}

	tree := NewTree()

	type frame struct {
		call   *jsonCall
		parent int
	}
	var stack []frame
	for i := len(trace.Calls) - 1; i >= 0; i-- {
		stack = append(stack, frame{call: &trace.Calls[i], parent: -1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		idx := tree.AddCall(f.parent, f.call.Address, f.call.Start, f.call.Duration, f.call.SelfTime)
		for i := len(f.call.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{call: &f.call.Children[i], parent: idx})
		}
	}
	return tree, nil
}
