// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command stacksight runs callstack anomaly analysis from the command
// line.
//
// Usage:
//
//	stacksight analyze trace.json
//	stacksight analyze trace.json --params params.yaml
//	stacksight train trace.json --model model.gob
//	stacksight analyze trace.json --model model.gob
//	stacksight inspect
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
