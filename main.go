// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs
//
// Vanprobe - VAN Bus Signal Analyzer
//
// A CLI tool for decoding VAN automotive bus traffic from logic-analyzer
// captures or live sample streams.

package main

import (
	"os"

	"github.com/tracekit/vanprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
