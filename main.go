// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for KriSYS.
//
// Usage:
//
//	go run . serve
//	./krisys station --station.central_url http://central:5000
//
// See --help for the full command list.
package main

import (
	"os"

	"github.com/paxdriver/KriSYS/ui/cli"
)

func main() {
	// Cobra has already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
