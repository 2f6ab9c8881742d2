// Package main is the entry point for the fae CLI.
//
// Usage:
//
//	fae [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the runtime behind a stdio (and optionally websocket) bridge
//	bench      - Measure boundary dispatch latency
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/saorsa-labs/fae/cmd/fae/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
