// Package main is the entry point of the svgen CLI.
//
// Usage:
//
//	svgen [flags] <command> [subcommand] [args]
//
// Commands:
//
//	generate   - Generate an SVG icon from a prompt
//	serve      - Live preview server over WebSocket
//	models     - Inspect, delete and purge cached models
//	artifacts  - List, show and export saved icons
//	history    - Prompt history
//	draft      - The unsent prompt draft
//	config     - Contexts (endpoint, model, defaults)
package main

import (
	"fmt"
	"os"

	"github.com/sharo-jef/webllm-svg/cmd/svgen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
