// Package main provides the fieldstream CLI.
//
// Usage:
//
//	fieldstream [flags] <command> [args]
//
// Commands:
//
//	serve     - Run the relay server in front of an upstream model
//	generate  - Send an instruction to a relay and watch fields arrive
//	extract   - Run the field extractor over raw text offline
//	adapt     - Turn a raw provider response body into text deltas
//	records   - Inspect stored records
//	config    - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.fieldstream/fieldstream/
//	Use 'fieldstream config' commands to manage contexts.
package main

import (
	"os"

	"github.com/haivivi/fieldstream/cmd/fieldstream/commands"
	"github.com/haivivi/fieldstream/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
