// Package cli provides common CLI utilities for the fieldstream command.
//
// This package includes:
//   - Configuration management (relay contexts)
//   - Output formatting (JSON, YAML) with ordered record fields
//   - Request and instruction file loading (YAML/JSON)
//   - A lipgloss field board for live generations
//
// Configuration is stored in ~/.fieldstream/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	cfg, err := cli.LoadConfigWithPath("fieldstream", "")
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(cli.Fields(gen.Fields()), cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
