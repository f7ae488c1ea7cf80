package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigFile is the config path used when --config is not given.
// A missing default file is not an error; built-in defaults apply.
const defaultConfigFile = "traceforge.yaml"

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "traceforge",
	Short: "TraceForge - programmable LLM proxy with record/replay",
	Long: `TraceForge is a programmable reverse proxy that sits between your
application and LLM providers.

It terminates OpenAI-dialect API requests and provides:
  - Multi-provider routing (OpenAI, Anthropic, Gemini, Ollama)
  - VCR-style record and replay with tamper-evident cassettes
  - Trace capture with redaction, retention, and full-text search
  - Per-client rate limiting and circuit-broken persistence

For more information, visit: https://github.com/traceforge-hq/traceforge`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable the generated completion command; completion.go adds our own.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
