package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Check a TraceForge configuration file without starting the gateway.

The file is loaded through the same pipeline the gateway uses: YAML
parse, environment overrides, defaults, and field validation. Every
problem is reported, not just the first one.

Examples:
  # Validate the default config file
  traceforge validate

  # Validate a specific file
  traceforge validate --config /etc/traceforge/traceforge.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if path != "" {
		fmt.Printf("Validating %s\n", path)
	} else {
		fmt.Println("No config file found, validating built-in defaults")
	}
	fmt.Println()

	fmt.Printf("✓ Listen address: %s\n", cfg.ListenAddr())
	fmt.Printf("✓ Storage backend: %s", cfg.Storage.Backend)
	if cfg.Storage.Fallback != "" {
		fmt.Printf(" (fallback: %s)", cfg.Storage.Fallback)
	}
	fmt.Println()
	fmt.Printf("✓ VCR mode: %s (match: %s)\n", cfg.VCR.Mode, cfg.VCR.MatchMode)
	if cfg.VCR.SignatureSecret == "" && cfg.VCR.Mode != "off" {
		fmt.Println("⚠ No VCR signature secret set; cassettes will be unsigned")
	}

	if len(cfg.Providers) == 0 {
		fmt.Println("✓ Providers: none configured, built-in model routing applies")
	} else {
		fmt.Printf("✓ Providers configured (%d):\n", len(cfg.Providers))
		for i := range cfg.Providers {
			p := &cfg.Providers[i]
			state := "enabled"
			if !p.IsEnabled() {
				state = "disabled"
			}
			marker := ""
			if p.Default {
				marker = ", default"
			}
			fmt.Printf("    %s (%s, %s%s)\n", p.Name, p.Type, state, marker)
		}
	}

	fmt.Println()
	fmt.Println("✓ Configuration valid")
	return nil
}
