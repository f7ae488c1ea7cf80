package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"traceforge-hq/traceforge/pkg/cli"
	"traceforge-hq/traceforge/pkg/config"
	"traceforge-hq/traceforge/pkg/server"
	"traceforge-hq/traceforge/pkg/telemetry/logging"
)

var runFlags struct {
	port     int
	logLevel string
	vcrMode  string
	dryRun   bool
	noReload bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the TraceForge gateway",
	Long: `Start the TraceForge gateway with the specified configuration.

The gateway listens on the configured address and proxies LLM API
requests through the VCR engine, the trace recorder, and the provider
router. Edits to the configuration file are picked up without a
restart unless --no-reload is given.

Examples:
  # Start with the default config file (or built-in defaults)
  traceforge run

  # Start with a custom config
  traceforge run --config /etc/traceforge/traceforge.yaml

  # Override the listen port and force replay mode
  traceforge run --port 9090 --vcr-mode replay

  # Validate config without starting the gateway
  traceforge run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.vcrMode, "vcr-mode", "", "override VCR mode (off, record, replay, auto, strict)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
	runCmd.Flags().BoolVar(&runFlags.noReload, "no-reload", false, "disable config file watching")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg); err != nil {
		return err
	}

	level := cfg.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.Setup(&logging.Config{
		Level:     level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg, path)

	srv, err := server.New(cfg, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx := cli.SetupSignalHandler()

	if !runFlags.noReload && path != "" {
		watcher, err := config.NewWatcher(path, logger)
		if err != nil {
			logger.Warn("config watcher unavailable, hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
			go func() {
				if err := watcher.Watch(ctx, func(next *config.Config) {
					if err := applyRunOverrides(next); err != nil {
						logger.Error("config reload rejected", "error", err)
						return
					}
					if err := srv.ApplyConfig(next); err != nil {
						logger.Error("config reload failed", "error", err)
					}
				}); err != nil {
					logger.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	fmt.Println()
	fmt.Printf("✓ Gateway starting on http://%s\n", cfg.ListenAddr())
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.ListenAddr())
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.ListenAddr())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Gateway stopped")
	return nil
}

// applyRunOverrides folds run command flags into the configuration.
// Flags beat the file on every load, including hot reloads, so an
// override given at startup survives config edits.
func applyRunOverrides(cfg *config.Config) error {
	if runFlags.port > 0 {
		cfg.ProxyPort = runFlags.port
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.vcrMode != "" {
		cfg.VCR.Mode = runFlags.vcrMode
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}
	return nil
}

func printBanner(cfg *config.Config, path string) {
	fmt.Printf("TraceForge v%s\n", Version)
	if path != "" {
		fmt.Printf("Loading configuration from: %s\n", path)
	} else {
		fmt.Println("No config file found, using built-in defaults")
	}
	fmt.Println("✓ Configuration loaded")
	fmt.Printf("✓ Providers configured (%d)\n", len(cfg.Providers))
	fmt.Printf("✓ Storage backend: %s\n", cfg.Storage.Backend)
	if cfg.VCR.Mode != "off" {
		fmt.Printf("✓ VCR mode: %s\n", cfg.VCR.Mode)
	}

	slog.Debug("effective configuration",
		"listen", cfg.ListenAddr(),
		"save_traces", cfg.SaveTraces,
		"retention_enabled", cfg.Retention.Enabled,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"tracing_enabled", cfg.Telemetry.Tracing.Enabled)
}
