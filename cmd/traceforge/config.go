package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"traceforge-hq/traceforge/pkg/cli"
	"traceforge-hq/traceforge/pkg/config"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/storage"
)

// loadConfig builds the effective configuration for a command. When
// --config was not given explicitly and the default file does not
// exist, built-in defaults apply; an explicitly named file must exist.
// The returned path is the file actually read, or "" when defaults
// were used.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := cfgFile

	explicit := false
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil {
			explicit = f.Changed
		}
	}
	if !explicit && path == defaultConfigFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", cli.NewConfigError("", err.Error())
	}
	return cfg, path, nil
}

// openStore opens the configured primary trace store for offline
// inspection. Unlike the server it opens no fallbacks: a read-only
// command should fail loudly rather than silently consult an empty
// fallback store.
func openStore(cfg *config.Config) (trace.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return storage.NewFileStore(&storage.FileConfig{
			Root:     cfg.Storage.TracesDir,
			TestsDir: cfg.Storage.TestsDir,
		})
	case config.BackendSQLite:
		return storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path: cfg.Storage.SQLitePath,
		})
	case config.BackendMemory:
		return nil, fmt.Errorf("the memory backend holds no persisted traces to inspect")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
