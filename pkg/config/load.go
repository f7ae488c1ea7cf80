package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration. The pipeline is: start from
// DefaultConfig, unmarshal the YAML file at path over it (skipped when
// path is empty), apply environment overrides, fill derived defaults,
// then validate. Environment variables always win over the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies the recognized environment variables.
// Unparseable values are ignored and the configured value stands.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TRACEFORGE_TRACES_DIR"); val != "" {
		cfg.Storage.TracesDir = val
	}
	if val := os.Getenv("TRACEFORGE_TESTS_DIR"); val != "" {
		cfg.Storage.TestsDir = val
	}
	if val := os.Getenv("TRACEFORGE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("TRACEFORGE_STORAGE_FALLBACK"); val != "" {
		cfg.Storage.Fallback = val
	}
	if val := os.Getenv("TRACEFORGE_STORAGE_RETRY_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Storage.RetryAttempts = n
		}
	}
	if val := os.Getenv("TRACEFORGE_STORAGE_RETRY_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.RetryDelay = d
		}
	}

	if val := os.Getenv("TRACEFORGE_VCR_MODE"); val != "" {
		cfg.VCR.Mode = val
	}
	if val := os.Getenv("TRACEFORGE_VCR_MATCH"); val != "" {
		cfg.VCR.MatchMode = val
	}
	if val := os.Getenv("TRACEFORGE_VCR_DIR"); val != "" {
		cfg.VCR.CassettesDir = val
	}
	if val := os.Getenv("TRACEFORGE_VCR_SECRET"); val != "" {
		cfg.VCR.SignatureSecret = val
	}

	if val := os.Getenv("TRACEFORGE_RETENTION_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Retention.Enabled = b
		}
	}
	if val := os.Getenv("TRACEFORGE_MAX_TRACE_AGE_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Retention.MaxAgeDays = n
		}
	}
	if val := os.Getenv("TRACEFORGE_MAX_TRACE_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Retention.MaxCount = n
		}
	}
	if val := os.Getenv("TRACEFORGE_CLEANUP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Retention.CleanupInterval = d
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
}
