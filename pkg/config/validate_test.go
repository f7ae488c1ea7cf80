package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	return cfg
}

func TestValidate_RejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			"port zero",
			func(c *Config) { c.ProxyPort = 0 },
			"proxy_port",
		},
		{
			"port out of range",
			func(c *Config) { c.ProxyPort = 70000 },
			"proxy_port",
		},
		{
			"negative retention days",
			func(c *Config) { c.MaxTraceRetention = -1 },
			"max_trace_retention",
		},
		{
			"no providers",
			func(c *Config) { c.Providers = nil },
			"providers",
		},
		{
			"unknown provider type",
			func(c *Config) { c.Providers[0].Type = "bedrock" },
			"providers[0].type",
		},
		{
			"duplicate provider names",
			func(c *Config) {
				c.Providers = append(c.Providers, c.Providers[0])
			},
			"providers[1].name",
		},
		{
			"two default providers",
			func(c *Config) {
				second := c.Providers[0]
				second.Name = "secondary"
				c.Providers = append(c.Providers, second)
			},
			"providers",
		},
		{
			"base url wrong scheme",
			func(c *Config) { c.Providers[0].BaseURL = "ftp://example.com" },
			"providers[0].base_url",
		},
		{
			"base url no host",
			func(c *Config) { c.Providers[0].BaseURL = "https://" },
			"providers[0].base_url",
		},
		{
			"negative provider timeout",
			func(c *Config) { c.Providers[0].Timeout = -time.Second },
			"providers[0].timeout",
		},
		{
			"unknown vcr mode",
			func(c *Config) { c.VCR.Mode = "sometimes" },
			"vcr.mode",
		},
		{
			"unknown match mode",
			func(c *Config) { c.VCR.MatchMode = "loose" },
			"vcr.match_mode",
		},
		{
			"empty cassettes dir",
			func(c *Config) { c.VCR.CassettesDir = "" },
			"vcr.cassettes_dir",
		},
		{
			"negative read timeout",
			func(c *Config) { c.Server.ReadTimeout = -time.Second },
			"server.read_timeout",
		},
		{
			"zero shutdown timeout",
			func(c *Config) { c.Server.ShutdownTimeout = 0 },
			"server.shutdown_timeout",
		},
		{
			"zero body cap",
			func(c *Config) { c.Server.MaxBodyBytes = 0 },
			"server.max_body_bytes",
		},
		{
			"zero upstream timeout",
			func(c *Config) { c.Server.UpstreamTimeout = 0 },
			"server.upstream_timeout",
		},
		{
			"unknown storage backend",
			func(c *Config) { c.Storage.Backend = "s3" },
			"storage.backend",
		},
		{
			"unknown fallback backend",
			func(c *Config) { c.Storage.Fallback = "file,redis" },
			"storage.fallback",
		},
		{
			"empty traces dir",
			func(c *Config) { c.Storage.TracesDir = "" },
			"storage.traces_dir",
		},
		{
			"sqlite backend without path",
			func(c *Config) {
				c.Storage.Backend = BackendSQLite
				c.Storage.SQLitePath = ""
			},
			"storage.sqlite_path",
		},
		{
			"negative retry attempts",
			func(c *Config) { c.Storage.RetryAttempts = -1 },
			"storage.retry_attempts",
		},
		{
			"negative max age",
			func(c *Config) { c.Retention.MaxAgeDays = -1 },
			"retention.max_age_days",
		},
		{
			"zero cleanup interval while enabled",
			func(c *Config) { c.Retention.CleanupInterval = 0 },
			"retention.cleanup_interval",
		},
		{
			"archive without path",
			func(c *Config) {
				c.Retention.ArchiveBeforeDelete = true
				c.Retention.ArchivePath = ""
			},
			"retention.archive_path",
		},
		{
			"zero default ceiling while enabled",
			func(c *Config) { c.RateLimit.DefaultCeiling = 0 },
			"rate_limit.default_ceiling",
		},
		{
			"zero provider ceiling",
			func(c *Config) { c.RateLimit.Ceilings = map[string]int{"openai": 0} },
			"rate_limit.ceilings.openai",
		},
		{
			"unknown log level",
			func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			"telemetry.logging.level",
		},
		{
			"unknown log format",
			func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			"telemetry.logging.format",
		},
		{
			"unknown sampler",
			func(c *Config) { c.Telemetry.Tracing.Sampler = "dice" },
			"telemetry.tracing.sampler",
		},
		{
			"sample ratio out of range",
			func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			"telemetry.tracing.sample_ratio",
		},
		{
			"tracing enabled without endpoint",
			func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Endpoint = ""
			},
			"telemetry.tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate passed, want failure")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %T, want ValidationError", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					return
				}
			}
			t.Errorf("no error for field %q in %v", tt.wantField, verr.Errors)
		})
	}
}

func TestValidate_AllowsRelaxedStates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			"cleanup interval irrelevant when retention disabled",
			func(c *Config) {
				c.Retention.Enabled = false
				c.Retention.CleanupInterval = 0
			},
		},
		{
			"ceiling irrelevant when rate limit disabled",
			func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.DefaultCeiling = 0
			},
		},
		{
			"sqlite path not needed for the file backend",
			func(c *Config) {
				c.Storage.Backend = BackendFile
				c.Storage.SQLitePath = ""
			},
		},
		{
			"empty sampler falls back to default",
			func(c *Config) { c.Telemetry.Tracing.Sampler = "" },
		},
		{
			"disabled provider keeps validating",
			func(c *Config) {
				off := false
				c.Providers[0].Enabled = &off
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := Validate(cfg); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.ProxyPort = 0
	cfg.VCR.Mode = "sometimes"
	cfg.Storage.Backend = "s3"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate passed, want failure")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Fatalf("Errors = %d, want 3: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(err.Error(), "(3 errors)") {
		t.Errorf("message = %q, want error count", err.Error())
	}
}

func TestValidationError_SingleErrorMessage(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "proxy_port", Message: "must be between 1 and 65535"},
	}}

	want := "invalid configuration: proxy_port: must be between 1 and 65535"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
