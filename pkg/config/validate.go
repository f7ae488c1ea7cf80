package config

import (
	"fmt"
	"net/url"
	"strings"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/telemetry/logging"
	"traceforge-hq/traceforge/pkg/telemetry/tracing"
	"traceforge-hq/traceforge/pkg/vcr"
)

// FieldError is a validation failure on one configuration field.
type FieldError struct {
	// Field is the dotted path to the field, e.g. "vcr.mode".
	Field string

	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every validation failure found in a
// configuration so a broken file is reported in one pass.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "invalid configuration"
	case 1:
		return fmt.Sprintf("invalid configuration: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid configuration (%d errors):", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError
// listing every failure, or nil when the configuration is usable.
// It assumes ApplyDefaults has run.
func Validate(cfg *Config) error {
	var errs []FieldError

	if cfg.ProxyPort < 1 || cfg.ProxyPort > 65535 {
		errs = append(errs, FieldError{"proxy_port", "must be between 1 and 65535"})
	}
	if cfg.MaxTraceRetention < 0 {
		errs = append(errs, FieldError{"max_trace_retention", "must not be negative"})
	}

	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateVCR(&cfg.VCR)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProviders(list []ProviderConfig) []FieldError {
	var errs []FieldError

	if len(list) == 0 {
		return []FieldError{{"providers", "at least one provider is required"}}
	}

	seen := make(map[string]bool, len(list))
	defaults := 0
	for i := range list {
		p := &list[i]
		prefix := fmt.Sprintf("providers[%d]", i)

		switch p.Type {
		case providers.TypeOpenAI, providers.TypeAnthropic,
			providers.TypeGemini, providers.TypeOllama:
		default:
			errs = append(errs, FieldError{
				prefix + ".type",
				fmt.Sprintf("unsupported type %q (supported: openai, anthropic, gemini, ollama)", p.Type),
			})
		}

		if p.Name == "" {
			errs = append(errs, FieldError{prefix + ".name", "name is required"})
		} else if seen[p.Name] {
			errs = append(errs, FieldError{prefix + ".name", fmt.Sprintf("duplicate provider name %q", p.Name)})
		} else {
			seen[p.Name] = true
		}

		if p.BaseURL != "" {
			if err := checkHTTPURL(p.BaseURL); err != nil {
				errs = append(errs, FieldError{prefix + ".base_url", err.Error()})
			}
		}
		if p.Timeout < 0 {
			errs = append(errs, FieldError{prefix + ".timeout", "must not be negative"})
		}
		if p.Default {
			defaults++
		}
	}

	if defaults > 1 {
		errs = append(errs, FieldError{"providers", "at most one provider may be marked default"})
	}

	return errs
}

func validateVCR(cfg *VCRConfig) []FieldError {
	var errs []FieldError

	if _, err := vcr.ParseMode(cfg.Mode); err != nil {
		errs = append(errs, FieldError{"vcr.mode", "must be one of: off, record, replay, auto, strict"})
	}
	if _, err := vcr.ParseMatchMode(cfg.MatchMode); err != nil {
		errs = append(errs, FieldError{"vcr.match_mode", `must be "fuzzy" or "exact"`})
	}
	if cfg.CassettesDir == "" {
		errs = append(errs, FieldError{"vcr.cassettes_dir", "directory is required"})
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{"server.read_timeout", "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{"server.write_timeout", "must not be negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{"server.idle_timeout", "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{"server.shutdown_timeout", "must be positive"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{"server.max_body_bytes", "must be positive"})
	}
	if cfg.UpstreamTimeout <= 0 {
		errs = append(errs, FieldError{"server.upstream_timeout", "must be positive"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, FieldError{
			"storage.backend",
			fmt.Sprintf("unsupported backend %q (supported: file, sqlite)", cfg.Backend),
		})
	}

	for _, name := range cfg.FallbackChain() {
		switch name {
		case BackendFile, BackendSQLite, BackendMemory:
		default:
			errs = append(errs, FieldError{
				"storage.fallback",
				fmt.Sprintf("unsupported backend %q (supported: file, sqlite, memory)", name),
			})
		}
	}

	if cfg.TracesDir == "" {
		errs = append(errs, FieldError{"storage.traces_dir", "directory is required"})
	}
	if cfg.SQLitePath == "" && usesBackend(cfg, BackendSQLite) {
		errs = append(errs, FieldError{"storage.sqlite_path", "path is required for the sqlite backend"})
	}
	if cfg.RetryAttempts < 0 {
		errs = append(errs, FieldError{"storage.retry_attempts", "must not be negative"})
	}
	if cfg.RetryDelay < 0 {
		errs = append(errs, FieldError{"storage.retry_delay", "must not be negative"})
	}

	return errs
}

// usesBackend reports whether the named backend appears as the primary
// or anywhere in the fallback chain.
func usesBackend(cfg *StorageConfig, name string) bool {
	if cfg.Backend == name {
		return true
	}
	for _, fb := range cfg.FallbackChain() {
		if fb == name {
			return true
		}
	}
	return false
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAgeDays < 0 {
		errs = append(errs, FieldError{"retention.max_age_days", "must not be negative"})
	}
	if cfg.MaxCount < 0 {
		errs = append(errs, FieldError{"retention.max_count", "must not be negative"})
	}
	if cfg.Enabled && cfg.CleanupInterval <= 0 {
		errs = append(errs, FieldError{"retention.cleanup_interval", "must be positive"})
	}
	if cfg.ArchiveBeforeDelete && cfg.ArchivePath == "" {
		errs = append(errs, FieldError{"retention.archive_path", "path is required when archive_before_delete is set"})
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && cfg.DefaultCeiling <= 0 {
		errs = append(errs, FieldError{"rate_limit.default_ceiling", "must be positive"})
	}
	for name, ceiling := range cfg.Ceilings {
		if ceiling <= 0 {
			errs = append(errs, FieldError{
				fmt.Sprintf("rate_limit.ceilings.%s", name),
				"must be positive",
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{"telemetry.logging.level", "must be one of: debug, info, warn, error"})
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		errs = append(errs, FieldError{"telemetry.logging.format", `must be "json" or "text"`})
	}

	switch cfg.Tracing.Sampler {
	case "", tracing.SamplerAlways, tracing.SamplerNever, tracing.SamplerRatio:
	default:
		errs = append(errs, FieldError{"telemetry.tracing.sampler", "must be one of: always, never, ratio"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{"telemetry.tracing.sample_ratio", "must be between 0.0 and 1.0"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{"telemetry.tracing.endpoint", "endpoint is required when tracing is enabled"})
	}

	return errs
}

// checkHTTPURL rejects URLs that are not absolute http or https.
func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}
