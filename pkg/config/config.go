package config

import (
	"fmt"
	"strings"
	"time"
)

// Storage backend names accepted by StorageConfig.Backend and the
// fallback chain.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the root configuration document. Zero values are filled in
// by DefaultConfig and ApplyDefaults; Load runs the full pipeline.
type Config struct {
	// UpstreamURL is the base URL of the default OpenAI-dialect
	// upstream, used when no providers list is given.
	// Default: https://api.openai.com
	UpstreamURL string `yaml:"upstream_url"`

	// APIKeyEnvVar names the environment variable holding the default
	// upstream's API key. Default: OPENAI_API_KEY
	APIKeyEnvVar string `yaml:"api_key_env_var"`

	// ProxyPort is the listen port. Default: 8787
	ProxyPort int `yaml:"proxy_port"`

	// SaveTraces enables trace persistence. Default: true
	SaveTraces bool `yaml:"save_traces"`

	// Providers is the ordered provider list. When empty, a single
	// openai provider is synthesized from UpstreamURL and APIKeyEnvVar.
	Providers []ProviderConfig `yaml:"providers"`

	// VCR configures cassette record and replay.
	VCR VCRConfig `yaml:"vcr"`

	// RedactFields lists extra sensitive field names scrubbed in
	// addition to the built-in set.
	RedactFields []string `yaml:"redact_fields"`

	// MaxTraceRetention is the maximum trace age in days. It feeds
	// retention.max_age_days when that field is unset. Default: 0
	// (keep forever)
	MaxTraceRetention int `yaml:"max_trace_retention"`

	// Server tunes the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Storage selects and tunes the trace store.
	Storage StorageConfig `yaml:"storage"`

	// Retention schedules trace pruning.
	Retention RetentionConfig `yaml:"retention"`

	// RateLimit tunes per-client admission control.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig is one entry in the providers list.
type ProviderConfig struct {
	// Type selects the wire adapter: openai, anthropic, gemini, or
	// ollama. When empty it is inferred from Name, falling back to
	// openai.
	Type string `yaml:"type"`

	// Name identifies the provider in routing, traces, and metrics.
	// Default: the type.
	Name string `yaml:"name"`

	// BaseURL overrides the adapter's default upstream URL.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnvVar names the environment variable read per request.
	// When empty the adapter default for the type applies
	// (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY; ollama needs
	// no key).
	APIKeyEnvVar string `yaml:"api_key_env_var"`

	// Enabled gates the provider without removing its entry.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Default marks the provider selected when no model prefix
	// matches. At most one provider may be marked.
	Default bool `yaml:"default"`

	// Timeout bounds each upstream dispatch for this provider.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the provider participates in routing.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// VCRConfig configures the record/replay engine.
type VCRConfig struct {
	// Mode selects engine behavior: off, record, replay, auto, or
	// strict. Default: off
	Mode string `yaml:"mode"`

	// MatchMode controls request fingerprinting: fuzzy or exact.
	// Default: fuzzy
	MatchMode string `yaml:"match_mode"`

	// CassettesDir is the root of the cassette tree. Default: .cassettes
	CassettesDir string `yaml:"cassettes_dir"`

	// SignatureSecret signs cassettes on record and verifies them on
	// replay. Unset records unsigned cassettes.
	SignatureSecret string `yaml:"signature_secret"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Default: 0.0.0.0
	Host string `yaml:"host"`

	// ReadTimeout bounds reading the request including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Default: 0 (unbounded;
	// streamed completions hold the response open)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps accepted request bodies. Default: 1048576 (1 MiB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// UpstreamTimeout bounds non-streaming upstream dispatches.
	// Default: 30s
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
}

// StorageConfig selects and tunes the trace store.
type StorageConfig struct {
	// Backend selects the primary store: file or sqlite. Default: file
	Backend string `yaml:"backend"`

	// TracesDir is the file backend root. Default: .traces
	TracesDir string `yaml:"traces_dir"`

	// TestsDir holds exported test snapshots. Default: <traces_dir>/tests
	TestsDir string `yaml:"tests_dir"`

	// SQLitePath is the indexed backend's database file.
	// Default: .traces.db
	SQLitePath string `yaml:"sqlite_path"`

	// Fallback is a comma-separated chain of stores tried in order
	// when the primary fails, e.g. "file,memory". Default: none
	Fallback string `yaml:"fallback"`

	// RetryAttempts is how many times a failed save is retried before
	// falling back. Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the base backoff between retries. Default: 100ms
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// FallbackChain returns the parsed fallback backend names in order.
func (s *StorageConfig) FallbackChain() []string {
	if strings.TrimSpace(s.Fallback) == "" {
		return nil
	}
	parts := strings.Split(s.Fallback, ",")
	chain := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chain = append(chain, strings.ToLower(p))
		}
	}
	return chain
}

// RetentionConfig schedules trace pruning.
type RetentionConfig struct {
	// Enabled turns the pruner on. Default: true
	Enabled bool `yaml:"enabled"`

	// MaxAgeDays deletes traces older than this many days. Zero keeps
	// traces forever. max_trace_retention at the document root seeds
	// this field when set. Default: 0
	MaxAgeDays int `yaml:"max_age_days"`

	// MaxCount caps the number of stored traces, deleting oldest
	// first. Zero means unlimited. Default: 0
	MaxCount int `yaml:"max_count"`

	// CleanupInterval is the time between pruning sweeps. Default: 6h
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// ArchiveBeforeDelete writes pruned traces to ArchivePath before
	// deleting them. Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the archive directory. Default: data/archives
	ArchivePath string `yaml:"archive_path"`
}

// RateLimitConfig tunes per-client admission control.
type RateLimitConfig struct {
	// Enabled turns admission control on. Default: true
	Enabled bool `yaml:"enabled"`

	// DefaultCeiling is the requests-per-minute allowance for a
	// client and provider pair with no per-provider override.
	// Default: 100
	DefaultCeiling int `yaml:"default_ceiling"`

	// Ceilings overrides the allowance per provider type. Unset types
	// use the built-in table (openai 3500, anthropic 1000, gemini 60,
	// ollama 1000).
	Ceilings map[string]int `yaml:"ceilings"`
}

// TelemetryConfig configures logging, metrics, and tracing.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	// The LOG_LEVEL environment variable overrides it. Default: info
	Level string `yaml:"level"`

	// Format selects the handler: json or text. Default: json
	Format string `yaml:"format"`

	// AddSource includes file:line in records. Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the metrics endpoints.
type MetricsConfig struct {
	// Enabled serves /metrics and /metrics/prometheus. Default: true
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled exports spans over OTLP gRPC. Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the collector address. Default: localhost:4317
	Endpoint string `yaml:"endpoint"`

	// Insecure disables transport security on the exporter connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Sampler selects the sampling strategy: always, never, or ratio.
	// Default: always
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept when Sampler is
	// ratio. Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultConfig returns a configuration with every scalar default
// filled in. Load unmarshals the YAML document over this base, so
// options absent from the file keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		UpstreamURL:  "https://api.openai.com",
		APIKeyEnvVar: "OPENAI_API_KEY",
		ProxyPort:    8787,
		SaveTraces:   true,
		VCR: VCRConfig{
			Mode:         "off",
			MatchMode:    "fuzzy",
			CassettesDir: ".cassettes",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			UpstreamTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:       BackendFile,
			TracesDir:     ".traces",
			SQLitePath:    ".traces.db",
			RetryAttempts: 3,
			RetryDelay:    100 * time.Millisecond,
		},
		Retention: RetentionConfig{
			Enabled:         true,
			CleanupInterval: 6 * time.Hour,
			ArchivePath:     "data/archives",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			DefaultCeiling: 100,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				Sampler:     "always",
				SampleRatio: 1.0,
			},
		},
	}
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.ProxyPort)
}

// DefaultProvider returns the provider marked default, or nil when
// none is marked.
func (c *Config) DefaultProvider() *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Default {
			return &c.Providers[i]
		}
	}
	return nil
}
