package config

import (
	"path/filepath"

	"traceforge-hq/traceforge/pkg/providers"
)

// ApplyDefaults fills in defaults that depend on other fields and
// normalizes the provider list. Load calls it after environment
// overrides; callers assembling a Config by hand should call it before
// Validate.
func ApplyDefaults(cfg *Config) {
	if len(cfg.Providers) == 0 {
		enabled := true
		cfg.Providers = []ProviderConfig{{
			Type:         providers.TypeOpenAI,
			Name:         providers.TypeOpenAI,
			BaseURL:      cfg.UpstreamURL,
			APIKeyEnvVar: cfg.APIKeyEnvVar,
			Enabled:      &enabled,
			Default:      true,
		}}
	}

	for i := range cfg.Providers {
		normalizeProvider(&cfg.Providers[i])
	}

	if cfg.Storage.TestsDir == "" {
		cfg.Storage.TestsDir = filepath.Join(cfg.Storage.TracesDir, "tests")
	}

	if cfg.MaxTraceRetention > 0 && cfg.Retention.MaxAgeDays == 0 {
		cfg.Retention.MaxAgeDays = cfg.MaxTraceRetention
	}
}

// normalizeProvider fills the name/type pair so either may be omitted
// when the other names a built-in adapter.
func normalizeProvider(p *ProviderConfig) {
	if p.Type == "" {
		switch p.Name {
		case providers.TypeOpenAI, providers.TypeAnthropic,
			providers.TypeGemini, providers.TypeOllama:
			p.Type = p.Name
		default:
			p.Type = providers.TypeOpenAI
		}
	}
	if p.Name == "" {
		p.Name = p.Type
	}
}
