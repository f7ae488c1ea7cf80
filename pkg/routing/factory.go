package routing

import (
	"fmt"
	"log/slog"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/providers/anthropic"
	"traceforge-hq/traceforge/pkg/providers/gemini"
	"traceforge-hq/traceforge/pkg/providers/ollama"
	"traceforge-hq/traceforge/pkg/providers/openai"
)

// NewAdapter creates a provider adapter from its configuration.
//
// Supported provider types:
//   - "openai": OpenAI API, and any OpenAI-compatible endpoint via base_url
//   - "anthropic": Anthropic Messages API
//   - "gemini": Gemini generateContent API
//   - "ollama": local Ollama daemon
//
// When config.Type is empty it is inferred from the provider name.
func NewAdapter(config providers.ProviderConfig) (providers.Adapter, error) {
	if config.Type == "" {
		config.Type = inferType(config.Name)
	}

	slog.Debug("creating provider adapter",
		"name", config.Name,
		"type", config.Type,
		"base_url", config.BaseURL)

	switch config.Type {
	case providers.TypeOpenAI:
		return openai.New(config), nil
	case providers.TypeAnthropic:
		return anthropic.New(config), nil
	case providers.TypeGemini:
		return gemini.New(config), nil
	case providers.TypeOllama:
		return ollama.New(config), nil
	default:
		return nil, &UnknownTypeError{Name: config.Name, Type: config.Type}
	}
}

// inferType infers the provider type from the provider name, so a
// config entry named after its backend needs no explicit type.
func inferType(name string) string {
	switch name {
	case providers.TypeOpenAI, providers.TypeAnthropic,
		providers.TypeGemini, providers.TypeOllama:
		return name
	default:
		return providers.TypeOpenAI
	}
}

// builtinConfig returns the default configuration for a built-in
// adapter of the given type.
func builtinConfig(providerType string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name: providerType,
		Type: providerType,
	}
}

// UnknownTypeError is returned when a configured provider names a type
// the factory cannot build.
type UnknownTypeError struct {
	// Name is the configured provider name.
	Name string

	// Type is the unrecognized provider type.
	Type string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("provider %q: unsupported type %q (supported: openai, anthropic, gemini, ollama)", e.Name, e.Type)
}
