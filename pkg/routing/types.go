package routing

import (
	"strings"

	"traceforge-hq/traceforge/pkg/providers"
)

// typePrefixes maps each provider type to the model-name prefixes it
// serves. The tables do not overlap across types; matching is
// case-insensitive.
var typePrefixes = map[string][]string{
	providers.TypeOpenAI:    {"gpt", "o1", "o3", "text-embedding", "dall-e", "whisper"},
	providers.TypeAnthropic: {"claude"},
	providers.TypeGemini:    {"gemini"},
	providers.TypeOllama:    {"llama", "mistral", "codellama", "phi", "vicuna"},
}

// defaultKeyEnvVars maps each provider type to the environment variable
// its API key is read from when the configuration names none. Ollama
// needs no key.
var defaultKeyEnvVars = map[string]string{
	providers.TypeOpenAI:    "OPENAI_API_KEY",
	providers.TypeAnthropic: "ANTHROPIC_API_KEY",
	providers.TypeGemini:    "GEMINI_API_KEY",
}

// MatchesType reports whether the model name falls under the given
// provider type's prefix set.
func MatchesType(providerType, model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range typePrefixes[providerType] {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// TypeForModel returns the fallback provider type for a model name:
// claude* goes to anthropic, gemini* to gemini, the known local model
// families to ollama, and everything else to openai.
func TypeForModel(model string) string {
	for _, providerType := range []string{
		providers.TypeAnthropic,
		providers.TypeGemini,
		providers.TypeOllama,
	} {
		if MatchesType(providerType, model) {
			return providerType
		}
	}
	return providers.TypeOpenAI
}

// Selection is the outcome of routing one request.
type Selection struct {
	// Adapter is the provider adapter to dispatch through.
	Adapter providers.Adapter

	// Name is the configured provider name, or the provider type for a
	// built-in adapter.
	Name string

	// Type is the provider type (openai, anthropic, gemini, ollama).
	Type string

	// APIKey is the credential read from the environment at selection
	// time. Empty when the provider needs none.
	APIKey string

	// Reason records why this provider was chosen: "model prefix",
	// "configured default", or "built-in fallback".
	Reason string
}
