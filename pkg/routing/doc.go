// Package routing selects the provider adapter for each request.
//
// Routing is model-name driven. Each provider type owns a set of model
// prefixes (claude for anthropic, gemini for gemini, the local model
// families for ollama, the gpt family for openai) and configured
// providers are tried in order against those sets. When nothing
// matches, the configured default provider wins; failing that, a
// built-in fallback table resolves the model to a type, served by a
// built-in adapter when the configuration has none of that type. A
// gateway with no providers configured at all still routes every model.
//
// API keys are resolved from the environment on every selection so key
// rotation never requires a restart.
package routing
