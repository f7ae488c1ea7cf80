package routing

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"traceforge-hq/traceforge/pkg/providers"
)

// Rule is one configured provider entry. Rules keep configuration
// order; the first match wins.
type Rule struct {
	// Provider is the adapter configuration.
	Provider providers.ProviderConfig

	// Enabled gates the rule. Disabled rules are never selected.
	Enabled bool

	// Default marks this provider as the choice when no prefix matches.
	Default bool
}

// Router selects a provider adapter for each request by model name.
//
// Selection order:
//  1. the first enabled configured provider whose type's prefix set
//     matches the model,
//  2. the first enabled configured provider marked default,
//  3. the built-in fallback table (claude to anthropic, gemini to
//     gemini, known local families to ollama, otherwise openai),
//     preferring a configured provider of the fallback type over the
//     built-in adapter.
//
// API keys are read from the environment at selection time, never
// cached, so key rotation takes effect on the next request.
//
// Router is safe for concurrent use. Reload swaps the whole provider
// set; in-flight requests keep the adapters they already hold.
type Router struct {
	mu      sync.RWMutex
	rules   []ruleEntry
	builtin map[string]providers.Adapter
	logger  *slog.Logger
}

type ruleEntry struct {
	name         string
	providerType string
	keyEnvVar    string
	isDefault    bool
	adapter      providers.Adapter
}

// New creates a router from the configured provider rules. An empty
// rule list is valid: every model is served by the built-in adapters.
func New(rules []Rule) (*Router, error) {
	router := &Router{
		logger: slog.Default().With("component", "routing"),
	}
	entries, builtin, err := build(rules)
	if err != nil {
		return nil, err
	}
	router.rules = entries
	router.builtin = builtin

	router.logger.Info("router initialized",
		"configured_providers", len(entries),
		"builtin_adapters", len(builtin))
	return router, nil
}

// build constructs adapters for the enabled rules plus built-in
// adapters for every provider type no rule covers.
func build(rules []Rule) ([]ruleEntry, map[string]providers.Adapter, error) {
	var entries []ruleEntry
	covered := make(map[string]bool)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		adapter, err := NewAdapter(rule.Provider)
		if err != nil {
			closeEntries(entries, nil)
			return nil, nil, err
		}
		entries = append(entries, ruleEntry{
			name:         rule.Provider.Name,
			providerType: adapter.Type(),
			keyEnvVar:    rule.Provider.APIKeyEnvVar,
			isDefault:    rule.Default,
			adapter:      adapter,
		})
		covered[adapter.Type()] = true
	}

	builtin := make(map[string]providers.Adapter)
	for _, providerType := range []string{
		providers.TypeOpenAI,
		providers.TypeAnthropic,
		providers.TypeGemini,
		providers.TypeOllama,
	} {
		if covered[providerType] {
			continue
		}
		adapter, err := NewAdapter(builtinConfig(providerType))
		if err != nil {
			closeEntries(entries, builtin)
			return nil, nil, err
		}
		builtin[providerType] = adapter
	}

	return entries, builtin, nil
}

// Select picks the provider for the given model.
func (r *Router) Select(model string) (*Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.rules {
		if MatchesType(entry.providerType, model) {
			return r.selection(entry, "model prefix", model), nil
		}
	}

	for _, entry := range r.rules {
		if entry.isDefault {
			return r.selection(entry, "configured default", model), nil
		}
	}

	fallbackType := TypeForModel(model)
	for _, entry := range r.rules {
		if entry.providerType == fallbackType {
			return r.selection(entry, "built-in fallback", model), nil
		}
	}

	adapter, ok := r.builtin[fallbackType]
	if !ok {
		return nil, &NoProviderError{Model: model, Type: fallbackType}
	}
	selection := &Selection{
		Adapter: adapter,
		Name:    fallbackType,
		Type:    fallbackType,
		APIKey:  resolveAPIKey("", fallbackType),
		Reason:  "built-in fallback",
	}
	r.logSelection(selection, model)
	return selection, nil
}

func (r *Router) selection(entry ruleEntry, reason, model string) *Selection {
	selection := &Selection{
		Adapter: entry.adapter,
		Name:    entry.name,
		Type:    entry.providerType,
		APIKey:  resolveAPIKey(entry.keyEnvVar, entry.providerType),
		Reason:  reason,
	}
	r.logSelection(selection, model)
	return selection
}

func (r *Router) logSelection(selection *Selection, model string) {
	r.logger.Debug("provider selected",
		"model", model,
		"provider", selection.Name,
		"type", selection.Type,
		"reason", selection.Reason)
}

// resolveAPIKey reads the provider credential from the environment. The
// configured env var wins; otherwise the type's conventional variable
// is used. The value is never logged.
func resolveAPIKey(envVar, providerType string) string {
	if envVar == "" {
		envVar = defaultKeyEnvVars[providerType]
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// Reload replaces the provider set from a new rule list. The old
// adapters are closed after the swap; requests already holding one keep
// using it until they finish.
func (r *Router) Reload(rules []Rule) error {
	entries, builtin, err := build(rules)
	if err != nil {
		return fmt.Errorf("reload providers: %w", err)
	}

	r.mu.Lock()
	oldEntries, oldBuiltin := r.rules, r.builtin
	r.rules = entries
	r.builtin = builtin
	r.mu.Unlock()

	closeEntries(oldEntries, oldBuiltin)
	r.logger.Info("router reloaded",
		"configured_providers", len(entries),
		"builtin_adapters", len(builtin))
	return nil
}

// Adapters returns every live adapter, configured and built-in. Used by
// the gateway for shutdown.
func (r *Router) Adapters() []providers.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]providers.Adapter, 0, len(r.rules)+len(r.builtin))
	for _, entry := range r.rules {
		adapters = append(adapters, entry.adapter)
	}
	for _, adapter := range r.builtin {
		adapters = append(adapters, adapter)
	}
	return adapters
}

// Health reports upstream health for every adapter that tracks it,
// keyed by provider name (configured name, or type for built-ins).
func (r *Router) Health() map[string]providers.HealthSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make(map[string]providers.HealthSnapshot, len(r.rules)+len(r.builtin))
	for _, entry := range r.rules {
		reporter, ok := entry.adapter.(providers.HealthReporter)
		if !ok {
			continue
		}
		name := entry.name
		if name == "" {
			name = entry.providerType
		}
		health[name] = reporter.Healthy()
	}
	for providerType, adapter := range r.builtin {
		if reporter, ok := adapter.(providers.HealthReporter); ok {
			health[providerType] = reporter.Healthy()
		}
	}
	return health
}

// Close closes every adapter.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closeEntries(r.rules, r.builtin)
	r.rules = nil
	r.builtin = nil
	return nil
}

func closeEntries(entries []ruleEntry, builtin map[string]providers.Adapter) {
	for _, entry := range entries {
		if err := entry.adapter.Close(); err != nil {
			slog.Error("error closing provider adapter", "provider", entry.name, "error", err)
		}
	}
	for providerType, adapter := range builtin {
		if err := adapter.Close(); err != nil {
			slog.Error("error closing provider adapter", "provider", providerType, "error", err)
		}
	}
}
