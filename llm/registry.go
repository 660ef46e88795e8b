package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderCohere    = "cohere"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderMistral   = "mistral"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderVoyageAI  = "voyageai"
	ProviderXAI       = "xai"
)

// KnownProviders lists every backend this module ships an adapter for.
var KnownProviders = []string{
	ProviderAnthropic,
	ProviderCohere,
	ProviderDeepSeek,
	ProviderGemini,
	ProviderGroq,
	ProviderMistral,
	ProviderOllama,
	ProviderOpenAI,
	ProviderVoyageAI,
	ProviderXAI,
}

// Preference represents a single provider/model preference.
type Preference struct {
	Provider string
	Model    string
}

// Registry holds constructed providers by name and resolves model
// preferences against the enabled set.
type Registry struct {
	mu               sync.RWMutex
	providers        map[string]Provider
	defaultModels    map[string]string
	enabledProviders map[string]bool
}

// NewRegistry creates a new Registry. An empty enabled list enables every
// registered provider.
func NewRegistry(enabledProviders []string) *Registry {
	enabledMap := make(map[string]bool)
	for _, p := range enabledProviders {
		enabledMap[p] = true
	}
	return &Registry{
		providers:        make(map[string]Provider),
		defaultModels:    make(map[string]string),
		enabledProviders: enabledMap,
	}
}

// Register adds a provider with its default model. Registering a name twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider, defaultModel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.defaultModels[p.Name()] = defaultModel
}

// Provider returns the provider registered under name.
func (r *Registry) Provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, NewConfigurationError("provider %s is not configured", name)
	}
	if !r.isEnabledUnlocked(name) {
		return nil, NewConfigurationError("provider %s is not enabled", name)
	}
	return p, nil
}

// DefaultModel returns the configured default model of a provider.
func (r *Registry) DefaultModel(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModels[name]
}

// IsProviderEnabled checks if a provider is registered and enabled.
func (r *Registry) IsProviderEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok && r.isEnabledUnlocked(name)
}

func (r *Registry) isEnabledUnlocked(name string) bool {
	if len(r.enabledProviders) == 0 {
		return true
	}
	return r.enabledProviders[name]
}

// Names returns the enabled provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.providers {
		if r.isEnabledUnlocked(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve returns the first available provider from the preference list.
// A preference without a model uses the provider's default model.
func (r *Registry) Resolve(preferences []Preference) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(preferences) == 0 {
		return nil, "", NewConfigurationError("no provider preferences given")
	}

	var attempted []string
	for _, pref := range preferences {
		attempted = append(attempted, pref.Provider)
		p, ok := r.providers[pref.Provider]
		if !ok || !r.isEnabledUnlocked(pref.Provider) {
			continue
		}
		model := pref.Model
		if model == "" {
			model = r.defaultModels[pref.Provider]
		}
		if model == "" {
			continue
		}
		return p, model, nil
	}

	return nil, "", NewConfigurationError("no available provider from preferences %v", attempted)
}

// ParseModel splits a "provider/model" identifier. Model names may contain
// further slashes, e.g. "ollama/library/llama3".
func ParseModel(id string) (Preference, error) {
	provider, model, ok := strings.Cut(id, "/")
	if !ok || provider == "" || model == "" {
		return Preference{}, fmt.Errorf("model %q must have the form provider/model", id)
	}
	return Preference{Provider: provider, Model: model}, nil
}
