package config

import (
	"net/http"
	"sort"
	"time"

	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/llm/anthropic"
	"github.com/echolabsdev/prism-sub001/llm/cohere"
	"github.com/echolabsdev/prism-sub001/llm/gemini"
	"github.com/echolabsdev/prism-sub001/llm/ollama"
	"github.com/echolabsdev/prism-sub001/llm/openai"
	"github.com/echolabsdev/prism-sub001/llm/voyageai"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// BuildProviders constructs every configured provider, wrapped with logging
// and rate-limit middleware, and registers it with its default model. A
// provider counts as configured when it has an API key; ollama needs only
// an entry or a mention in llm_providers.
func BuildProviders(cfg *Config, logger zerolog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry(cfg.LLMProviders)
	maxWait := time.Duration(cfg.RateLimitWait) * time.Second

	names := lo.Keys(cfg.Providers)
	if lo.Contains(cfg.LLMProviders, llm.ProviderOllama) && !lo.Contains(names, llm.ProviderOllama) {
		names = append(names, llm.ProviderOllama)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc == nil {
			pc = &ProviderConfig{}
		}
		if name != llm.ProviderOllama && pc.APIKey == "" {
			logger.Debug().Str("provider", name).Msg("Skipping provider without API key")
			continue
		}

		provider, defaultModel, err := newProvider(name, pc, logger)
		if err != nil {
			return nil, err
		}
		if pc.Model != "" {
			defaultModel = pc.Model
		}
		wrapped := llm.WrapWithMiddleware(provider,
			agent.NewLoggingMiddleware(logger),
			agent.NewRateLimitMiddleware(logger, maxWait),
		)
		registry.Register(wrapped, defaultModel)
		logger.Info().Str("provider", name).Str("defaultModel", defaultModel).Msg("Provider configured")
	}
	return registry, nil
}

func newProvider(name string, pc *ProviderConfig, logger zerolog.Logger) (llm.Provider, string, error) {
	var httpClient *http.Client
	if pc.Timeout > 0 {
		httpClient = transport.NewHTTPClient(time.Duration(pc.Timeout) * time.Second)
	}

	if profile, ok := openai.Profiles[name]; ok {
		p, err := openai.New(logger, profile, openai.Config{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			Organization: pc.Organization,
			HTTPClient:   httpClient,
		})
		return p, profile.DefaultModel, err
	}

	switch name {
	case llm.ProviderAnthropic:
		p, err := anthropic.New(logger, anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, HTTPClient: httpClient})
		return p, anthropic.DefaultModel, err
	case llm.ProviderOllama:
		p, err := ollama.New(logger, ollama.Config{Host: pc.BaseURL, HTTPClient: httpClient})
		return p, ollama.DefaultModel, err
	case llm.ProviderGemini:
		p, err := gemini.New(logger, gemini.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, HTTPClient: httpClient})
		return p, gemini.DefaultModel, err
	case llm.ProviderCohere:
		p, err := cohere.New(logger, cohere.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, HTTPClient: httpClient})
		return p, cohere.DefaultModel, err
	case llm.ProviderVoyageAI:
		p, err := voyageai.New(logger, voyageai.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, HTTPClient: httpClient})
		return p, voyageai.DefaultModel, err
	}
	return nil, "", llm.NewConfigurationError("unknown provider %s", name)
}

// AgentProfiles converts the configured profiles, sorted by name.
func (c *Config) AgentProfiles() []*agent.Profile {
	names := lo.Keys(c.Profiles)
	sort.Strings(names)
	return lo.FilterMap(names, func(name string, _ int) (*agent.Profile, bool) {
		p := c.Profiles[name]
		if p == nil {
			return nil, false
		}
		profileName := p.Name
		if profileName == "" {
			profileName = name
		}
		return &agent.Profile{
			Name:         profileName,
			SystemPrompt: p.SystemPrompt,
			Tools:        p.Tools,
			LLM: lo.Map(p.LLM, func(pref LLMPreference, _ int) llm.Preference {
				return llm.Preference{Provider: pref.Provider, Model: pref.Model}
			}),
			MaxSteps:    p.MaxSteps,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
		}, true
	})
}

// ModelIDs lists "provider/model" identifiers for every enabled provider's
// default model and every model named by a profile.
func (c *Config) ModelIDs(registry *llm.Registry) []string {
	var ids []string
	for _, name := range registry.Names() {
		if model := registry.DefaultModel(name); model != "" {
			ids = append(ids, name+"/"+model)
		}
	}
	for _, p := range c.Profiles {
		if p == nil {
			continue
		}
		for _, pref := range p.LLM {
			if pref.Model != "" && registry.IsProviderEnabled(pref.Provider) {
				ids = append(ids, pref.Provider+"/"+pref.Model)
			}
		}
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}
