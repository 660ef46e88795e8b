package config

import (
	"errors"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service name under which API keys are
// looked up, with the provider name as the user.
const KeyringService = "prism"

// keyringGet is swapped in tests.
var keyringGet = keyring.Get

// apiKeyEnv returns the API key environment variable of a provider, e.g.
// OPENAI_API_KEY.
func apiKeyEnv(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// baseURLEnv returns the endpoint override variable of a provider. Ollama
// follows its own OLLAMA_HOST convention.
func baseURLEnv(provider string) string {
	if provider == llm.ProviderOllama {
		return "OLLAMA_HOST"
	}
	return strings.ToUpper(provider) + "_BASE_URL"
}

// applyEnv overlays environment variables onto the provider settings. Only
// providers with at least one variable set gain an entry.
func applyEnv(cfg *Config, getenv func(string) string) {
	for _, name := range llm.KnownProviders {
		apiKey := getenv(apiKeyEnv(name))
		baseURL := getenv(baseURLEnv(name))
		if apiKey == "" && baseURL == "" {
			continue
		}
		p := cfg.Provider(name)
		if apiKey != "" {
			p.APIKey = apiKey
		}
		if baseURL != "" {
			p.BaseURL = baseURL
		}
	}
	if org := getenv("OPENAI_ORG_ID"); org != "" {
		cfg.Provider(llm.ProviderOpenAI).Organization = org
	}
	if model := getenv("OLLAMA_MODEL"); model != "" {
		cfg.Provider(llm.ProviderOllama).Model = model
	}
}

// applyKeyring fills API keys still missing from the system keyring. A
// missing entry is not an error, nor is a keyring that cannot be reached.
func applyKeyring(cfg *Config) {
	for _, name := range llm.KnownProviders {
		if name == llm.ProviderOllama {
			continue
		}
		if p, ok := cfg.Providers[name]; ok && p != nil && p.APIKey != "" {
			continue
		}
		secret, err := keyringGet(KeyringService, name)
		if err != nil {
			if !errors.Is(err, keyring.ErrNotFound) {
				return
			}
			continue
		}
		if secret != "" {
			cfg.Provider(name).APIKey = secret
		}
	}
}
