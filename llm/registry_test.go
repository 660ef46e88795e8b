package llm

import (
	"testing"
)

type namedProvider struct {
	Unsupported
	name string
}

func (p namedProvider) Name() string { return p.name }

func newNamedProvider(name string) namedProvider {
	return namedProvider{Unsupported: Unsupported{Provider: name}, name: name}
}

func TestRegistry_IsProviderEnabled(t *testing.T) {
	registry := NewRegistry([]string{ProviderAnthropic, ProviderOllama})
	registry.Register(newNamedProvider(ProviderAnthropic), "claude-haiku-4-5")
	registry.Register(newNamedProvider(ProviderOpenAI), "gpt-4o")

	if !registry.IsProviderEnabled(ProviderAnthropic) {
		t.Error("anthropic should be enabled")
	}
	if registry.IsProviderEnabled(ProviderOllama) {
		t.Error("ollama is enabled but not registered")
	}
	if registry.IsProviderEnabled(ProviderOpenAI) {
		t.Error("openai should not be enabled")
	}
	if _, err := registry.Provider(ProviderOpenAI); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for disabled provider, got %v", err)
	}
}

func TestRegistry_EmptyEnabledListEnablesAll(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newNamedProvider(ProviderGroq), "llama-3.3-70b-versatile")
	registry.Register(newNamedProvider(ProviderCohere), "command-r")

	names := registry.Names()
	if len(names) != 2 || names[0] != ProviderCohere || names[1] != ProviderGroq {
		t.Errorf("Expected sorted [cohere groq], got %v", names)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry([]string{ProviderAnthropic, ProviderOllama})
	registry.Register(newNamedProvider(ProviderOllama), "llama3.2")

	tests := []struct {
		name         string
		preferences  []Preference
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name: "falls back past unregistered provider",
			preferences: []Preference{
				{Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514"},
				{Provider: ProviderOllama, Model: "mistral:7b"},
			},
			wantProvider: ProviderOllama,
			wantModel:    "mistral:7b",
		},
		{
			name:         "uses default model",
			preferences:  []Preference{{Provider: ProviderOllama}},
			wantProvider: ProviderOllama,
			wantModel:    "llama3.2",
		},
		{
			name:        "nothing available",
			preferences: []Preference{{Provider: ProviderOpenAI, Model: "gpt-4o"}},
			wantErr:     true,
		},
		{
			name:    "no preferences",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model, err := registry.Resolve(tt.preferences)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to resolve: %v", err)
			}
			if p.Name() != tt.wantProvider {
				t.Errorf("Expected provider %q, got %q", tt.wantProvider, p.Name())
			}
			if model != tt.wantModel {
				t.Errorf("Expected model %q, got %q", tt.wantModel, model)
			}
		})
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		id           string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{id: "openai/gpt-4o", wantProvider: "openai", wantModel: "gpt-4o"},
		{id: "ollama/library/llama3", wantProvider: "ollama", wantModel: "library/llama3"},
		{id: "gpt-4o", wantErr: true},
		{id: "openai/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			pref, err := ParseModel(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if pref.Provider != tt.wantProvider || pref.Model != tt.wantModel {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantProvider, tt.wantModel, pref.Provider, pref.Model)
			}
		})
	}
}
