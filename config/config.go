// Package config loads prism's YAML configuration and builds providers,
// tools and profiles from it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ProviderConfig holds credentials and endpoint overrides for one backend.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom endpoint; for ollama the host
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // OpenAI organization ID
	Timeout      int    `yaml:"timeout,omitempty"`      // Request timeout in seconds
}

// LLMPreference represents a single provider/model preference for a profile.
// Profiles can specify multiple preferences in order, and the first
// available provider is used.
type LLMPreference struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model,omitempty" json:"model,omitempty"` // Optional: uses provider default if omitted
}

// ProfileConfig represents the configuration for a single profile.
type ProfileConfig struct {
	Name         string          `yaml:"name" json:"name"`
	SystemPrompt string          `yaml:"system_prompt" json:"system_prompt"`
	Tools        []string        `yaml:"tools" json:"tools"`
	LLM          []LLMPreference `yaml:"llm,omitempty" json:"llm,omitempty"`
	MaxSteps     int             `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	MaxTokens    int64           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature  *float64        `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// MCPServerConfig represents configuration for an MCP server.
type MCPServerConfig struct {
	Command string   `yaml:"command,omitempty"` // For STDIO transport
	URL     string   `yaml:"url,omitempty"`     // For HTTP transport
	Args    []string `yaml:"args,omitempty"`    // Additional args for STDIO command
	Env     []string `yaml:"env,omitempty"`     // Environment variables for STDIO
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Addr    string `yaml:"addr,omitempty"`
	Persist bool   `yaml:"persist,omitempty"` // Store every served run in the history database
}

// Config is the full prism configuration.
type Config struct {
	// LLMProviders restricts which configured providers may be used. Empty
	// enables all of them.
	LLMProviders []string                    `yaml:"llm_providers,omitempty"`
	Providers    map[string]*ProviderConfig  `yaml:"providers,omitempty"`
	Profiles     map[string]*ProfileConfig   `yaml:"profiles,omitempty"`
	MCPServers   map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`

	Server         ServerSettings `yaml:"server,omitempty"`
	Database       string         `yaml:"database,omitempty"`  // SQLite path for run history
	Workspace      string         `yaml:"workspace,omitempty"` // Root of the filesystem tools; empty disables them
	ParallelTools  bool           `yaml:"parallel_tools,omitempty"`
	RateLimitWait  int            `yaml:"rate_limit_wait,omitempty"` // Maximum seconds to wait out a provider rate limit
	DisableKeyring bool           `yaml:"disable_keyring,omitempty"`
}

// DefaultPath returns the default config file path.
// Can be overridden via PRISM_CONFIG_PATH environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("PRISM_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.prism/config.yaml"
	}
	return filepath.Join(homeDir, ".prism", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func defaults() Config {
	return Config{
		Providers:     make(map[string]*ProviderConfig),
		Profiles:      make(map[string]*ProfileConfig),
		MCPServers:    make(map[string]*MCPServerConfig),
		Server:        ServerSettings{Addr: "localhost:8080"},
		Database:      "~/.prism/history.db",
		RateLimitWait: 30,
	}
}

// Load reads the config file at path, merges it onto the defaults and
// applies environment and keyring overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		fileCfg, err := Parse(data)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, *fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*ProfileConfig)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]*MCPServerConfig)
	}
	cfg.Database = expandPath(cfg.Database)
	cfg.Workspace = expandPath(cfg.Workspace)

	applyEnv(&cfg, os.Getenv)
	if !cfg.DisableKeyring {
		applyKeyring(&cfg)
	}

	for name, p := range cfg.Profiles {
		if p.Name == "" {
			p.Name = name
		}
	}
	return &cfg, nil
}

// Parse decodes a YAML document without applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Files may carry API keys.
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Provider returns the settings of a provider, creating an empty entry if
// none exists.
func (c *Config) Provider(name string) *ProviderConfig {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	p, ok := c.Providers[name]
	if !ok || p == nil {
		p = &ProviderConfig{}
		c.Providers[name] = p
	}
	return p
}
