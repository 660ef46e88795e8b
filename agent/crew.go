package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Profile is a named preset: a system prompt, a tool selection and an
// ordered list of provider/model preferences.
type Profile struct {
	Name         string
	SystemPrompt string
	// Tools are patterns resolved with tools.Registry.Match.
	Tools       []string
	LLM         []llm.Preference
	MaxSteps    int
	MaxTokens   int64
	Temperature *float64
}

// Crew ties providers, tools and profiles together so callers can build
// requests by profile name.
type Crew struct {
	Providers *llm.Registry
	Tools     *tools.Registry
	Runner    *Runner

	mu       sync.RWMutex
	profiles map[string]*Profile
	logger   zerolog.Logger
}

// NewCrew creates a Crew.
func NewCrew(logger zerolog.Logger, providers *llm.Registry, toolRegistry *tools.Registry, runner *Runner) *Crew {
	return &Crew{
		Providers: providers,
		Tools:     toolRegistry,
		Runner:    runner,
		profiles:  make(map[string]*Profile),
		logger:    logger.With().Str("component", "crew").Logger(),
	}
}

// AddProfile registers or replaces a profile.
func (c *Crew) AddProfile(p *Profile) error {
	if p == nil || p.Name == "" {
		return llm.NewConfigurationError("profile name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.Name] = p
	c.logger.Debug().Str("profile", p.Name).Int("toolPatterns", len(p.Tools)).Msg("Profile loaded")
	return nil
}

// Profile returns a profile by name.
func (c *Crew) Profile(name string) (*Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[name]
	return p, ok
}

// ProfileNames returns the registered profile names, sorted.
func (c *Crew) ProfileNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := lo.Keys(c.profiles)
	sort.Strings(names)
	return names
}

// ProfileOptions resolves a profile into request options. Options passed to
// NewRequest after these override them.
func (c *Crew) ProfileOptions(name string) ([]Option, error) {
	p, ok := c.Profile(name)
	if !ok {
		return nil, llm.NewConfigurationError("profile %s not found", name)
	}

	provider, model, err := c.Providers.Resolve(p.LLM)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}

	opts := []Option{WithProvider(provider), WithModel(model)}
	if p.SystemPrompt != "" {
		opts = append(opts, WithSystemPrompt(p.SystemPrompt))
	}
	if len(p.Tools) > 0 {
		opts = append(opts, WithTools(c.Tools.Match(p.Tools)...))
	}
	if p.MaxSteps > 0 {
		opts = append(opts, WithMaxSteps(p.MaxSteps))
	}
	if p.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(p.MaxTokens))
	}
	if p.Temperature != nil {
		opts = append(opts, WithTemperature(*p.Temperature))
	}
	return opts, nil
}

// ModelOptions resolves a "provider/model" identifier into request options.
// A bare provider name uses the provider's default model.
func (c *Crew) ModelOptions(id string) ([]Option, error) {
	pref := llm.Preference{Provider: id}
	if strings.Contains(id, "/") {
		var err error
		if pref, err = llm.ParseModel(id); err != nil {
			return nil, llm.NewConfigurationError("%v", err)
		}
	}
	provider, model, err := c.Providers.Resolve([]llm.Preference{pref})
	if err != nil {
		return nil, err
	}
	return []Option{WithProvider(provider), WithModel(model)}, nil
}
