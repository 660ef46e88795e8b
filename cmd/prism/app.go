package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/echolabsdev/prism-sub001/config"
	"github.com/echolabsdev/prism-sub001/conversations"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/samber/lo"
)

// app is everything a command needs, built from the config file.
type app struct {
	cfg       *config.Config
	providers *llm.Registry
	tools     *config.ToolSet
	store     *conversations.Store
	crew      *agent.Crew
}

// newApp loads configuration and builds providers, tools and profiles.
// When persist reports true for the loaded config, every run is saved to
// the history database.
func newApp(ctx context.Context, persist func(*config.Config) bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug().Str("path", configPath).Msg("Loaded configuration")

	providers, err := config.BuildProviders(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}
	logger.Info().Strs("providers", providers.Names()).Msg("Providers ready")

	toolSet, err := config.BuildTools(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	a := &app{cfg: cfg, providers: providers, tools: toolSet}

	var runnerOpts []agent.RunnerOption
	if persist != nil && persist(cfg) {
		a.store, err = conversations.Open(cfg.Database, logger)
		if err != nil {
			_ = toolSet.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		runnerOpts = append(runnerOpts, agent.WithRunPersister(a.store))
	}

	a.crew = agent.NewCrew(logger, providers, toolSet.Registry, agent.NewRunner(logger, runnerOpts...))
	for _, p := range cfg.AgentProfiles() {
		if err := a.crew.AddProfile(p); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// requestOptions resolves --profile or --model into request options.
func (a *app) requestOptions(profile, model string) ([]agent.Option, error) {
	switch {
	case profile != "" && model != "":
		return nil, errors.New("--profile and --model are mutually exclusive")
	case profile != "":
		return a.crew.ProfileOptions(profile)
	case model != "":
		return a.crew.ModelOptions(model)
	}
	names := a.providers.Names()
	if len(names) == 0 {
		return nil, errors.New("no provider is configured")
	}
	return a.crew.ModelOptions(names[0])
}

// extraTools matches patterns, leaving out tools the profile already offers.
func (a *app) extraTools(profile string, patterns []string) []tools.Tool {
	matched := a.crew.Tools.Match(patterns)
	p, ok := a.crew.Profile(profile)
	if !ok || len(p.Tools) == 0 {
		return matched
	}
	offered := lo.SliceToMap(a.crew.Tools.Match(p.Tools), func(t tools.Tool) (string, bool) { return t.Name, true })
	return lo.Reject(matched, func(t tools.Tool, _ int) bool { return offered[t.Name] })
}

func (a *app) Close() error {
	var errs []error
	if a.tools != nil {
		errs = append(errs, a.tools.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
