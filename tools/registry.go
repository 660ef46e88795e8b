package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Registry is a named catalogue of tools. Callers pick a subset per request.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	sources map[string]string // tool name -> MCP server name, empty for native tools
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		tools:   make(map[string]Tool),
		sources: make(map[string]string),
		logger:  logger,
	}
}

// Register adds a native tool. Names must be unique within a registry.
func (r *Registry) Register(t Tool) error {
	return r.RegisterFrom("", t)
}

// RegisterFrom adds a tool provided by the named MCP server.
func (r *Registry) RegisterFrom(source string, t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.logger.Debug().Str("name", t.Name).Str("source", source).Msg("Registering tool")
	r.tools[t.Name] = t
	r.sources[t.Name] = source
	return nil
}

// RegisterAll adds every tool, stopping at the first error.
func (r *Registry) RegisterAll(tools []Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the named tools in the given order, or every tool sorted by
// name when no names are given.
func (r *Registry) Tools(names ...string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		all := make([]Tool, 0, len(r.tools))
		for _, t := range r.tools {
			all = append(all, t)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		return all, nil
	}

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool %s not found", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Match expands tool patterns into tools, in pattern order without duplicates.
//
// A pattern is a regular expression matched against tool names, optionally
// prefixed with "server:" to only consider tools from that MCP server.
// Patterns that match nothing are logged and skipped.
func (r *Registry) Match(patterns []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Tool
	for _, pattern := range patterns {
		if pattern == "" {
			r.logger.Warn().Msg("Empty tool pattern, skipping")
			continue
		}
		matched := r.expandPattern(pattern)
		if len(matched) == 0 {
			r.logger.Warn().Str("pattern", pattern).Msg("Tool pattern matched no tools")
			continue
		}
		for _, name := range matched {
			if !seen[name] {
				seen[name] = true
				out = append(out, r.tools[name])
			}
		}
	}
	return out
}

func (r *Registry) expandPattern(pattern string) []string {
	var serverFilter string
	toolPattern := pattern
	if server, rest, found := strings.Cut(pattern, ":"); found {
		serverFilter = server
		toolPattern = rest
	}

	re, err := regexp.Compile("^(?:" + toolPattern + ")$")
	if err != nil {
		r.logger.Warn().Str("pattern", pattern).Err(err).Msg("Invalid regexp pattern")
		return nil
	}

	matched := lo.Filter(lo.Keys(r.tools), func(name string, _ int) bool {
		if serverFilter != "" && r.sources[name] != serverFilter {
			return false
		}
		return re.MatchString(name)
	})
	sort.Strings(matched)
	return matched
}
