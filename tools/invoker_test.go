package tools

import (
	"context"
	"errors"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/rs/zerolog"
)

func calcTool() Tool {
	return New("calc", "Adds two numbers").
		WithNumber("a", "first operand", true).
		WithNumber("b", "second operand", true).
		Using(func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
}

func TestInvoke_ResolvesAndCorrelates(t *testing.T) {
	results, err := Invoke(context.Background(), []Tool{calcTool()}, []llm.ToolCall{
		{ID: "1", Name: "calc", RawArguments: `{"a":2,"b":2}`},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].ToolCallID != "1" || results[0].ToolName != "calc" {
		t.Errorf("Unexpected correlation %+v", results[0])
	}
	if results[0].Result != float64(4) {
		t.Errorf("Expected result 4, got %v", results[0].Result)
	}
	if results[0].Args["a"] != float64(2) {
		t.Errorf("Expected original args to be kept, got %v", results[0].Args)
	}
}

func TestInvoke_ResolutionErrors(t *testing.T) {
	call := llm.ToolCall{ID: "c1", Name: "calc", RawArguments: `{}`}

	tests := []struct {
		name  string
		tools []Tool
		check func(error) bool
	}{
		{name: "no matching tool", tools: []Tool{New("weather", "")}, check: IsToolNotFound},
		{name: "duplicate declarations", tools: []Tool{calcTool(), calcTool()}, check: IsMultipleToolsFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Invoke(context.Background(), tt.tools, []llm.ToolCall{call})
			if !tt.check(err) {
				t.Fatalf("Unexpected error %v", err)
			}
		})
	}

	var notFound *ToolNotFoundError
	_, err := Invoke(context.Background(), nil, []llm.ToolCall{call})
	if !errors.As(err, &notFound) || notFound.Call.ID != "c1" {
		t.Errorf("Expected the original call to be preserved, got %v", err)
	}

	var multiple *MultipleToolsFoundError
	_, err = Invoke(context.Background(), []Tool{calcTool(), calcTool()}, []llm.ToolCall{call})
	if !errors.As(err, &multiple) || multiple.Call.ID != "c1" || multiple.Count != 2 {
		t.Errorf("Expected the original call to be preserved, got %v", err)
	}
}

func TestInvoke_MalformedArgumentsNeverInvoke(t *testing.T) {
	var invoked atomic.Int32
	tool := New("calc", "").Using(func(ctx context.Context, args map[string]any) (any, error) {
		invoked.Add(1)
		return 0, nil
	})

	_, err := Invoke(context.Background(), []Tool{tool}, []llm.ToolCall{
		{ID: "1", Name: "calc", RawArguments: `{"a":1}`},
		{ID: "2", Name: "calc", RawArguments: "{invalid json"},
	})
	if !IsInvalidArguments(err) {
		t.Fatalf("Expected invalid arguments error, got %v", err)
	}
	if invoked.Load() != 0 {
		t.Errorf("Expected no tool invocation, got %d", invoked.Load())
	}
}

func TestInvoke_ExecutionFailure(t *testing.T) {
	cause := errors.New("division by zero")
	failing := New("div", "").Using(func(ctx context.Context, args map[string]any) (any, error) {
		return nil, cause
	})
	panicking := New("boom", "").Using(func(ctx context.Context, args map[string]any) (any, error) {
		panic("unexpected")
	})

	_, err := Invoke(context.Background(), []Tool{failing}, []llm.ToolCall{{ID: "1", Name: "div"}})
	if !IsExecutionFailed(err) || !errors.Is(err, cause) {
		t.Errorf("Expected execution error wrapping cause, got %v", err)
	}

	_, err = Invoke(context.Background(), []Tool{panicking}, []llm.ToolCall{{ID: "2", Name: "boom"}})
	var execErr *ToolExecutionError
	if !errors.As(err, &execErr) || execErr.Call.ID != "2" {
		t.Errorf("Expected panic to surface as execution error, got %v", err)
	}
}

func TestInvoker_ParallelKeepsCallOrder(t *testing.T) {
	var mu sync.Mutex
	var completion []string
	sleeper := func(name string, d time.Duration) Tool {
		return New(name, "").Using(func(ctx context.Context, args map[string]any) (any, error) {
			time.Sleep(d)
			mu.Lock()
			completion = append(completion, name)
			mu.Unlock()
			return name, nil
		})
	}
	declared := []Tool{
		sleeper("a", 30*time.Millisecond),
		sleeper("b", 10*time.Millisecond),
		sleeper("c", 0),
	}
	calls := []llm.ToolCall{{ID: "A", Name: "a"}, {ID: "B", Name: "b"}, {ID: "C", Name: "c"}}

	for _, parallel := range []bool{false, true} {
		completion = nil
		results, err := NewInvoker(zerolog.Nop(), parallel).Invoke(context.Background(), declared, calls)
		if err != nil {
			t.Fatalf("parallel=%v: Invoke failed: %v", parallel, err)
		}
		for i, want := range []string{"A", "B", "C"} {
			if results[i].ToolCallID != want {
				t.Errorf("parallel=%v: result %d is %s, want %s", parallel, i, results[i].ToolCallID, want)
			}
		}
		if len(completion) != 3 {
			t.Errorf("parallel=%v: expected 3 executions, got %d", parallel, len(completion))
		}
	}
}

func TestTool_Spec(t *testing.T) {
	spec := calcTool().WithEnum("mode", "rounding", []string{"up", "down"}, false).Spec()
	if spec.Name != "calc" || spec.Description != "Adds two numbers" {
		t.Errorf("Unexpected spec header %+v", spec)
	}
	if len(spec.Schema.Required) != 2 || spec.Schema.Required[0] != "a" || spec.Schema.Required[1] != "b" {
		t.Errorf("Expected required [a b], got %v", spec.Schema.Required)
	}
	mode := spec.Schema.Properties["mode"].(map[string]any)
	if mode["type"] != "string" || len(mode["enum"].([]string)) != 2 {
		t.Errorf("Unexpected enum property %v", mode)
	}
	if spec.Schema.Map()["type"] != "object" {
		t.Error("Expected object schema")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	if err := r.Register(calcTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(calcTool()); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if err := r.RegisterAll(WorkspaceTools(t.TempDir())); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	all, _ := r.Tools()
	if len(all) != 4 || all[0].Name != "calc" {
		t.Errorf("Expected 4 tools sorted by name, got %d", len(all))
	}
	picked, err := r.Tools("read_file", "calc")
	if err != nil || picked[0].Name != "read_file" || picked[1].Name != "calc" {
		t.Errorf("Expected tools in requested order, got %v (%v)", picked, err)
	}
	if _, err := r.Tools("missing"); err == nil {
		t.Error("Expected error for unknown tool")
	}
}

func TestRegistry_Match(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	if err := r.RegisterAll(WorkspaceTools(t.TempDir())); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	if err := r.RegisterFrom("github", New("list_issues", "")); err != nil {
		t.Fatalf("RegisterFrom failed: %v", err)
	}
	if err := r.RegisterFrom("github", New("read_issue", "")); err != nil {
		t.Fatalf("RegisterFrom failed: %v", err)
	}

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{name: "exact", patterns: []string{"file_info"}, want: []string{"file_info"}},
		{name: "regexp", patterns: []string{"read_.*"}, want: []string{"read_file", "read_issue"}},
		{name: "server prefix", patterns: []string{"github:read_.*"}, want: []string{"read_issue"}},
		{name: "whole server", patterns: []string{"github:.*"}, want: []string{"list_issues", "read_issue"}},
		{name: "deduplicated", patterns: []string{"read_file", "read_.*"}, want: []string{"read_file", "read_issue"}},
		{name: "anchored", patterns: []string{"read"}, want: nil},
		{name: "invalid", patterns: []string{"(", ""}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Match(tt.patterns)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %d tools", tt.want, len(got))
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("Expected tool %d to be %s, got %s", i, name, got[i].Name)
				}
			}
		})
	}
}

func TestTruncate_KeepsRuneBoundaries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "héllo", 10, "héllo"},
		{"ascii", "abcdef", 3, "abc... (truncated)"},
		{"inside two-byte rune", "aé", 2, "a... (truncated)"},
		{"inside four-byte rune", "ab😀cd", 4, "ab... (truncated)"},
		{"on boundary", "ab😀cd", 6, "ab😀... (truncated)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Expected valid UTF-8, got %q", got)
			}
		})
	}

	long := strings.Repeat("日本語", 200)
	if got := truncate(long, 500); !utf8.ValidString(got) {
		t.Errorf("Expected valid UTF-8 for a long multi-byte result, got %q", got)
	}
}
