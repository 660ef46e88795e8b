package llm

import (
	"reflect"
	"testing"
)

func TestMessageRoles(t *testing.T) {
	tests := []struct {
		msg  Message
		role MessageRole
	}{
		{NewSystemMessage("be brief"), RoleSystem},
		{NewUserMessage("hello"), RoleUser},
		{NewAssistantMessage("hi"), RoleAssistant},
		{NewToolResultMessage(), RoleTool},
	}
	for _, tt := range tests {
		if tt.msg.Role() != tt.role {
			t.Errorf("Expected role %v, got %v", tt.role, tt.msg.Role())
		}
	}
}

func TestToolCall_DecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		call    ToolCall
		want    map[string]any
		wantErr bool
	}{
		{
			name: "raw json",
			call: ToolCall{ID: "1", Name: "calc", RawArguments: `{"a":2,"b":2}`},
			want: map[string]any{"a": float64(2), "b": float64(2)},
		},
		{
			name: "structured",
			call: ToolCall{ID: "1", Name: "calc", Arguments: map[string]any{"a": 1}},
			want: map[string]any{"a": 1},
		},
		{
			name: "empty",
			call: ToolCall{ID: "1", Name: "now"},
			want: map[string]any{},
		},
		{
			name:    "invalid json",
			call:    ToolCall{ID: "1", Name: "calc", RawArguments: "{invalid json"},
			wantErr: true,
		},
		{
			name:    "not an object",
			call:    ToolCall{ID: "1", Name: "calc", RawArguments: "[1,2]"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.DecodeArguments()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if got != nil {
					t.Errorf("Expected nil map on error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestToolResult_ResultString(t *testing.T) {
	tests := []struct {
		result any
		want   string
	}{
		{"four", "four"},
		{4, "4"},
		{4.5, "4.5"},
		{map[string]any{"sum": 4}, `{"sum":4}`},
		{nil, ""},
	}
	for _, tt := range tests {
		got := ToolResult{Result: tt.result}.ResultString()
		if got != tt.want {
			t.Errorf("ResultString(%v) = %q, want %q", tt.result, got, tt.want)
		}
	}
}

func TestUsage_Add(t *testing.T) {
	read := int64(3)
	total := Usage{}
	for _, u := range []Usage{
		{PromptTokens: 10, CompletionTokens: 5},
		{PromptTokens: 8, CompletionTokens: 3, CacheReadInputTokens: &read},
		{PromptTokens: 2, CompletionTokens: 1},
	} {
		total = total.Add(u)
	}
	if total.PromptTokens != 20 || total.CompletionTokens != 9 {
		t.Errorf("Expected (20,9), got (%d,%d)", total.PromptTokens, total.CompletionTokens)
	}
	if total.CacheReadInputTokens == nil || *total.CacheReadInputTokens != 3 {
		t.Errorf("Expected cache read 3, got %v", total.CacheReadInputTokens)
	}
	if total.CacheWriteInputTokens != nil {
		t.Error("Expected cache write to stay nil")
	}
}

func TestFinishReasonMap_Lookup(t *testing.T) {
	tests := []struct {
		raw  string
		want FinishReason
	}{
		{"stop", FinishReasonStop},
		{"tool_calls", FinishReasonToolCalls},
		{"TOOL_CALLS", FinishReasonToolCalls},
		{"something_new", FinishReasonUnknown},
		{"", FinishReasonUnknown},
	}
	for _, tt := range tests {
		if got := OpenAIFinishReasons.Lookup(tt.raw); got != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestMessageCodecRoundTrip(t *testing.T) {
	messages := []Message{
		NewSystemMessage("be brief"),
		NewUserMessage("look", NewImage("image/png", "aGVsbG8=")),
		NewAssistantMessage("", ToolCall{ID: "1", Name: "calc", RawArguments: `{"a":2}`}),
		NewToolResultMessage(ToolResult{ToolCallID: "1", ToolName: "calc", Args: map[string]any{"a": float64(2)}, Result: "4"}),
	}

	for _, m := range messages {
		data, err := MarshalMessage(m)
		if err != nil {
			t.Fatalf("MarshalMessage(%T): %v", m, err)
		}
		got, err := UnmarshalMessage(data)
		if err != nil {
			t.Fatalf("UnmarshalMessage(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("Round trip mismatch:\n got  %#v\n want %#v", got, m)
		}
	}
}

func TestStreamAccumulator(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Add(&Chunk{Type: ChunkTypeText, Text: "Hel"})
	acc.Add(&Chunk{Type: ChunkTypeText, Text: "lo"})
	acc.Add(&Chunk{Type: ChunkTypeToolCall, ToolCall: &ToolCallDelta{Index: 0, ID: "c1", Name: "calc", ArgumentsDelta: `{"a":`}})
	acc.Add(&Chunk{Type: ChunkTypeToolCall, ToolCall: &ToolCallDelta{Index: 0, ArgumentsDelta: `2}`}})
	acc.Add(&Chunk{Type: ChunkTypeFinish, FinishReason: FinishReasonToolCalls, Usage: &Usage{PromptTokens: 4, CompletionTokens: 2}})

	resp := acc.Response()
	if resp.Text != "Hello" {
		t.Errorf("Expected text 'Hello', got %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].RawArguments != `{"a":2}` {
		t.Errorf("Unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.FinishReason != FinishReasonToolCalls || resp.Usage.PromptTokens != 4 {
		t.Errorf("Unexpected finish %v / usage %+v", resp.FinishReason, resp.Usage)
	}
}

func TestDecodeStructured(t *testing.T) {
	got, err := DecodeStructured("```json\n{\"answer\": 4}\n```")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got["answer"] != float64(4) {
		t.Errorf("Expected answer 4, got %v", got["answer"])
	}
	if _, err := DecodeStructured("not json"); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
