package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-mini-2024-07-18",
  "choices": [{
    "index": 0,
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "calc", "arguments": "{\"a\":2,\"b\":2}"}}]
    },
    "finish_reason": "tool_calls"
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15, "prompt_tokens_details": {"cached_tokens": 4}}
}`

func newTestClient(t *testing.T, profile Profile, handler http.HandlerFunc) (*Client, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(zerolog.Nop(), profile, Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: transport.NewHTTPClient(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, &bodies
}

func jsonHandler(status int, payload string, headers map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(zerolog.Nop(), OpenAIProfile, Config{}); !llm.IsConfigurationError(err) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestText_NormalizesToolCalls(t *testing.T) {
	c, bodies := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, toolCallCompletion, map[string]string{
		"x-ratelimit-remaining-requests": "99",
	}))

	resp, err := c.Text(context.Background(), &llm.Request{
		Model:    "gpt-4o-mini",
		Messages: []llm.Message{llm.NewSystemMessage("be exact"), llm.NewUserMessage("2+2")},
		Tools: []llm.ToolSpec{{Name: "calc", Description: "adds", Schema: llm.ToolSchema{
			Type:       "object",
			Properties: map[string]any{"a": map[string]any{"type": "number"}},
			Required:   []string{"a"},
		}}},
		ToolChoice: llm.ToolChoiceRequired,
	})
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}

	if resp.FinishReason != llm.FinishReasonToolCalls || resp.RawFinishReason != "tool_calls" {
		t.Errorf("Expected tool_calls finish, got %s (%s)", resp.FinishReason, resp.RawFinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Name != "calc" {
		t.Fatalf("Unexpected tool calls %+v", resp.ToolCalls)
	}
	args, err := resp.ToolCalls[0].DecodeArguments()
	if err != nil || args["a"] != float64(2) {
		t.Errorf("Expected decodable arguments, got %v (%v)", args, err)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 5 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}
	if resp.Usage.CacheReadInputTokens == nil || *resp.Usage.CacheReadInputTokens != 4 {
		t.Errorf("Expected 4 cached tokens, got %v", resp.Usage.CacheReadInputTokens)
	}
	if resp.Meta.ID != "chatcmpl-1" || resp.Meta.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("Unexpected meta %+v", resp.Meta)
	}
	if len(resp.Meta.RateLimits) != 1 || *resp.Meta.RateLimits[0].Remaining != 99 {
		t.Errorf("Expected rate limits from headers, got %+v", resp.Meta.RateLimits)
	}

	body := (*bodies)[0]
	if body["tool_choice"] != "required" {
		t.Errorf("Expected tool_choice required, got %v", body["tool_choice"])
	}
	msgs := body["messages"].([]any)
	if msgs[0].(map[string]any)["role"] != "system" {
		t.Errorf("Expected the system message first, got %v", msgs[0])
	}
}

func TestText_IsIdempotent(t *testing.T) {
	c, _ := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, toolCallCompletion, nil))
	req := &llm.Request{Model: "gpt-4o-mini", Messages: []llm.Message{llm.NewUserMessage("hi")}}

	first, err := c.Text(context.Background(), req)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	second, err := c.Text(context.Background(), req)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical normalization, got %+v and %+v", first, second)
	}
}

func TestText_SendsTemperature(t *testing.T) {
	zero, warm := 0.0, 0.7
	tests := []struct {
		name        string
		temperature *float64
		check       func(v any, ok bool) bool
	}{
		{"explicit zero is kept", &zero, func(v any, ok bool) bool { f, isNum := v.(float64); return ok && isNum && f > 0 && f < 1e-30 }},
		{"non-zero", &warm, func(v any, ok bool) bool { f, isNum := v.(float64); return ok && isNum && f > 0.69 && f < 0.71 }},
		{"unset is omitted", nil, func(v any, ok bool) bool { return !ok }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, bodies := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, toolCallCompletion, nil))
			_, err := c.Text(context.Background(), &llm.Request{
				Model:       "gpt-4o-mini",
				Messages:    []llm.Message{llm.NewUserMessage("hi")},
				Temperature: tt.temperature,
			})
			if err != nil {
				t.Fatalf("Text failed: %v", err)
			}
			v, ok := (*bodies)[0]["temperature"]
			if !tt.check(v, ok) {
				t.Errorf("Expected temperature check to pass, got %v (present %v)", v, ok)
			}
		})
	}
}

func TestText_FinishReasons(t *testing.T) {
	tests := []struct {
		profile Profile
		raw     string
		want    llm.FinishReason
	}{
		{OpenAIProfile, "stop", llm.FinishReasonStop},
		{OpenAIProfile, "length", llm.FinishReasonLength},
		{OpenAIProfile, "content_filter", llm.FinishReasonContentFilter},
		{OpenAIProfile, "something_new", llm.FinishReasonUnknown},
		{DeepSeekProfile, "insufficient_system_resource", llm.FinishReasonError},
		{MistralProfile, "model_length", llm.FinishReasonLength},
		{GroqProfile, "", llm.FinishReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.profile.Name+"/"+tt.raw, func(t *testing.T) {
			payload := fmt.Sprintf(`{"id":"x","model":"m","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":%q}]}`, tt.raw)
			c, _ := newTestClient(t, tt.profile, jsonHandler(http.StatusOK, payload, nil))
			resp, err := c.Text(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("hi")}})
			if err != nil {
				t.Fatalf("Text failed: %v", err)
			}
			if resp.FinishReason != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, resp.FinishReason)
			}
		})
	}
}

func TestText_RateLimitError(t *testing.T) {
	c, _ := newTestClient(t, GroqProfile, jsonHandler(http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`,
		map[string]string{"Retry-After": "2", "x-ratelimit-remaining-tokens": "0"},
	))

	_, err := c.Text(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("hi")}})
	if !llm.IsRateLimitError(err) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
	if ra := llm.ExtractRetryAfter(err); ra == nil || *ra != 2*time.Second {
		t.Errorf("Expected retry after 2s, got %v", ra)
	}
	if limits := llm.ExtractRateLimits(err); len(limits) != 1 || limits[0].Name != "tokens" {
		t.Errorf("Expected token window, got %+v", limits)
	}
}

func TestText_ServerError(t *testing.T) {
	c, _ := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusBadRequest,
		`{"error":{"message":"bad schema","type":"invalid_request_error"}}`, nil))

	_, err := c.Text(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("hi")}})
	var llmErr *llm.Error
	if !asLLMError(err, &llmErr) || llmErr.Type != llm.ErrorTypeInvalidRequest || llmErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected invalid request error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad schema") {
		t.Errorf("Expected the backend message to be kept, got %v", err)
	}
}

func asLLMError(err error, target **llm.Error) bool {
	e, ok := err.(*llm.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestStructured_ResponseFormats(t *testing.T) {
	schema := &llm.Schema{Name: "answer", Properties: map[string]any{"value": map[string]any{"type": "number"}}, Required: []string{"value"}, Strict: true}
	payload := `{"id":"x","model":"m","choices":[{"message":{"role":"assistant","content":"{\"value\":4}"},"finish_reason":"stop"}]}`

	t.Run("json schema", func(t *testing.T) {
		c, bodies := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, payload, nil))
		resp, err := c.Structured(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("2+2")}, Schema: schema})
		if err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		if resp.Structured["value"] != float64(4) {
			t.Errorf("Expected value 4, got %v", resp.Structured)
		}
		format := (*bodies)[0]["response_format"].(map[string]any)
		if format["type"] != "json_schema" {
			t.Errorf("Expected json_schema format, got %v", format)
		}
		js := format["json_schema"].(map[string]any)
		if js["name"] != "answer" || js["strict"] != true {
			t.Errorf("Unexpected json_schema %v", js)
		}
	})

	t.Run("json object", func(t *testing.T) {
		c, bodies := newTestClient(t, DeepSeekProfile, jsonHandler(http.StatusOK, payload, nil))
		if _, err := c.Structured(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("2+2")}, Schema: schema}); err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		body := (*bodies)[0]
		if body["response_format"].(map[string]any)["type"] != "json_object" {
			t.Errorf("Expected json_object format, got %v", body["response_format"])
		}
		first := body["messages"].([]any)[0].(map[string]any)
		if first["role"] != "system" || !strings.Contains(first["content"].(string), `"value"`) {
			t.Errorf("Expected the schema in a system message, got %v", first)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := `{"id":"x","model":"m","choices":[{"message":{"role":"assistant","content":"four"},"finish_reason":"stop"}]}`
		c, _ := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, bad, nil))
		_, err := c.Structured(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("2+2")}, Schema: schema})
		if !llm.IsResponseError(err) {
			t.Errorf("Expected response error, got %v", err)
		}
	})
}

func TestEmbeddings(t *testing.T) {
	c, bodies := newTestClient(t, OpenAIProfile, jsonHandler(http.StatusOK, `{
		"object": "list",
		"data": [
			{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
			{"object": "embedding", "index": 0, "embedding": [1, 0]}
		],
		"model": "text-embedding-3-small",
		"usage": {"prompt_tokens": 6, "total_tokens": 6}
	}`, nil))

	resp, err := c.Embeddings(context.Background(), &llm.EmbeddingsRequest{Inputs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if len(resp.Embeddings) != 2 || resp.Embeddings[0][0] != 1 || resp.Embeddings[1][0] != 0.5 {
		t.Errorf("Expected embeddings ordered by index, got %v", resp.Embeddings)
	}
	if resp.Usage.Tokens != 6 {
		t.Errorf("Expected 6 tokens, got %d", resp.Usage.Tokens)
	}
	if (*bodies)[0]["model"] != "text-embedding-3-small" {
		t.Errorf("Expected the profile embedding model, got %v", (*bodies)[0]["model"])
	}

	groq, _ := newTestClient(t, GroqProfile, jsonHandler(http.StatusOK, `{}`, nil))
	if _, err := groq.Embeddings(context.Background(), &llm.EmbeddingsRequest{Inputs: []string{"a"}}); !llm.IsUnsupportedError(err) {
		t.Errorf("Expected unsupported error for groq embeddings, got %v", err)
	}
}

func TestStream(t *testing.T) {
	events := []string{
		`{"id":"s1","model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"s1","model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"s1","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calc","arguments":"{\"a\":"}}]}}]}`,
		`{"id":"s1","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
		`{"id":"s1","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"s1","model":"m","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
	}
	c, bodies := newTestClient(t, OpenAIProfile, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := c.Stream(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close() //nolint:errcheck // test cleanup

	acc := llm.NewStreamAccumulator()
	var finishChunks int
	for stream.Next() {
		if stream.Chunk().Type == llm.ChunkTypeFinish {
			finishChunks++
		}
		acc.Add(stream.Chunk())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	resp := acc.Response()
	if finishChunks != 1 {
		t.Errorf("Expected exactly one finish chunk, got %d", finishChunks)
	}
	if resp.Text != "Hello" {
		t.Errorf("Expected Hello, got %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].RawArguments != `{"a":1}` || resp.ToolCalls[0].ID != "call_1" {
		t.Errorf("Unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.FinishReason != llm.FinishReasonToolCalls || resp.Usage.PromptTokens != 3 || resp.Meta.ID != "s1" {
		t.Errorf("Unexpected terminal state %+v", resp)
	}
	if opts, ok := (*bodies)[0]["stream_options"].(map[string]any); !ok || opts["include_usage"] != true {
		t.Errorf("Expected include_usage, got %v", (*bodies)[0]["stream_options"])
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs, err := ToOpenAIMessages("openai", []llm.Message{
		llm.NewUserMessage("look", llm.NewImage("image/png", "aGVsbG8=")),
		llm.NewAssistantMessage("", llm.ToolCall{ID: "1", Name: "calc", Arguments: map[string]any{"a": 1}}),
		llm.NewToolResultMessage(
			llm.ToolResult{ToolCallID: "1", ToolName: "calc", Result: 4},
			llm.ToolResult{ToolCallID: "2", ToolName: "calc", Result: "n/a"},
		),
	})
	if err != nil {
		t.Fatalf("ToOpenAIMessages failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("Expected tool results to expand into separate messages, got %d", len(msgs))
	}
	if len(msgs[0].MultiContent) != 2 || msgs[0].MultiContent[1].ImageURL.URL != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("Unexpected image part %+v", msgs[0].MultiContent)
	}
	if msgs[1].ToolCalls[0].Function.Arguments != `{"a":1}` {
		t.Errorf("Expected structured arguments to be encoded, got %s", msgs[1].ToolCalls[0].Function.Arguments)
	}
	if msgs[2].Role != openai.ChatMessageRoleTool || msgs[2].ToolCallID != "1" || msgs[2].Content != "4" {
		t.Errorf("Unexpected tool message %+v", msgs[2])
	}

	_, err = ToOpenAIMessages("groq", []llm.Message{llm.NewUserMessage("read", llm.NewDocument("application/pdf", "JVBE", "doc"))})
	if err == nil {
		t.Error("Expected documents to be rejected")
	}
}
