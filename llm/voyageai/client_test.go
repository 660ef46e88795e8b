package voyageai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, status int, payload string) (*Client, *map[string]any) {
	t.Helper()
	body := map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	noRetry := transport.NoRetry()
	c, err := New(zerolog.Nop(), Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client(), Retry: &noRetry})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, &body
}

func TestEmbeddings_OrdersByIndex(t *testing.T) {
	c, body := newTestClient(t, http.StatusOK, `{
  "object": "list",
  "data": [
    {"object": "embedding", "embedding": [0.3, 0.4], "index": 1},
    {"object": "embedding", "embedding": [0.1, 0.2], "index": 0}
  ],
  "model": "voyage-3.5",
  "usage": {"total_tokens": 9}
}`)

	resp, err := c.Embeddings(context.Background(), &llm.EmbeddingsRequest{
		Inputs:          []string{"first", "second"},
		ProviderOptions: map[string]any{"input_type": "query", "dimensions": 256},
	})
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if resp.Embeddings[0][0] != 0.1 || resp.Embeddings[1][0] != 0.3 {
		t.Errorf("Expected vectors in input order, got %v", resp.Embeddings)
	}
	if resp.Usage.Tokens != 9 || resp.Meta.Model != "voyage-3.5" {
		t.Errorf("Unexpected usage or meta %+v %+v", resp.Usage, resp.Meta)
	}
	if (*body)["input_type"] != "query" || (*body)["output_dimension"] != float64(256) {
		t.Errorf("Expected provider options on the wire, got %v", *body)
	}
}

func TestEmbeddings_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"rate limit", http.StatusTooManyRequests, `{"detail":"slow down"}`, llm.IsRateLimitError},
		{"count mismatch", http.StatusOK, `{"data":[{"embedding":[1],"index":0}]}`, llm.IsResponseError},
		{"invalid json", http.StatusOK, `<html>`, llm.IsResponseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)
			_, err := c.Embeddings(context.Background(), &llm.EmbeddingsRequest{Inputs: []string{"a", "b"}})
			if err == nil || !tt.check(err) {
				t.Errorf("Unexpected error %v", err)
			}
		})
	}
}

func TestOtherCapabilitiesUnsupported(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{}`)
	ctx := context.Background()
	req := &llm.Request{Messages: []llm.Message{llm.NewUserMessage("x")}}

	if _, err := c.Text(ctx, req); !llm.IsUnsupportedError(err) {
		t.Errorf("Expected unsupported text, got %v", err)
	}
	if _, err := c.Structured(ctx, req); !llm.IsUnsupportedError(err) {
		t.Errorf("Expected unsupported structured, got %v", err)
	}
	if _, err := c.Stream(ctx, req); !llm.IsUnsupportedError(err) {
		t.Errorf("Expected unsupported stream, got %v", err)
	}
}
