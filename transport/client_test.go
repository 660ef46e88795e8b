package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/rs/zerolog"
)

func fastPolicy(retries uint64) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = retries
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 2 * time.Millisecond
	return p
}

func TestClient_SendEncodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("Expected auth header, got %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if body["model"] != "m" {
			t.Errorf("Expected model m, got %v", body["model"])
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(zerolog.Nop(), NoRetry(), srv.Client())
	resp, err := c.Send(context.Background(), Request{
		URL:    srv.URL,
		Header: http.Header{"Authorization": {"Bearer k"}},
		Body:   map[string]any{"model": "m"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !resp.OK() || string(resp.Body) != `{"ok":true}` {
		t.Errorf("Unexpected response %d %s", resp.StatusCode, resp.Body)
	}
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := New(zerolog.Nop(), fastPolicy(3), srv.Client()).Send(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || calls.Load() != 3 {
		t.Errorf("Expected success on third attempt, got %d after %d calls", resp.StatusCode, calls.Load())
	}
}

func TestClient_DoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := New(zerolog.Nop(), fastPolicy(3), srv.Client()).Send(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests || calls.Load() != 1 {
		t.Errorf("Expected a single 429 attempt, got %d after %d calls", resp.StatusCode, calls.Load())
	}
}

func TestClient_ReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := New(zerolog.Nop(), fastPolicy(1), srv.Client()).Send(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(zerolog.Nop(), fastPolicy(1), nil).Send(context.Background(), Request{URL: url})
	if err == nil {
		t.Fatal("Expected error for closed server")
	}
}

func TestRateLimitsFromHeader(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("x-ratelimit-limit-requests", "500")
	header.Set("x-ratelimit-remaining-requests", "499")
	header.Set("x-ratelimit-reset-requests", "120ms")
	header.Set("x-ratelimit-limit-tokens", "30000")
	header.Set("anthropic-ratelimit-input-tokens-remaining", "100")
	header.Set("anthropic-ratelimit-input-tokens-reset", "2025-01-01T12:01:00Z")
	header.Set("Content-Type", "application/json")

	limits := RateLimitsFromHeader(header, now)
	if len(limits) != 3 {
		t.Fatalf("Expected 3 windows, got %d: %+v", len(limits), limits)
	}

	byName := map[string]llm.RateLimit{}
	for _, l := range limits {
		byName[l.Name] = l
	}

	req := byName["requests"]
	if req.Limit == nil || *req.Limit != 500 || req.Remaining == nil || *req.Remaining != 499 {
		t.Errorf("Unexpected requests window %+v", req)
	}
	if req.ResetsAt == nil || !req.ResetsAt.Equal(now.Add(120*time.Millisecond)) {
		t.Errorf("Unexpected requests reset %v", req.ResetsAt)
	}

	input := byName["input-tokens"]
	if input.Remaining == nil || *input.Remaining != 100 {
		t.Errorf("Unexpected input-tokens window %+v", input)
	}
	if input.ResetsAt == nil || !input.ResetsAt.Equal(now.Add(time.Minute)) {
		t.Errorf("Unexpected input-tokens reset %v", input.ResetsAt)
	}

	if RateLimitsFromHeader(http.Header{}, now) != nil {
		t.Error("Expected nil for headers without rate limits")
	}
}

func TestErrorFromStatus(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")
	header.Set("x-ratelimit-remaining-requests", "0")

	err := ErrorFromStatus(llm.ProviderGroq, http.StatusTooManyRequests, header, "", "slow down", nil)
	if !llm.IsRateLimitError(err) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
	if ra := llm.ExtractRetryAfter(err); ra == nil || *ra != 7*time.Second {
		t.Errorf("Expected retry after 7s, got %v", ra)
	}
	if limits := llm.ExtractRateLimits(err); len(limits) != 1 || *limits[0].Remaining != 0 {
		t.Errorf("Unexpected rate limits %+v", limits)
	}

	tests := []struct {
		status int
		want   llm.ErrorType
	}{
		{http.StatusRequestEntityTooLarge, llm.ErrorTypeRequestTooLarge},
		{http.StatusBadRequest, llm.ErrorTypeInvalidRequest},
		{http.StatusUnauthorized, llm.ErrorTypeResponse},
		{http.StatusInternalServerError, llm.ErrorTypeProvider},
	}
	for _, tt := range tests {
		got := ErrorFromStatus(llm.ProviderGroq, tt.status, http.Header{}, "", "", nil)
		if got.Type != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got.Type)
		}
	}
}

func TestCapturingTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining-tokens", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(time.Second)
	ctx, captured := CaptureHeaders(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()

	if captured.Status() != http.StatusTooManyRequests {
		t.Errorf("Expected captured 429, got %d", captured.Status())
	}
	if captured.Header().Get("x-ratelimit-remaining-tokens") != "12" {
		t.Errorf("Expected captured header, got %v", captured.Header())
	}
}
