package transport

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
)

// RateLimitsFromHeader extracts rate-limit windows from response headers.
//
// Two header families are understood:
//
//	x-ratelimit-{limit,remaining,reset}-<name>        (OpenAI, Groq, DeepSeek, XAI, Mistral)
//	anthropic-ratelimit-<name>-{limit,remaining,reset} (Anthropic)
//
// Reset values may be a duration ("6m0s", "20ms"), an RFC 3339 time or a
// number of seconds; durations are resolved against now.
func RateLimitsFromHeader(header http.Header, now time.Time) []llm.RateLimit {
	windows := make(map[string]*llm.RateLimit)
	window := func(name string) *llm.RateLimit {
		if name == "" {
			name = "requests"
		}
		w, ok := windows[name]
		if !ok {
			w = &llm.RateLimit{Name: name}
			windows[name] = w
		}
		return w
	}

	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		k := strings.ToLower(key)
		v := strings.TrimSpace(values[0])

		var name, field string
		switch {
		case strings.HasPrefix(k, "x-ratelimit-"):
			rest := strings.TrimPrefix(k, "x-ratelimit-")
			field, name, _ = strings.Cut(rest, "-")
		case strings.HasPrefix(k, "anthropic-ratelimit-"):
			rest := strings.TrimPrefix(k, "anthropic-ratelimit-")
			i := strings.LastIndex(rest, "-")
			if i < 0 {
				continue
			}
			name, field = rest[:i], rest[i+1:]
		default:
			continue
		}

		switch field {
		case "limit":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				window(name).Limit = &n
			}
		case "remaining":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				window(name).Remaining = &n
			}
		case "reset":
			if t, ok := parseReset(v, now); ok {
				window(name).ResetsAt = &t
			}
		}
	}

	if len(windows) == 0 {
		return nil
	}
	out := make([]llm.RateLimit, 0, len(windows))
	for _, w := range windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parseReset(v string, now time.Time) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(d), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		// Large values are epoch timestamps rather than offsets.
		if secs > 1e9 {
			return time.Unix(int64(secs), 0), true
		}
		return now.Add(time.Duration(secs * float64(time.Second))), true
	}
	return time.Time{}, false
}

// RetryAfter parses the Retry-After header (seconds or HTTP date).
func RetryAfter(header http.Header, now time.Time) *time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		d := t.Sub(now)
		return &d
	}
	return nil
}

// ErrorFromStatus classifies a non-2xx provider response.
// errType and message come from the backend's error payload and may be empty.
func ErrorFromStatus(provider string, status int, header http.Header, errType, message string, cause error) *llm.Error {
	now := time.Now()
	switch {
	case status == http.StatusTooManyRequests:
		e := llm.NewRateLimitError(
			llm.NewResponseError(provider, status, errType, message, nil).Message,
			RetryAfter(header, now),
			cause,
		)
		e.Provider = provider
		e.RateLimits = RateLimitsFromHeader(header, now)
		return e
	case status == http.StatusRequestEntityTooLarge:
		e := llm.NewRequestTooLargeError(llm.NewResponseError(provider, status, errType, message, nil).Message, cause)
		e.Provider = provider
		return e
	case status >= 500:
		e := llm.NewResponseError(provider, status, errType, message, cause)
		e.Type = llm.ErrorTypeProvider
		e.Retryable = true
		return e
	case status == http.StatusBadRequest:
		e := llm.NewResponseError(provider, status, errType, message, cause)
		e.Type = llm.ErrorTypeInvalidRequest
		return e
	default:
		return llm.NewResponseError(provider, status, errType, message, cause)
	}
}

type captureKey struct{}

// Captured holds the status and headers of the last response sent for a context.
type Captured struct {
	mu     sync.Mutex
	status int
	header http.Header
}

// Header returns the captured headers, or nil.
func (c *Captured) Header() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header
}

// Status returns the captured status code, or 0.
func (c *Captured) Status() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CaptureHeaders returns a context under which responses passing through a
// CapturingTransport record their headers. SDKs that hide headers on error
// still send through our http.Client, so adapters can read them afterwards.
func CaptureHeaders(ctx context.Context) (context.Context, *Captured) {
	c := &Captured{}
	return context.WithValue(ctx, captureKey{}, c), c
}

// CapturingTransport records response headers into a Captured found in the
// request context.
type CapturingTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *CapturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if c, ok := req.Context().Value(captureKey{}).(*Captured); ok {
		c.mu.Lock()
		c.status = resp.StatusCode
		c.header = resp.Header.Clone()
		c.mu.Unlock()
	}
	return resp, nil
}

// NewHTTPClient returns an http.Client with a CapturingTransport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &CapturingTransport{Base: http.DefaultTransport},
	}
}
