package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRequestTooLargeError(regularErr) {
		t.Error("Expected IsRequestTooLargeError to return false for non-request-too-large error")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewRequestError(ProviderOpenAI, "gpt-4o", cause)
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if err.Type != ErrorTypeNetwork {
		t.Errorf("Expected network error, got %s", err.Type)
	}
	if !strings.Contains(err.Error(), "gpt-4o") {
		t.Errorf("Expected model name in message, got %q", err.Error())
	}

	wrapped := fmt.Errorf("step 2: %w", err)
	var llmErr *Error
	if !errors.As(wrapped, &llmErr) {
		t.Fatal("Expected errors.As to find *Error through wrapping")
	}
}

func TestNewRequestError_Timeout(t *testing.T) {
	err := NewRequestError(ProviderAnthropic, "claude", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if err.Type != ErrorTypeTimeout {
		t.Errorf("Expected timeout error, got %s", err.Type)
	}
}

func TestNewResponseError_DefaultsUnknown(t *testing.T) {
	tests := []struct {
		name    string
		errType string
		message string
		want    string
	}{
		{name: "all fields", errType: "invalid_request_error", message: "bad model", want: "mistral error (invalid_request_error): bad model"},
		{name: "missing type", message: "bad model", want: "mistral error (unknown): bad model"},
		{name: "missing everything", want: "mistral error (unknown): unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewResponseError(ProviderMistral, 400, tt.errType, tt.message, nil)
			if err.Error() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, err.Error())
			}
			if !IsResponseError(err) {
				t.Error("Expected IsResponseError to return true")
			}
		})
	}
}

func TestNewUnsupportedError(t *testing.T) {
	_, err := Unsupported{Provider: ProviderVoyageAI}.Text(context.Background(), &Request{})
	if !IsUnsupportedError(err) {
		t.Fatalf("Expected unsupported error, got %v", err)
	}
	if err.Error() != "voyageai does not support text" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
