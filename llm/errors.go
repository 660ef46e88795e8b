package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Provider    string
	Model       string
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	RateLimits  []RateLimit
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeConfiguration   ErrorType = "configuration"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeResponse        ErrorType = "response"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnsupported     ErrorType = "unsupported"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Capability names a provider operation.
type Capability string

const (
	CapabilityText       Capability = "text"
	CapabilityStructured Capability = "structured"
	CapabilityEmbeddings Capability = "embeddings"
	CapabilityStream     Capability = "stream"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	return hasType(err, ErrorTypeRequestTooLarge)
}

// IsUnsupportedError checks if an error reports a missing provider capability.
func IsUnsupportedError(err error) bool {
	return hasType(err, ErrorTypeUnsupported)
}

// IsConfigurationError checks if an error was caused by invalid request options.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsResponseError checks if a provider returned an unusable or error-flagged payload.
func IsResponseError(err error) bool {
	return hasType(err, ErrorTypeResponse)
}

func hasType(err error, t ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// ExtractRateLimits returns the rate-limit windows attached to an error.
func ExtractRateLimits(err error) []RateLimit {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RateLimits
	}
	return nil
}

// NewConfigurationError reports a caller mistake. It is never retried.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewRequestError wraps a transport failure with the model it was sent for.
func NewRequestError(provider, model string, cause error) *Error {
	errType := ErrorTypeNetwork
	if errors.Is(cause, context.DeadlineExceeded) {
		errType = ErrorTypeTimeout
	}
	return &Error{
		Type:        errType,
		Provider:    provider,
		Model:       model,
		Message:     fmt.Sprintf("%s: sending request for model %s failed", provider, orUnknown(model)),
		ProviderErr: cause,
	}
}

// NewResponseError reports an unusable or error-flagged provider payload.
// Missing fields are rendered as "unknown".
func NewResponseError(provider string, statusCode int, errType, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeResponse,
		Provider:    provider,
		StatusCode:  statusCode,
		Message:     fmt.Sprintf("%s error (%s): %s", provider, orUnknown(errType), orUnknown(message)),
		ProviderErr: cause,
	}
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  429,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError creates a new request too large error.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   true,
		StatusCode:  413,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewInvalidRequestError reports a request the adapter cannot express for its backend.
func NewInvalidRequestError(provider, format string, args ...any) *Error {
	return &Error{
		Type:     ErrorTypeInvalidRequest,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedError reports a capability the provider does not implement.
func NewUnsupportedError(provider string, capability Capability) *Error {
	return &Error{
		Type:     ErrorTypeUnsupported,
		Provider: provider,
		Message:  fmt.Sprintf("%s does not support %s", provider, capability),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
