package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	Model       string // Set for tools_unsupported so callers can name the model
	ProviderErr error  // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit        ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge  ErrorType = "request_too_large"
	ErrorTypeInvalidRequest   ErrorType = "invalid_request"
	ErrorTypeProvider         ErrorType = "provider"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeTimeout          ErrorType = "timeout"
	ErrorTypeCancelled        ErrorType = "cancelled"
	ErrorTypeToolsUnsupported ErrorType = "tools_unsupported"
	ErrorTypeEmptyResponse    ErrorType = "empty_response"
	ErrorTypeUnknown          ErrorType = "unknown"
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

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Type == ErrorTypeRequestTooLarge
	}
	return false
}

// IsCancelledError checks if an error is a cancellation error.
func IsCancelledError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Type == ErrorTypeCancelled
	}
	return false
}

// IsToolsUnsupportedError checks if an error reports that the endpoint rejected tool definitions.
func IsToolsUnsupportedError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Type == ErrorTypeToolsUnsupported
	}
	return false
}

// IsEmptyResponseError checks if an error reports an empty provider response.
func IsEmptyResponseError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Type == ErrorTypeEmptyResponse
	}
	return false
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	if llmErr, ok := AsError(err); ok {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	if llmErr, ok := AsError(err); ok {
		return llmErr.RetryAfter
	}
	return nil
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
		Retryable:   false,
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

// NewStatusError creates a provider error carrying an HTTP status code. The
// status decides retryability later; Retryable is left false here.
func NewStatusError(message string, statusCode int, providerErr error) *Error {
	errType := ErrorTypeProvider
	switch {
	case statusCode == 429:
		errType = ErrorTypeRateLimit
	case statusCode == 408 || statusCode == 504:
		errType = ErrorTypeTimeout
	case statusCode >= 400 && statusCode < 500:
		errType = ErrorTypeInvalidRequest
	}
	return &Error{
		Type:        errType,
		Message:     message,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewNetworkError creates a retryable transport-level error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewCancelledError creates a cancellation error.
func NewCancelledError(reason string, cause error) *Error {
	if reason == "" {
		reason = "request aborted"
	}
	return &Error{
		Type:        ErrorTypeCancelled,
		Message:     reason,
		ProviderErr: cause,
	}
}

// NewToolsUnsupportedError reports that model does not accept tool definitions.
func NewToolsUnsupportedError(model string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeToolsUnsupported,
		Message:     fmt.Sprintf("model %q does not support tool calling", model),
		Model:       model,
		ProviderErr: providerErr,
	}
}

// NewEmptyResponseError reports that the provider returned nothing usable.
func NewEmptyResponseError(detail string) *Error {
	msg := "empty response from model"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{
		Type:      ErrorTypeEmptyResponse,
		Message:   msg,
		Retryable: true,
	}
}
