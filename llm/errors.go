package llm

import (
	"errors"
	"time"
)

// ErrNoChoices means the provider answered without any completion choice.
var ErrNoChoices = errors.New("model returned no choices")

// Error is a provider-neutral model error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error
}

// ErrorType is the category of an Error.
type ErrorType string

const (
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeProvider       ErrorType = "provider"
	ErrorTypeNetwork        ErrorType = "network"
)

func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRateLimitError reports whether err is a rate limit Error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Type == ErrorTypeRateLimit
}

// IsRetryableError reports whether err is worth retrying.
func IsRetryableError(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Retryable
}

// ExtractRetryAfter returns the provider's retry hint, if any.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError builds a retryable rate limit error.
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

// NewProviderError builds a non-retryable provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		ProviderErr: providerErr,
	}
}

// NewNetworkError builds a retryable transport error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}
