package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a failed response from KiotViet, Lark, or another remote API.
// Code holds the provider's own error code when the body carried one, which
// Lark does even on HTTP 200.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Endpoint   string
	Err        error
}

func NewAPIError(provider string, statusCode int, message string) *APIError {
	return &APIError{Provider: provider, StatusCode: statusCode, Message: message}
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Endpoint != "" {
		b.WriteString(" " + e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " returned %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code %s", e.Code)
	}
	b.WriteString(": " + e.Message)
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is maps 429 to ErrRateLimited and 5xx to ErrProviderUnavailable.
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return target == ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return target == ErrProviderUnavailable
	}
	return false
}

// RateLimitError is a throttling signal, either an HTTP 429 or a provider
// code in an otherwise successful body. RetryAfter is zero when the provider
// gave no hint.
type RateLimitError struct {
	Provider   string
	Code       string
	RetryAfter time.Duration
}

func NewRateLimitError(provider, code string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Provider: provider, Code: code, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	msg := e.Provider + " rate limit"
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.RetryAfter > 0 {
		msg += ", retry after " + e.RetryAfter.String()
	}
	return msg
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// TransientError marks a failure expected to clear on retry: a reset
// connection, a timed out request, an expired access token.
type TransientError struct {
	Op  string
	Err error
}

func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return fmt.Sprintf("%s (transient): %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// RetryExhaustedError wraps the last error of a retried call whose every
// attempt failed transiently.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func NewRetryExhaustedError(operation string, attempts int, last error) *RetryExhaustedError {
	return &RetryExhaustedError{Operation: operation, Attempts: attempts, Last: last}
}

func (e *RetryExhaustedError) Error() string {
	op := e.Operation
	if op == "" {
		op = "call"
	}
	return fmt.Sprintf("%s gave up after %d attempts: %v", op, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// AuthenticationError reports rejected or missing credentials. Method names
// the grant, e.g. client_credentials or tenant_access_token.
type AuthenticationError struct {
	Provider string
	Method   string
	Message  string
	Err      error
}

func NewAuthenticationError(provider, method, message string, err error) *AuthenticationError {
	return &AuthenticationError{Provider: provider, Method: method, Message: message, Err: err}
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s %s authentication: %s", e.Provider, e.Method, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration, Message: message}
}

func (e *TimeoutError) Error() string {
	if e.Duration == "" {
		return fmt.Sprintf("%s timed out: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s timed out after %s: %s", e.Operation, e.Duration, e.Message)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
