package llm

// Sentinel error types for completion failures. The retry wrapper
// pattern-matches on these with errors.As to decide between backing
// off and giving up.

import "fmt"

// RateLimitError is returned when the provider answers HTTP 429.
// Retryable with backoff.
type RateLimitError struct {
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by completion API: %s", e.Message)
}

// ServerError is returned for provider-side 5xx responses. Retryable.
type ServerError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("completion API server error %d: %s", e.StatusCode, e.Message)
}

// APIError is returned for all other non-2xx responses (bad request,
// auth failure, model not found). Not retryable.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("completion API error %d: %s", e.StatusCode, e.Message)
}
