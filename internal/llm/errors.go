// Package llm talks to the upstream generative model: a process-wide call
// quota, a streaming client with bounded retries, and helpers that pull JSON
// out of free-form model output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrQuotaExceeded means the process-wide upstream budget is spent for the
	// current minute or day. Callers fail fast without contacting upstream.
	ErrQuotaExceeded = errors.New("upstream quota exceeded")

	// ErrUpstreamExhausted is matched by *ExhaustedError.
	ErrUpstreamExhausted = errors.New("upstream attempts exhausted")

	// ErrNotConfigured means no API key was supplied.
	ErrNotConfigured = errors.New("upstream not configured")

	// ErrNoJSONFound means the text contains no bracket pair of the expected kind.
	ErrNoJSONFound = errors.New("no JSON found in response")

	// ErrMalformedJSON means the bracketed span did not decode.
	ErrMalformedJSON = errors.New("malformed JSON in response")
)

// UpstreamError is a non-success HTTP response from the upstream API.
type UpstreamError struct {
	StatusCode int
	Status     string // provider status string, e.g. RESOURCE_EXHAUSTED
	Message    string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("upstream returned %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// ClassifyStatus builds an UpstreamError for an HTTP status.
// Rate limiting, timeouts and server errors are retryable; other 4xx are not.
func ClassifyStatus(statusCode int, status, message string) *UpstreamError {
	e := &UpstreamError{StatusCode: statusCode, Status: status, Message: message}
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		e.Retryable = true
	}
	return e
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error // last attempt's error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("upstream failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrUpstreamExhausted, e.Err}
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	// Transport failures (resets, EOF mid-stream) are worth another attempt.
	return true
}
