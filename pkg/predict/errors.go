package predict

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors every backend maps its failures onto.
var (
	// ErrInvalidImage is returned when the backend rejects the image itself:
	// corrupt, undecodable or an unsupported encoding.
	ErrInvalidImage = errors.New("predict: invalid image")

	// ErrServiceUnavailable is returned when the backend cannot be reached,
	// times out, is overloaded or answers with something unusable.
	ErrServiceUnavailable = errors.New("predict: service unavailable")

	// ErrUnclassifiable is returned when the image is readable but no
	// confident classification can be made.
	ErrUnclassifiable = errors.New("predict: unclassifiable")

	// ErrNoBackend is returned when no backend is configured.
	ErrNoBackend = errors.New("predict: no backend configured")
)

// APIError represents an error response from a prediction backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the backend.
	Message string

	// Code is the error code (if provided).
	Code string

	// Backend identifies which backend returned the error.
	Backend string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("predict [%s]: API error %d (%s): %s",
			e.Backend, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("predict [%s]: API error %d: %s",
		e.Backend, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// IsRejectedImage returns true when the status says the image itself was
// refused.
func (e *APIError) IsRejectedImage() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// Unwrap maps the status onto the prediction error taxonomy.
func (e *APIError) Unwrap() error {
	if e.IsRejectedImage() {
		return ErrInvalidImage
	}
	return ErrServiceUnavailable
}

// BackendError wraps an error with backend context.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("predict [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}

// ChainError aggregates errors from all backends in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "predict chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("predict chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("predict chain: all %d backends failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Normalize maps any backend failure onto the taxonomy.
// Caller cancellation is returned untouched. Deadlines, network timeouts
// and malformed results all count as the backend being unavailable.
func Normalize(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrUnclassifiable) ||
		errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrNoBackend) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return WrapError(backend, fmt.Errorf("%w: timed out: %w", ErrServiceUnavailable, err))
	}
	return WrapError(backend, fmt.Errorf("%w: %w", ErrServiceUnavailable, err))
}

// Retryable reports whether submitting the same image again may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrUnclassifiable)
}
