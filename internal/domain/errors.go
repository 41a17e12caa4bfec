package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for consistent error handling across the sync engine.

// ErrNoToken is returned by operations that need a connected bank token.
var ErrNoToken = errors.New("no bank token connected")

// APIError is a non-2xx answer from the bank API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("bank API error: %d", e.Status)
}

// RateLimited reports whether the API throttled the request. This is the
// only retryable API failure.
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// NewAPIError builds an APIError with a user-facing message for status.
func NewAPIError(status int) *APIError {
	return &APIError{Status: status, Message: apiStatusMessage(status)}
}

func apiStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request to the bank API"
	case http.StatusUnauthorized:
		return "invalid token, check your bank API token"
	case http.StatusForbidden:
		return "the bank API denied access for this token"
	case http.StatusNotFound:
		return "data not found in the bank API"
	case http.StatusTooManyRequests:
		return "too many requests, do not restart the sync"
	default:
		return fmt.Sprintf("bank API error: %d", status)
	}
}

// IsRateLimited reports whether err carries a throttling APIError.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}

// IsUnauthorized reports whether err carries an invalid-credentials APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// ErrExternalService indicates a transport failure talking to a remote service.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
