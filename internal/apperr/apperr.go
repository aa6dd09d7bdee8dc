// Package apperr defines the error kinds shared by the server and the client.
// Concrete errors wrap one of these kinds with %w so callers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds.
var (
	ErrValidation  = errors.New("validation error")
	ErrAuth        = errors.New("authentication error")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrUpstream    = errors.New("upstream error")
	ErrPersistence = errors.New("persistence error")
)

// ErrConnection reports that a remote peer could not be reached at all.
var ErrConnection = fmt.Errorf("%w: connection failed", ErrUpstream)

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus is the inverse of HTTPStatus. It wraps the remote message in the
// kind that matches the status code.
func FromStatus(status int, message string) error {
	var kind error
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = ErrValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrAuth
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusConflict:
		kind = ErrConflict
	case status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		kind = ErrUpstream
	case status >= 500:
		kind = ErrPersistence
	default:
		kind = ErrValidation
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s", kind, message)
}
