// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes. Every error returned by the store, the signer and the services
// wraps exactly one of them.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates a bad, expired or missing credential (PIN, signature, scope).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation (slug, ordering index).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInternal indicates a persistence or unexpected failure.
	ErrInternal = errors.New("internal error")
)

// PIN gate and capability token failures.
var (
	ErrInvalidPin        = fmt.Errorf("%w: invalid or expired pin", ErrUnauthorized)
	ErrAttemptsExceeded  = fmt.Errorf("%w: maximum attempts exceeded", ErrUnauthorized)
	ErrAccessMismatch    = fmt.Errorf("%w: share does not grant access to pin scope", ErrUnauthorized)
	ErrDownloadsDisabled = fmt.Errorf("%w: downloads are disabled for this collection", ErrUnauthorized)

	ErrTokenExpired = fmt.Errorf("%w: download link expired", ErrUnauthorized)
	ErrBadSignature = fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	ErrAccessDenied = fmt.Errorf("%w: path outside upload root", ErrUnauthorized)
)

// HTTPStatus maps an error to the HTTP status code of its class.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validationf builds a validation error with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
