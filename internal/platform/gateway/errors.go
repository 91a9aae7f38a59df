package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a failed gateway request for user-facing reporting.
type Category string

const (
	// CategoryAuthExpired marks 401/403 responses; the session token needs
	// to be refreshed before retrying.
	CategoryAuthExpired Category = "auth_expired"
	// CategoryUnavailable marks 5xx responses, transport failures, and
	// timeouts.
	CategoryUnavailable Category = "unavailable"
	// CategoryValidation marks 400/422 responses.
	CategoryValidation Category = "validation"
	// CategoryNotFound marks 404 responses.
	CategoryNotFound Category = "not_found"
	// CategoryGeneric covers everything else.
	CategoryGeneric Category = "generic"
)

// RequestError is a categorized failure from the clinical gateway.
type RequestError struct {
	Op         string
	StatusCode int
	Category   Category
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d (%s): %v", e.Op, e.StatusCode, e.Category, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Category, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// AsRequestError extracts a *RequestError from an error chain.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	ok := errors.As(err, &re)
	return re, ok
}

// categorize maps an HTTP status code to a failure category. A zero status
// code means the request never produced a response.
func categorize(statusCode int) Category {
	switch {
	case statusCode == 0:
		return CategoryUnavailable
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return CategoryAuthExpired
	case statusCode == http.StatusNotFound:
		return CategoryNotFound
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		return CategoryValidation
	case statusCode >= 500:
		return CategoryUnavailable
	default:
		return CategoryGeneric
	}
}
