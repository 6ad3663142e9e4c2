// Package apperr defines the error taxonomy shared by the reservation,
// ordering and payment layers. Handlers translate these into HTTP status
// codes with StatusCode; anything not listed here is an internal failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError is returned for malformed or missing input, before any
// store is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// CapacityExceededError is the result of a failed authoritative availability
// check for one (event, sector) pair.
type CapacityExceededError struct {
	EventID   string
	SectorID  string
	Requested int
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("sector %s of event %s has %d seats left, %d requested", e.SectorID, e.EventID, e.Remaining, e.Requested)
}

// ShortBy is how many seats the request exceeds the remaining capacity by.
func (e *CapacityExceededError) ShortBy() int {
	if e.Remaining < 0 {
		return e.Requested
	}
	return e.Requested - e.Remaining
}

// ConflictError signals an operation that cannot proceed because of the
// current state of an entity (wrong status, token collision, busy lock).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UpstreamUnavailableError wraps a failure to reach the hold store or the
// persistence store. Callers may retry.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// Retryable is always true; the type exists so the caller can tell a
// store outage from a domain rejection.
func (e *UpstreamUnavailableError) Retryable() bool { return true }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func Unavailable(service string, err error) error {
	return &UpstreamUnavailableError{Service: service, Err: err}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Shortages collects every CapacityExceededError in err, including those
// combined with errors.Join.
func Shortages(err error) []*CapacityExceededError {
	if err == nil {
		return nil
	}
	if c, ok := err.(*CapacityExceededError); ok {
		return []*CapacityExceededError{c}
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		var out []*CapacityExceededError
		for _, e := range u.Unwrap() {
			out = append(out, Shortages(e)...)
		}
		return out
	case interface{ Unwrap() error }:
		return Shortages(u.Unwrap())
	}
	return nil
}

// StatusCode maps an error from the service layer to an HTTP status.
func StatusCode(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		capacity   *CapacityExceededError
		conflict   *ConflictError
		upstream   *UpstreamUnavailableError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &capacity):
		return http.StatusConflict
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
