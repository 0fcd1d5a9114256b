// Package services defines the business logic of the application lifecycle:
// submissions, the status workflow, document issuance, and payment orders.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes and machine-readable error codes happens
// in exactly one place, handlers.writeError.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
)

var (
	// ErrValidation wraps every input validation failure. Use errors.As with
	// *ValidationError for per-field detail.
	ErrValidation = errors.New("validation failed")

	// ErrProgramNotFound indicates the referenced program does not exist.
	ErrProgramNotFound = errors.New("program not found")

	// ErrApplicationNotFound is returned for unknown application ids, and for
	// a code/email pair that does not match.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrSignatureMismatch is returned when the payment signature does not
	// verify. Nothing has been written when it is returned.
	ErrSignatureMismatch = payments.ErrSignatureMismatch

	// ErrOrderMismatch is returned when a verified payment refers to an order
	// this service never created, or one created for another program.
	ErrOrderMismatch = errors.New("payment order does not match the program")

	// ErrPaymentReused is returned when the order was already bound to an
	// application.
	ErrPaymentReused = errors.New("payment already used for another application")

	// ErrDuplicateApplication is returned when the (email, program) pair
	// already has an application.
	ErrDuplicateApplication = repo.ErrDuplicateApplication

	// ErrApplicationsClosed is returned when the program is inactive or past
	// its deadline.
	ErrApplicationsClosed = errors.New("program is not accepting applications")

	// ErrNoPaymentRequired is returned when an order is requested for a free
	// program.
	ErrNoPaymentRequired = errors.New("program does not require payment")

	// ErrPaymentsDisabled is returned when no gateway is configured.
	ErrPaymentsDisabled = errors.New("payments are not configured")

	// ErrInvalidStatus is returned for an unknown workflow status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrTransitionNotAllowed is returned when the active policy rejects the
	// requested transition.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")

	// ErrConcurrentUpdate is returned when another transition changed the
	// application first.
	ErrConcurrentUpdate = repo.ErrStatusChanged

	// ErrInvalidDocumentKind is returned for an unknown document kind.
	ErrInvalidDocumentKind = errors.New("unknown document kind")

	// ErrDocumentDenied is matched by every *DocumentDeniedError.
	ErrDocumentDenied = errors.New("document not available")
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// DocumentDeniedError explains why a document cannot be issued yet.
type DocumentDeniedError struct {
	Kind     domain.DocumentKind
	Reason   string
	UnlockAt *time.Time // set when the document unlocks on a known date
}

func (e *DocumentDeniedError) Error() string {
	return fmt.Sprintf("%s not available: %s", e.Kind, e.Reason)
}

// Unwrap lets errors.Is(err, ErrDocumentDenied) match.
func (e *DocumentDeniedError) Unwrap() error { return ErrDocumentDenied }
