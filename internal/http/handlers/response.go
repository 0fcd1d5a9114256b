// Package handlers provides HTTP handler implementations for the public and
// admin API.
//
// This file defines the standard response utilities used across all
// endpoints: the error envelope, the single error translation funnel
// (writeError), and helpers for success responses.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error formatting and logs 5xx responses with the
//     request-scoped logger.
//   - Service errors are never mapped inline in handlers; they go through
//     writeError so every endpoint answers the same error the same way.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "ALREADY_REGISTERED",
//	  "message": "an application for this program already exists for this email"
//	}
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Per-field validation messages, keyed by JSON field name
	Fields map[string]string `json:"fields,omitempty"`
	// Set on DOCUMENT_LOCKED when the document unlocks on a known date
	UnlockAt *time.Time `json:"unlock_at,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	abortWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func abortWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), used by the router for fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// writeError translates a service error into the HTTP response.
//
// Unknown errors become a 500 whose message does not leak the cause; the
// cause is attached to the gin context so the access log records it.
func writeError(c *gin.Context, err error) {
	var (
		verr   *services.ValidationError
		denied *services.DocumentDeniedError
	)
	switch {
	case errors.As(err, &verr):
		abortWith(c, http.StatusBadRequest, ErrorResponse{
			Code: ErrCodeValidation, Message: "validation failed", Fields: verr.Fields,
		})
	case errors.As(err, &denied):
		abortWith(c, http.StatusForbidden, ErrorResponse{
			Code: ErrCodeDocumentLocked, Message: denied.Reason, UnlockAt: denied.UnlockAt,
		})
	case errors.Is(err, services.ErrDuplicateApplication):
		fail(c, http.StatusConflict, ErrCodeAlreadyRegistered, "an application for this program already exists for this email")
	case errors.Is(err, services.ErrSignatureMismatch):
		fail(c, http.StatusBadRequest, ErrCodePaymentVerification, "payment signature verification failed")
	case errors.Is(err, services.ErrOrderMismatch):
		fail(c, http.StatusBadRequest, ErrCodePaymentVerification, "payment order does not match the program")
	case errors.Is(err, services.ErrPaymentReused):
		fail(c, http.StatusConflict, ErrCodePaymentReused, "payment already used for another application")
	case errors.Is(err, services.ErrProgramNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "program not found")
	case errors.Is(err, services.ErrApplicationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "application not found")
	case errors.Is(err, services.ErrApplicationsClosed):
		fail(c, http.StatusConflict, ErrCodeApplicationsClosed, "program is not accepting applications")
	case errors.Is(err, services.ErrNoPaymentRequired):
		fail(c, http.StatusBadRequest, ErrCodeNoPaymentRequired, "program does not require payment")
	case errors.Is(err, services.ErrPaymentsDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodePaymentsUnavailable, "payments are not configured")
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid status")
	case errors.Is(err, services.ErrInvalidDocumentKind):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown document kind")
	case errors.Is(err, services.ErrTransitionNotAllowed):
		fail(c, http.StatusConflict, ErrCodeTransitionNotAllowed, "status transition not allowed")
	case errors.Is(err, services.ErrConcurrentUpdate):
		fail(c, http.StatusConflict, ErrCodeConflict, "application was modified concurrently, retry")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
