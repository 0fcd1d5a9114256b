// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are the stable, machine-readable part of ErrorResponse; clients branch
// on them. Generic codes are lowercase snake_case and mirror HTTP status
// semantics. The three codes applicant-facing clients are known to match on
// (ALREADY_REGISTERED, PAYMENT_VERIFICATION_FAILED, DOCUMENT_LOCKED) are
// uppercase and must not change.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "DOCUMENT_LOCKED",
//	  "message": "certificate becomes available on 30 June 2026",
//	  "unlock_at": "2026-06-30T00:00:00Z"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	ErrCodePaymentVerification  = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeDocumentLocked       = "DOCUMENT_LOCKED"
	ErrCodePaymentReused        = "payment_reused"
	ErrCodeApplicationsClosed   = "applications_closed"
	ErrCodeNoPaymentRequired    = "no_payment_required"
	ErrCodePaymentsUnavailable  = "payments_unavailable"
	ErrCodeTransitionNotAllowed = "transition_not_allowed"
)
