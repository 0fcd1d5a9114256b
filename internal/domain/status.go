package domain

import (
	"strings"
)

// Status is the workflow state of an application. Values are stored
// lowercase; ParseStatus accepts any casing.
type Status string

const (
	StatusApplied     Status = "applied"
	StatusShortlisted Status = "shortlisted"
	StatusSelected    Status = "selected"
	StatusRejected    Status = "rejected"
	StatusCompleted   Status = "completed"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []Status{StatusApplied, StatusShortlisted, StatusSelected, StatusRejected, StatusCompleted}

// ParseStatus normalizes s (trim, lowercase) and reports whether it names a
// known state.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// PaymentStatus is the state of an application's payment sub-record.
type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentFailed      PaymentStatus = "failed"
	PaymentWaived      PaymentStatus = "waived"
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentAdminExempt PaymentStatus = "admin_exempt"
)

// PaymentStatuses lists every payment state.
var PaymentStatuses = []PaymentStatus{
	PaymentPending, PaymentPaid, PaymentFailed, PaymentWaived, PaymentNotRequired, PaymentAdminExempt,
}

// ParsePaymentStatus normalizes s and accepts both "not-required" and
// "not_required" spellings.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	ps := PaymentStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range PaymentStatuses {
		if ps == known {
			return ps, true
		}
	}
	return "", false
}

// Creator tags who created an application.
type Creator string

const (
	CreatedByApplicant Creator = "applicant"
	CreatedByAdmin     Creator = "admin"
)

// DocumentKind names a downloadable credential.
type DocumentKind string

const (
	DocOfferLetter    DocumentKind = "offer-letter"
	DocTaskAssignment DocumentKind = "task-assignment"
	DocCertificate    DocumentKind = "certificate"
)

// DocumentKinds lists the artifacts in issuance order.
var DocumentKinds = []DocumentKind{DocOfferLetter, DocTaskAssignment, DocCertificate}

// ParseDocumentKind reports whether s names a known document kind.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	k := DocumentKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DocumentKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}
