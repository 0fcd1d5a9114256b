// Package payments verifies gateway payment callbacks and creates gateway
// orders.
//
// A callback carries (order id, payment id, signature). The signature is the
// hex HMAC-SHA256 of "orderID|paymentID" keyed by the merchant secret. A
// verified callback authorizes the payment for the order it was created
// against; binding that order to an application payload is the caller's job.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when a callback signature does not match.
var ErrSignatureMismatch = errors.New("payment signature mismatch")

// ErrMissingSecret is returned when a Verifier has no key configured.
var ErrMissingSecret = errors.New("payment secret not configured")

// Verifier checks callback signatures with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier keyed by secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the expected signature for (orderID, paymentID).
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify fails closed: an empty secret, empty field, or any difference in the
// signature yields an error. The comparison is constant time.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	if len(v.secret) == 0 {
		return ErrMissingSecret
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}
	want := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(want), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}
