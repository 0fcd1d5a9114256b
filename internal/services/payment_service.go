// Package services – PaymentService
//
// This file implements payment order creation and the public availability
// view of a program. An order is created on the gateway for the program's
// fee and recorded locally so that a verified payment can later be bound to
// the program it was paid for, exactly once.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/ledger"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
)

// OrderResult is what the client needs to open the gateway checkout.
type OrderResult struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// ProgramAvailability is the public eligibility view of a program.
type ProgramAvailability struct {
	ProgramID             string    `json:"program_id"`
	Title                 string    `json:"title"`
	Domain                string    `json:"domain"`
	AcceptingApplications bool      `json:"accepting_applications"`
	Deadline              time.Time `json:"deadline"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	TotalSlots            int       `json:"total_slots"`
	FilledSlots           int       `json:"filled_slots"`
	RemainingSlots        int       `json:"remaining_slots"`
	FeeAmount             int64     `json:"fee_amount"`
	Currency              string    `json:"currency"`
}

// PaymentService creates gateway orders.
type PaymentService struct {
	DB      *gorm.DB
	Gateway payments.Gateway // nil when payments are not configured
	KeyID   string           // public key handed to the checkout

	// TEST SEAM
	Now func() time.Time
}

// NewPaymentService wires a PaymentService.
func NewPaymentService(db *gorm.DB, gw payments.Gateway, keyID string) *PaymentService {
	return &PaymentService{DB: db, Gateway: gw, KeyID: keyID, Now: time.Now}
}

// CreateOrder opens a gateway order for the fee of programID.
func (s *PaymentService) CreateOrder(ctx context.Context, programID string) (*OrderResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "CreateOrder",
		trace.WithAttributes(attribute.String("program.id", programID)),
	)
	defer span.End()

	programID = strings.TrimSpace(programID)
	if programID == "" {
		return nil, invalid("programId", "is required")
	}
	p, err := loadProgram(ctx, s.DB, programID)
	if err != nil {
		return nil, err
	}
	if !ledger.CanApply(p, s.now()) {
		return nil, ErrApplicationsClosed
	}
	if p.FeeAmount <= 0 {
		return nil, ErrNoPaymentRequired
	}
	if s.Gateway == nil {
		return nil, ErrPaymentsDisabled
	}

	// Razorpay caps receipts at 40 characters.
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	order, err := s.Gateway.CreateOrder(ctx, p.FeeAmount, p.Currency, receipt, map[string]string{
		"program_id": p.ID,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := repo.CreatePaymentOrder(ctx, s.DB, &domain.PaymentOrder{
		OrderID:   order.ID,
		ProgramID: p.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Receipt:   receipt,
	}); err != nil {
		return nil, err
	}
	return &OrderResult{OrderID: order.ID, Amount: order.Amount, Currency: order.Currency, Key: s.KeyID}, nil
}

// Availability reports whether programID accepts applications and how many
// slots remain.
func (s *PaymentService) Availability(ctx context.Context, programID string) (*ProgramAvailability, error) {
	p, err := loadProgram(ctx, s.DB, programID)
	if err != nil {
		return nil, err
	}
	counts := ledger.Counts{Total: p.TotalSlots, Filled: p.FilledSlots}
	return &ProgramAvailability{
		ProgramID:             p.ID,
		Title:                 p.Title,
		Domain:                p.Domain,
		AcceptingApplications: ledger.CanApply(p, s.now()),
		Deadline:              ledger.EffectiveDeadline(p),
		StartDate:             p.StartDate,
		EndDate:               p.EndDate,
		TotalSlots:            counts.Total,
		FilledSlots:           counts.Filled,
		RemainingSlots:        counts.Remaining(),
		FeeAmount:             p.FeeAmount,
		Currency:              p.Currency,
	}, nil
}

func (s *PaymentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func loadProgram(ctx context.Context, db *gorm.DB, id string) (*domain.Program, error) {
	p, err := repo.GetProgram(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	return p, nil
}
