package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/repo"
)

func TestCreateOrder_RecordsOrder(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	ctx := context.Background()

	res, err := f.pay.CreateOrder(ctx, p.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.Amount != 49900 || res.Key != "rzp_test_key" || res.OrderID == "" {
		t.Fatalf("unexpected order: %+v", res)
	}
	stored, err := repo.GetPaymentOrder(ctx, f.db, res.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if stored.ProgramID != p.ID || stored.Status != domain.OrderCreated {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
	if !strings.HasPrefix(stored.Receipt, "rcpt_") || len(stored.Receipt) > 40 {
		t.Fatalf("bad receipt %q", stored.Receipt)
	}
	if len(f.gateway.Orders) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(f.gateway.Orders))
	}
}

func TestCreateOrder_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	free := seedProgram(t, f.db, 0)
	paid := seedProgram(t, f.db, 49900)

	if _, err := f.pay.CreateOrder(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.pay.CreateOrder(ctx, "missing"); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}
	if _, err := f.pay.CreateOrder(ctx, free.ID); !errors.Is(err, ErrNoPaymentRequired) {
		t.Fatalf("expected ErrNoPaymentRequired, got %v", err)
	}

	f.gateway.Err = errors.New("gateway down")
	if _, err := f.pay.CreateOrder(ctx, paid.ID); err == nil || err.Error() != "gateway down" {
		t.Fatalf("expected gateway error, got %v", err)
	}
	f.gateway.Err = nil

	f.pay.Gateway = nil
	if _, err := f.pay.CreateOrder(ctx, paid.ID); !errors.Is(err, ErrPaymentsDisabled) {
		t.Fatalf("expected ErrPaymentsDisabled, got %v", err)
	}
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	app, _ := f.apps.Submit(ctx, applicant(p.ID, "slot@example.com"))
	_, _ = f.workflow.Transition(ctx, app.ID, "selected", "admin", "")

	av, err := f.pay.Availability(ctx, p.ID)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if !av.AcceptingApplications || av.FilledSlots != 1 || av.RemainingSlots != 4 {
		t.Fatalf("unexpected availability: %+v", av)
	}
	if _, err := f.pay.Availability(ctx, "missing"); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}
}
