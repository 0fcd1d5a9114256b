package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/internship-backend/internal/domain"
)

func TestApplicationsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := ApplicationsStats(context.Background(), db, ApplicationFilter{})
	if err == nil {
		t.Fatalf("expected error due to missing applications table")
	}
}

func TestApplicationsStats_ZeroRows(t *testing.T) {
	db := newFullDB(t)
	count, maxAt, err := ApplicationsStats(context.Background(), db, ApplicationFilter{})
	if err != nil {
		t.Fatalf("ApplicationsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestApplicationsStats_Success_FilterAndMax(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	p := seedProgram(t, db, time.Now().UTC().AddDate(0, 0, 10))

	a1 := newApp(&p.ID, "a@example.com", domain.StatusApplied)
	a2 := newApp(&p.ID, "b@example.com", domain.StatusSelected)
	a3 := newApp(nil, "c@example.com", domain.StatusApplied)
	for _, a := range []*domain.Application{a1, a2, a3} {
		if err := CreateApplication(ctx, db, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	if err := db.Model(&domain.Application{}).Where("id = ?", a2.ID).UpdateColumn("updated_at", t2).Error; err != nil {
		t.Fatalf("set updated_at: %v", err)
	}
	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	if err := db.Model(&domain.Application{}).Where("id = ?", a1.ID).UpdateColumn("updated_at", t1).Error; err != nil {
		t.Fatalf("set updated_at: %v", err)
	}

	count, maxAt, err := ApplicationsStats(ctx, db, ApplicationFilter{ProgramID: p.ID})
	if err != nil {
		t.Fatalf("ApplicationsStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t2, maxAt)
	}
}

func TestApplicationsOverview_CountsEveryStatus(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	p := seedProgram(t, db, time.Now().UTC().AddDate(0, 0, 10))

	apps := []*domain.Application{
		newApp(&p.ID, "a@example.com", domain.StatusApplied),
		newApp(&p.ID, "b@example.com", domain.StatusApplied),
		newApp(&p.ID, "c@example.com", domain.StatusSelected),
		newApp(nil, "d@example.com", domain.StatusRejected),
	}
	apps[2].Payment.Status = domain.PaymentPaid
	for _, a := range apps {
		if err := CreateApplication(ctx, db, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	ov, err := ApplicationsOverview(ctx, db, "")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Total != 4 || ov.ByStatus[domain.StatusApplied] != 2 || ov.ByStatus[domain.StatusSelected] != 1 ||
		ov.ByStatus[domain.StatusRejected] != 1 || ov.ByStatus[domain.StatusCompleted] != 0 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
	if ov.ByPayment[domain.PaymentPaid] != 1 || ov.ByPayment[domain.PaymentPending] != 3 {
		t.Fatalf("unexpected payment breakdown: %+v", ov.ByPayment)
	}
	if len(ov.ByStatus) != len(domain.Statuses) {
		t.Fatalf("every status should be present, got %v", ov.ByStatus)
	}

	scoped, err := ApplicationsOverview(ctx, db, p.ID)
	if err != nil || scoped.Total != 3 {
		t.Fatalf("program-scoped overview: %+v err=%v", scoped, err)
	}
}
