package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/repo"
)

// ---------- Gate() ----------

func TestGate_Matrix(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := &domain.Program{EndDate: now.Add(-time.Hour)}
	running := &domain.Program{EndDate: now.AddDate(0, 1, 0)}

	mk := func(st domain.Status, pay domain.PaymentStatus, p *domain.Program) *domain.Application {
		return &domain.Application{Status: st, Payment: domain.Payment{Status: pay}, Program: p}
	}
	tests := []struct {
		name    string
		kind    domain.DocumentKind
		app     *domain.Application
		hasTask bool
		want    bool
	}{
		{"offer applied paid", domain.DocOfferLetter, mk(domain.StatusApplied, domain.PaymentPaid, ended), false, false},
		{"offer selected pending", domain.DocOfferLetter, mk(domain.StatusSelected, domain.PaymentPending, ended), false, false},
		{"offer selected exempt", domain.DocOfferLetter, mk(domain.StatusSelected, domain.PaymentAdminExempt, ended), false, false},
		{"offer selected paid", domain.DocOfferLetter, mk(domain.StatusSelected, domain.PaymentPaid, ended), false, true},
		{"offer completed paid", domain.DocOfferLetter, mk(domain.StatusCompleted, domain.PaymentPaid, ended), false, true},
		{"task shortlisted", domain.DocTaskAssignment, mk(domain.StatusShortlisted, domain.PaymentPaid, ended), true, false},
		{"task selected no task", domain.DocTaskAssignment, mk(domain.StatusSelected, domain.PaymentNotRequired, ended), false, false},
		{"task selected with task", domain.DocTaskAssignment, mk(domain.StatusSelected, domain.PaymentNotRequired, ended), true, true},
		{"cert selected", domain.DocCertificate, mk(domain.StatusSelected, domain.PaymentPaid, ended), false, false},
		{"cert completed running", domain.DocCertificate, mk(domain.StatusCompleted, domain.PaymentPaid, running), false, false},
		{"cert completed ended", domain.DocCertificate, mk(domain.StatusCompleted, domain.PaymentPaid, ended), false, true},
		{"cert completed no program", domain.DocCertificate, mk(domain.StatusCompleted, domain.PaymentNotRequired, nil), false, true},
		{"unknown kind", domain.DocumentKind("resume"), mk(domain.StatusCompleted, domain.PaymentPaid, ended), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Gate(tt.kind, tt.app, tt.hasTask, now)
			if got.Available != tt.want {
				t.Fatalf("Available = %v, want %v (reason %q)", got.Available, tt.want, got.Reason)
			}
			if !got.Available && got.Reason == "" {
				t.Fatalf("a denied document needs a reason")
			}
		})
	}
}

func TestGate_CertificateUnlockDate(t *testing.T) {
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	app := &domain.Application{Status: domain.StatusCompleted, Program: &domain.Program{EndDate: end}}

	got := Gate(domain.DocCertificate, app, false, end.Add(-time.Second))
	if got.Available || got.UnlockAt == nil || !got.UnlockAt.Equal(end) {
		t.Fatalf("expected locked until %v, got %+v", end, got)
	}
	if got.Reason != "the certificate will be available on 30 June 2026" {
		t.Fatalf("unexpected reason %q", got.Reason)
	}
	if !Gate(domain.DocCertificate, app, false, end).Available {
		t.Fatalf("certificate must unlock at the end date")
	}
}

// ---------- Fetch() ----------

func TestFetch_CertificateLockedUntilProgramEnds(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	app, _ := f.apps.Submit(ctx, applicant(p.ID, "cert@example.com"))
	_, _ = f.workflow.Transition(ctx, app.ID, "selected", "admin", "")
	if _, err := f.workflow.Transition(ctx, app.ID, "completed", "admin", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := f.docs.Fetch(ctx, "certificate", app.Code, app.Email)
	var denied *DocumentDeniedError
	if !errors.As(err, &denied) || !errors.Is(err, ErrDocumentDenied) {
		t.Fatalf("expected *DocumentDeniedError, got %v", err)
	}
	if denied.UnlockAt == nil || !denied.UnlockAt.Equal(p.EndDate.UTC()) {
		t.Fatalf("expected unlock at %v, got %v", p.EndDate, denied.UnlockAt)
	}

	f.docs.Now = func() time.Time { return p.EndDate.Add(time.Hour) }
	art, err := f.docs.Fetch(ctx, "CERTIFICATE", app.Code, "CERT@example.com")
	if err != nil {
		t.Fatalf("Fetch after end date: %v", err)
	}
	if !bytes.HasPrefix(art.Bytes, []byte("%PDF")) || art.ContentType != "application/pdf" {
		t.Fatalf("expected a PDF, got %q", art.ContentType)
	}

	f.settle()
	got, _ := f.apps.Get(ctx, app.ID)
	if !got.CertificateDownloaded || got.CertificateDownloadedAt == nil {
		t.Fatalf("download flag not recorded: %+v", got)
	}
	if got.OfferLetterDownloaded {
		t.Fatalf("only the fetched kind may be flagged")
	}
}

func TestFetch_TaskAssignmentNeedsActiveTask(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	app, _ := f.apps.Submit(ctx, applicant(p.ID, "task@example.com"))
	_, _ = f.workflow.Transition(ctx, app.ID, "selected", "admin", "")

	if _, err := f.docs.Fetch(ctx, "task-assignment", app.Code, app.Email); !errors.Is(err, ErrDocumentDenied) {
		t.Fatalf("expected denial without a task set, got %v", err)
	}

	task := &domain.DomainTask{
		ProgramID: p.ID,
		Title:     "Week one",
		Items:     datatypes.JSON(`["Build a REST API","Write tests"]`),
		IsActive:  true,
	}
	if err := repo.CreateDomainTask(ctx, f.db, task); err != nil {
		t.Fatalf("CreateDomainTask: %v", err)
	}
	art, err := f.docs.Fetch(ctx, "task-assignment", app.Code, app.Email)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if art.Filename != "task-assignment-"+app.Code+".pdf" {
		t.Fatalf("unexpected filename %q", art.Filename)
	}
}

func TestFetch_LookupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, _ := f.apps.Submit(ctx, applicant("", "owner@example.com"))

	if _, err := f.docs.Fetch(ctx, "resume", app.Code, app.Email); !errors.Is(err, ErrInvalidDocumentKind) {
		t.Fatalf("expected ErrInvalidDocumentKind, got %v", err)
	}
	if _, err := f.docs.Fetch(ctx, "offer-letter", app.Code, "intruder@example.com"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound for wrong email, got %v", err)
	}
	if _, err := f.docs.Fetch(ctx, "offer-letter", "ZZZZZZZZ", app.Email); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound for unknown code, got %v", err)
	}
	if _, err := f.docs.Fetch(ctx, "offer-letter", "", ""); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound for empty token, got %v", err)
	}

	f.settle()
	got, _ := f.apps.Get(ctx, app.ID)
	if got.OfferLetterDownloaded {
		t.Fatalf("a failed fetch must not set download flags")
	}
}
