package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/internship-backend/internal/documents"
	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/ledger"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
)

// ---------- test helpers ----------

const testSecret = "test_secret"

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	apps     *ApplicationService
	workflow *WorkflowService
	docs     *DocumentService
	pay      *PaymentService
	mailer   *notify.MemoryMailer
	runner   *notify.Background
	verifier *payments.Verifier
	gateway  *payments.FakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	runner := &notify.Background{}
	mailer := &notify.MemoryMailer{}
	n := notify.NewNotifier(mailer, notify.NewGormSink(db, time.Hour), runner, "Acme Labs")
	wf := NewWorkflowService(db, ledger.NewGormStore(db), n, false)
	docs := NewDocumentService(db, documents.NewRenderer("Acme Labs"), runner)
	v := payments.NewVerifier(testSecret)
	gw := &payments.FakeGateway{}
	t.Cleanup(runner.Wait)
	return &fixture{
		db:       db,
		apps:     NewApplicationService(db, &repo.CheckThenInsert{}, v, wf, docs, n),
		workflow: wf,
		docs:     docs,
		pay:      NewPaymentService(db, gw, "rzp_test_key"),
		mailer:   mailer,
		runner:   runner,
		verifier: v,
		gateway:  gw,
	}
}

// settle waits for every background task started so far.
func (f *fixture) settle() { f.runner.Wait() }

func seedProgram(t *testing.T, db *gorm.DB, fee int64) *domain.Program {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 0, 10)
	p := &domain.Program{
		Title:               "Backend Engineering",
		Domain:              "Web Development",
		TotalSlots:          5,
		StartDate:           start,
		EndDate:             start.AddDate(0, 2, 0),
		ApplicationDeadline: start.AddDate(0, 0, -3),
		FeeAmount:           fee,
		IsActive:            true,
	}
	if err := repo.CreateProgram(context.Background(), db, p); err != nil {
		t.Fatalf("seed program: %v", err)
	}
	return p
}

func applicant(programID, email string) ApplicantInput {
	return ApplicantInput{
		ProgramID:   programID,
		Name:        "Jane Doe",
		Email:       email,
		Phone:       "+91 98765 43210",
		Institution: "IIT Madras",
		Skills:      "go, sql",
	}
}

func filled(t *testing.T, db *gorm.DB, programID string) int {
	t.Helper()
	c, err := ledger.NewGormStore(db).Counts(context.Background(), programID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	return c.Filled
}

// paidInput opens an order for p and signs a payment callback for it.
func (f *fixture) paidInput(t *testing.T, p *domain.Program, email string) PaidSubmitInput {
	t.Helper()
	order, err := f.pay.CreateOrder(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	paymentID := "pay_" + uuid.NewString()[:8]
	return PaidSubmitInput{
		ApplicantInput: applicant(p.ID, email),
		OrderID:        order.OrderID,
		PaymentID:      paymentID,
		Signature:      f.verifier.Sign(order.OrderID, paymentID),
	}
}
