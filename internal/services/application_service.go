// Package services – ApplicationService
//
// This file implements the application registry: the three creation paths
// (free public submission, payment-verified submission, admin creation), the
// public status lookup, and the admin read/edit/delete operations.
//
// Every creation goes through the configured repo.DuplicateGuard and is
// assigned its identity code strictly before the first write. Notifications
// and confirmation emails are dispatched after commit and can never fail the
// submission.
//
// Observability: public methods are OpenTelemetry-instrumented and every
// creation attempt is counted by path and outcome.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/identity"
	"github.com/tbourn/internship-backend/internal/ledger"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/observability"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
)

// codeAttempts bounds regeneration after an identity code collides at insert.
const codeAttempts = 3

// PaidSubmitInput is a submission carrying a gateway payment callback.
type PaidSubmitInput struct {
	ApplicantInput
	OrderID   string `json:"razorpay_order_id"   validate:"required,max=64"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=64"`
	Signature string `json:"razorpay_signature"  validate:"required,max=256"`
}

// AdminCreateInput is an application entered by an admin. Empty Status means
// "applied"; empty PaymentStatus means "admin_exempt".
type AdminCreateInput struct {
	ApplicantInput
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Notes         string `json:"notes" validate:"max=4000"`
}

// ProgramSummary is the program part of a status lookup.
type ProgramSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Domain    string    `json:"domain"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// VerifyResult is the public status view of one application. It never
// carries document bytes.
type VerifyResult struct {
	ApplicationID string                `json:"applicationId"`
	Name          string                `json:"name"`
	Status        domain.Status         `json:"status"`
	PaymentStatus domain.PaymentStatus  `json:"payment_status"`
	Program       *ProgramSummary       `json:"program,omitempty"`
	History       []domain.StatusChange `json:"history"`
	Documents     []Availability        `json:"documents"`
	CreatedAt     time.Time             `json:"created_at"`
}

// ApplicationService owns application creation and admin maintenance.
type ApplicationService struct {
	DB       *gorm.DB
	Guard    repo.DuplicateGuard
	IDs      *identity.Generator
	Verifier *payments.Verifier // nil when payments are not configured
	Workflow *WorkflowService
	Docs     *DocumentService
	Notifier *notify.Notifier

	// TEST SEAM
	Now func() time.Time
}

// NewApplicationService wires an ApplicationService with a fresh identity
// generator.
func NewApplicationService(db *gorm.DB, guard repo.DuplicateGuard, v *payments.Verifier, wf *WorkflowService, docs *DocumentService, n *notify.Notifier) *ApplicationService {
	return &ApplicationService{
		DB:       db,
		Guard:    guard,
		IDs:      identity.New(),
		Verifier: v,
		Workflow: wf,
		Docs:     docs,
		Notifier: n,
		Now:      time.Now,
	}
}

// Submit creates an application through the free public path.
func (s *ApplicationService) Submit(ctx context.Context, in ApplicantInput) (app *domain.Application, err error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("program.id", in.ProgramID)),
	)
	defer span.End()
	defer countSubmission("free", &err)

	in.normalize()
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	now := s.now()

	var program *domain.Program
	payment := domain.Payment{Status: domain.PaymentNotRequired, ChangedAt: &now}
	if in.ProgramID != "" {
		if program, err = loadProgram(ctx, s.DB, in.ProgramID); err != nil {
			return nil, err
		}
		if !ledger.CanApply(program, now) {
			return nil, ErrApplicationsClosed
		}
		if program.FeeAmount > 0 {
			payment = domain.Payment{Status: domain.PaymentPending, Amount: program.FeeAmount, Currency: program.Currency, ChangedAt: &now}
		}
	}

	app = s.newApplication(in, program, payment, domain.CreatedByApplicant, "applicant", now)
	if err := s.insert(ctx, app, nil); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("application.code", app.Code))
	s.notifier().ApplicationCreated(ctx, app)
	return app, nil
}

// SubmitPaid verifies the payment callback and creates the application with
// payment "paid". A bad signature returns before anything is read or written.
func (s *ApplicationService) SubmitPaid(ctx context.Context, in PaidSubmitInput) (app *domain.Application, err error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "SubmitPaid",
		trace.WithAttributes(
			attribute.String("program.id", in.ProgramID),
			attribute.String("order.id", in.OrderID),
		),
	)
	defer span.End()
	defer countSubmission("paid", &err)

	if s.Verifier == nil {
		return nil, ErrPaymentsDisabled
	}
	in.normalize()
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	if in.ProgramID == "" {
		return nil, invalid("program_id", "is required")
	}
	if err := s.Verifier.Verify(in.OrderID, in.PaymentID, in.Signature); err != nil {
		return nil, ErrSignatureMismatch
	}

	order, err := repo.GetPaymentOrder(ctx, s.DB, in.OrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderMismatch
		}
		return nil, err
	}
	if order.ProgramID != in.ProgramID {
		return nil, ErrOrderMismatch
	}
	if order.Status != domain.OrderCreated {
		return nil, ErrPaymentReused
	}

	program, err := loadProgram(ctx, s.DB, in.ProgramID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !ledger.CanApply(program, now) {
		return nil, ErrApplicationsClosed
	}

	payment := domain.Payment{
		Status:         domain.PaymentPaid,
		OrderID:        order.OrderID,
		TransactionRef: in.PaymentID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		PaidAt:         &now,
		ChangedAt:      &now,
	}
	app = s.newApplication(in.ApplicantInput, program, payment, domain.CreatedByApplicant, "applicant", now)
	err = s.insert(ctx, app, func(tx *gorm.DB) error {
		if err := repo.ConsumePaymentOrder(ctx, tx, order.OrderID, app.ID); err != nil {
			if errors.Is(err, repo.ErrOrderConsumed) {
				return ErrPaymentReused
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("application.code", app.Code))
	s.notifier().ApplicationCreated(ctx, app)
	return app, nil
}

// CreateByAdmin creates an application on behalf of an admin, skipping the
// application window. A non-initial status fires the workflow effects of
// applied -> status exactly as a transition would.
func (s *ApplicationService) CreateByAdmin(ctx context.Context, in AdminCreateInput, actor string) (app *domain.Application, err error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "CreateByAdmin",
		trace.WithAttributes(
			attribute.String("program.id", in.ProgramID),
			attribute.String("status", in.Status),
		),
	)
	defer span.End()
	defer countSubmission("admin", &err)

	in.normalize()
	in.Notes = strings.TrimSpace(in.Notes)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	status := domain.StatusApplied
	if strings.TrimSpace(in.Status) != "" {
		st, ok := domain.ParseStatus(in.Status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		status = st
	}
	paymentStatus := domain.PaymentAdminExempt
	if strings.TrimSpace(in.PaymentStatus) != "" {
		ps, ok := domain.ParsePaymentStatus(in.PaymentStatus)
		if !ok {
			return nil, invalid("payment_status", "is invalid")
		}
		paymentStatus = ps
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "admin"
	}

	var program *domain.Program
	if in.ProgramID != "" {
		if program, err = loadProgram(ctx, s.DB, in.ProgramID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	payment := domain.Payment{Status: paymentStatus, ChangedAt: &now}
	if program != nil {
		payment.Amount = program.FeeAmount
		payment.Currency = program.Currency
	}
	app = s.newApplication(in.ApplicantInput, program, payment, domain.CreatedByAdmin, actor, now)
	app.Notes = in.Notes

	eff := EffectsFor(domain.StatusApplied, status)
	var within func(tx *gorm.DB) error
	if status != domain.StatusApplied {
		app.Status = status
		// Ordered after the initial entry.
		app.History = append(app.History, domain.StatusChange{
			ID:            uuid.NewString(),
			ApplicationID: app.ID,
			Status:        status,
			Actor:         actor,
			Comment:       "created with status " + string(status),
			At:            now.Add(time.Microsecond),
		})
		within = func(tx *gorm.DB) error {
			return s.workflow().applyLedger(ctx, tx, app.ProgramID, eff)
		}
	}

	if err := s.insert(ctx, app, within); err != nil {
		return nil, err
	}
	s.notifier().ApplicationCreated(ctx, app)
	if status != domain.StatusApplied {
		s.workflow().dispatch(ctx, app, domain.StatusApplied, status, actor, eff)
	}
	return app, nil
}

// Verify returns the public status view for (email, code).
func (s *ApplicationService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("application.code", code)),
	)
	defer span.End()

	app, err := lookupByCodeEmail(ctx, s.DB, code, email)
	if err != nil {
		return nil, err
	}
	docs, err := s.Docs.Availability(ctx, app)
	if err != nil {
		return nil, err
	}
	out := &VerifyResult{
		ApplicationID: app.Code,
		Name:          app.Name,
		Status:        app.Status,
		PaymentStatus: app.Payment.Status,
		History:       app.History,
		Documents:     docs,
		CreatedAt:     app.CreatedAt,
	}
	if p := app.Program; p != nil {
		out.Program = &ProgramSummary{ID: p.ID, Title: p.Title, Domain: p.Domain, StartDate: p.StartDate, EndDate: p.EndDate}
	}
	return out, nil
}

// Get loads one application with history and program.
func (s *ApplicationService) Get(ctx context.Context, id string) (*domain.Application, error) {
	app, err := repo.GetApplication(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

// ListPage returns a page of applications matching f and the total count.
// It applies defaults for invalid page/pageSize.
func (s *ApplicationService) ListPage(ctx context.Context, f repo.ApplicationFilter, page, pageSize int) ([]domain.Application, int64, error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountApplications(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Application{}, 0, nil
	}
	items, err := repo.ListApplicationsPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ListStats returns the (count, last update) pair for conditional listings.
func (s *ApplicationService) ListStats(ctx context.Context, f repo.ApplicationFilter) (int64, *time.Time, error) {
	return repo.ApplicationsStats(ctx, s.DB, f)
}

// UpdateNotes replaces the admin notes.
func (s *ApplicationService) UpdateNotes(ctx context.Context, id, notes string) (*domain.Application, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > 4000 {
		return nil, invalid("notes", "must be at most 4000 characters")
	}
	if err := repo.UpdateApplicationNotes(ctx, s.DB, id, notes); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete hard-deletes an application. A selected application gives its slot
// back first, in the same transaction.
func (s *ApplicationService) Delete(ctx context.Context, id, actor string) error {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("application.id", id)),
	)
	defer span.End()

	var app *domain.Application
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		app, err = repo.GetApplication(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrApplicationNotFound
			}
			return err
		}
		if app.Status == domain.StatusSelected {
			if err := s.workflow().applyLedger(ctx, tx, app.ProgramID, Effects{DecrementLedger: true}); err != nil {
				return err
			}
		}
		return repo.DeleteApplication(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("application_id", app.ID).
		Str("code", app.Code).
		Str("status", string(app.Status)).
		Str("actor", actor).
		Msg("application deleted")
	return nil
}

// Stats counts applications by status and payment status, optionally for a
// single program.
func (s *ApplicationService) Stats(ctx context.Context, programID string) (*repo.Overview, error) {
	return repo.ApplicationsOverview(ctx, s.DB, strings.TrimSpace(programID))
}

// Replay returns the application recorded for an idempotency key, or nil.
func (s *ApplicationService) Replay(ctx context.Context, scope, key string) *domain.Application {
	rec, err := repo.GetIdempotency(ctx, s.DB, scope, key, s.now())
	if err != nil {
		return nil
	}
	app, err := repo.GetApplication(ctx, s.DB, rec.ApplicationID)
	if err != nil {
		return nil
	}
	return app
}

// Remember records app under an idempotency key. Best effort: a lost race
// with a concurrent retry is not an error.
func (s *ApplicationService) Remember(ctx context.Context, scope, key, appID string, status int, ttl time.Duration) {
	if _, err := repo.CreateIdempotency(ctx, s.DB, scope, key, appID, status, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		log.Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
	}
}

// newApplication builds the unsaved aggregate with its initial history entry.
func (s *ApplicationService) newApplication(in ApplicantInput, p *domain.Program, payment domain.Payment, by domain.Creator, actor string, now time.Time) *domain.Application {
	id := uuid.NewString()
	app := &domain.Application{
		ID:          id,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Institution: in.Institution,
		Skills:      in.Skills,
		Message:     in.Message,
		ResumeRef:   in.ResumeRef,
		Status:      domain.StatusApplied,
		Payment:     payment,
		CreatedBy:   by,
		CreatedAt:   now,
		History: []domain.StatusChange{{
			ID:            uuid.NewString(),
			ApplicationID: id,
			Status:        domain.StatusApplied,
			Actor:         actor,
			At:            now,
		}},
	}
	if p != nil {
		pid := p.ID
		app.ProgramID = &pid
		app.Program = p
	}
	return app
}

// insert assigns the identity code and writes app through the duplicate
// guard, regenerating the code when the insert collides on it.
func (s *ApplicationService) insert(ctx context.Context, app *domain.Application, within func(tx *gorm.DB) error) error {
	exists := func(ctx context.Context, code string) (bool, error) {
		return repo.CodeExists(ctx, s.DB, code)
	}
	for attempt := 1; ; attempt++ {
		code, err := s.ids().Generate(ctx, exists)
		if err != nil {
			return err
		}
		app.Code = code
		err = s.guard().Insert(ctx, s.DB, app, within)
		if errors.Is(err, repo.ErrCodeConflict) && attempt < codeAttempts {
			log.Warn().Str("code", code).Int("attempt", attempt).Msg("identity code collided at insert, regenerating")
			continue
		}
		return err
	}
}

func (s *ApplicationService) guard() repo.DuplicateGuard {
	if s.Guard == nil {
		return &repo.CheckThenInsert{}
	}
	return s.Guard
}

func (s *ApplicationService) ids() *identity.Generator {
	if s.IDs == nil {
		return identity.New()
	}
	return s.IDs
}

func (s *ApplicationService) workflow() *WorkflowService {
	if s.Workflow == nil {
		return &WorkflowService{}
	}
	return s.Workflow
}

func (s *ApplicationService) notifier() *notify.Notifier {
	if s.Notifier == nil {
		return &notify.Notifier{}
	}
	return s.Notifier
}

func (s *ApplicationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func countSubmission(path string, errp *error) {
	observability.Submissions.WithLabelValues(path, submissionOutcome(*errp)).Inc()
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrDuplicateApplication):
		return "duplicate"
	case errors.Is(err, ErrApplicationsClosed):
		return "closed"
	case errors.Is(err, ErrSignatureMismatch), errors.Is(err, ErrOrderMismatch), errors.Is(err, ErrPaymentReused):
		return "payment_failed"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrProgramNotFound), errors.Is(err, ErrInvalidStatus):
		return "invalid"
	default:
		return "error"
	}
}
