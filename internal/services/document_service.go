// Package services – DocumentService
//
// This file implements the document gate: the availability predicate of each
// downloadable credential and the capability-token fetch keyed by
// (application code, email). A successful fetch renders the PDF in memory and
// only then records the download, on the background runner, so a failed
// render never touches the flags and a slow flag write never delays the
// response.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/internship-backend/internal/documents"
	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/observability"
	"github.com/tbourn/internship-backend/internal/repo"
)

// Availability is the gate decision for one document kind.
type Availability struct {
	Kind      domain.DocumentKind `json:"kind"`
	Available bool                `json:"available"`
	Reason    string              `json:"reason,omitempty"`
	UnlockAt  *time.Time          `json:"unlock_at,omitempty"`
}

// Artifact is a rendered document ready to stream.
type Artifact struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Gate evaluates the availability predicate of kind for app at now. hasTask
// reports whether the application's program has an active task set.
func Gate(kind domain.DocumentKind, app *domain.Application, hasTask bool, now time.Time) Availability {
	out := Availability{Kind: kind}
	placed := app.Status == domain.StatusSelected || app.Status == domain.StatusCompleted

	switch kind {
	case domain.DocOfferLetter:
		switch {
		case !placed:
			out.Reason = "the offer letter is available once the application is selected"
		case app.Payment.Status != domain.PaymentPaid:
			out.Reason = "the offer letter requires a completed payment"
		default:
			out.Available = true
		}
	case domain.DocTaskAssignment:
		switch {
		case !placed:
			out.Reason = "the task assignment is available once the application is selected"
		case !hasTask:
			out.Reason = "no task assignment has been published for this program yet"
		default:
			out.Available = true
		}
	case domain.DocCertificate:
		switch {
		case app.Status != domain.StatusCompleted:
			out.Reason = "the certificate is available once the internship is completed"
		case app.Program != nil && now.UTC().Before(app.Program.EndDate.UTC()):
			unlock := app.Program.EndDate.UTC()
			out.UnlockAt = &unlock
			out.Reason = "the certificate will be available on " + unlock.Format("02 January 2006")
		default:
			out.Available = true
		}
	default:
		out.Reason = "unknown document kind"
	}
	return out
}

// DocumentService issues documents behind the gate.
type DocumentService struct {
	DB       *gorm.DB
	Renderer *documents.Renderer
	Runner   *notify.Background

	// TEST SEAM
	Now func() time.Time
}

// NewDocumentService wires a DocumentService.
func NewDocumentService(db *gorm.DB, r *documents.Renderer, runner *notify.Background) *DocumentService {
	if runner == nil {
		runner = &notify.Background{}
	}
	return &DocumentService{DB: db, Renderer: r, Runner: runner, Now: time.Now}
}

// Availability evaluates every document kind for app.
func (s *DocumentService) Availability(ctx context.Context, app *domain.Application) ([]Availability, error) {
	task, err := s.activeTask(ctx, app)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Availability, 0, len(domain.DocumentKinds))
	for _, kind := range domain.DocumentKinds {
		out = append(out, Gate(kind, app, task != nil, now))
	}
	return out, nil
}

// Fetch renders document kind for the application identified by (code,
// email). A wrong email is indistinguishable from an unknown code.
func (s *DocumentService) Fetch(ctx context.Context, kind, code, email string) (*Artifact, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Fetch",
		trace.WithAttributes(
			attribute.String("document.kind", kind),
			attribute.String("application.code", code),
		),
	)
	defer span.End()

	k, ok := domain.ParseDocumentKind(kind)
	if !ok {
		return nil, ErrInvalidDocumentKind
	}
	app, err := lookupByCodeEmail(ctx, s.DB, code, email)
	if err != nil {
		return nil, err
	}
	task, err := s.activeTask(ctx, app)
	if err != nil {
		return nil, err
	}

	gate := Gate(k, app, task != nil, s.now())
	if !gate.Available {
		observability.Documents.WithLabelValues(string(k), "denied").Inc()
		return nil, &DocumentDeniedError{Kind: k, Reason: gate.Reason, UnlockAt: gate.UnlockAt}
	}

	b, err := s.Renderer.RenderBytes(k, documentData(app, task))
	if err != nil {
		observability.Documents.WithLabelValues(string(k), "error").Inc()
		return nil, err
	}
	observability.Documents.WithLabelValues(string(k), "served").Inc()

	appID, at := app.ID, s.now()
	s.Runner.Go(ctx, "documents.mark_downloaded", func(ctx context.Context) error {
		return repo.MarkDocumentDownloaded(ctx, s.DB, appID, k, at)
	})

	return &Artifact{
		Filename:    documents.Filename(k, app.Code),
		ContentType: documents.ContentType,
		Bytes:       b,
	}, nil
}

func (s *DocumentService) activeTask(ctx context.Context, app *domain.Application) (*domain.DomainTask, error) {
	if app.ProgramID == nil {
		return nil, nil
	}
	t, err := repo.GetActiveDomainTask(ctx, s.DB, *app.ProgramID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func (s *DocumentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// lookupByCodeEmail resolves the capability token. Email comparison is case
// insensitive.
func lookupByCodeEmail(ctx context.Context, db *gorm.DB, code, email string) (*domain.Application, error) {
	code = strings.TrimSpace(code)
	email = strings.TrimSpace(email)
	if code == "" || email == "" {
		return nil, ErrApplicationNotFound
	}
	app, err := repo.GetApplicationByCode(ctx, db, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(app.Email, email) {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

func documentData(app *domain.Application, task *domain.DomainTask) documents.Data {
	d := documents.Data{
		Name:        app.Name,
		Code:        app.Code,
		Email:       app.Email,
		Institution: app.Institution,
	}
	if p := app.Program; p != nil {
		d.ProgramTitle = p.Title
		d.Domain = p.Domain
		d.StartDate = p.StartDate
		d.EndDate = p.EndDate
	}
	if task != nil {
		d.TaskTitle = task.Title
		// Items is admin-maintained; a malformed list renders without items.
		_ = json.Unmarshal(task.Items, &d.Tasks)
	}
	return d
}
