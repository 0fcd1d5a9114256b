// Package services – WorkflowService
//
// This file implements the admin-driven status workflow. Each transition
// appends a history entry, moves the current status, and applies the
// capacity-ledger effect of the edge in one transaction. Emails and admin
// notifications follow the commit on the best-effort side channel.
//
// The side effects of an edge are computed by EffectsFor, a pure function of
// (from, to), so that the permissive default policy can be swapped for a
// stricter one without touching the effect logic.
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
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/observability"
	"github.com/tbourn/internship-backend/internal/repo"
)

// Effects are the side effects of one status edge.
type Effects struct {
	IncrementLedger  bool
	DecrementLedger  bool
	SelectionEmail   bool
	CertificateEmail bool
}

// EffectsFor returns the side effects of moving from -> to. Effects fire only
// on the edges into or out of "selected" and into "completed".
func EffectsFor(from, to domain.Status) Effects {
	return Effects{
		IncrementLedger:  from != domain.StatusSelected && to == domain.StatusSelected,
		DecrementLedger:  from == domain.StatusSelected && to != domain.StatusSelected,
		SelectionEmail:   from != domain.StatusSelected && to == domain.StatusSelected,
		CertificateEmail: from != domain.StatusCompleted && to == domain.StatusCompleted,
	}
}

// TransitionPolicy decides which edges an admin may take.
type TransitionPolicy interface {
	Allow(from, to domain.Status) bool
}

// PermissivePolicy allows any known status to move to any other. Admins use
// it to correct mistakes.
type PermissivePolicy struct{}

// Allow implements TransitionPolicy.
func (PermissivePolicy) Allow(_, to domain.Status) bool {
	_, ok := domain.ParseStatus(string(to))
	return ok
}

// StrictPolicy only allows the forward lifecycle edges.
type StrictPolicy struct{}

var lifecycleEdges = map[domain.Status][]domain.Status{
	domain.StatusApplied:     {domain.StatusShortlisted, domain.StatusSelected, domain.StatusRejected},
	domain.StatusShortlisted: {domain.StatusSelected, domain.StatusRejected},
	domain.StatusSelected:    {domain.StatusRejected, domain.StatusCompleted},
}

// Allow implements TransitionPolicy.
func (StrictPolicy) Allow(from, to domain.Status) bool {
	for _, next := range lifecycleEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WorkflowService applies status transitions.
type WorkflowService struct {
	DB       *gorm.DB
	Ledger   ledger.Store
	Notifier *notify.Notifier
	Policy   TransitionPolicy

	// TEST SEAM
	Now func() time.Time
}

// NewWorkflowService wires a WorkflowService. strict selects StrictPolicy.
func NewWorkflowService(db *gorm.DB, l ledger.Store, n *notify.Notifier, strict bool) *WorkflowService {
	var p TransitionPolicy = PermissivePolicy{}
	if strict {
		p = StrictPolicy{}
	}
	return &WorkflowService{DB: db, Ledger: l, Notifier: n, Policy: p, Now: time.Now}
}

// Transition moves application id to newStatus on behalf of actor. The
// returned application is re-read after commit.
func (s *WorkflowService) Transition(ctx context.Context, id, newStatus, actor, comment string) (*domain.Application, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "Transition",
		trace.WithAttributes(
			attribute.String("application.id", id),
			attribute.String("status.to", newStatus),
		),
	)
	defer span.End()

	to, ok := domain.ParseStatus(newStatus)
	if !ok {
		return nil, ErrInvalidStatus
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "admin"
	}

	var (
		app  *domain.Application
		from domain.Status
		eff  Effects
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		app, err = repo.GetApplication(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrApplicationNotFound
			}
			return err
		}
		from = app.Status
		if !s.policy().Allow(from, to) {
			return ErrTransitionNotAllowed
		}
		if err := repo.AppendStatusChange(ctx, tx, &domain.StatusChange{
			ID:            uuid.NewString(),
			ApplicationID: app.ID,
			Status:        to,
			Actor:         actor,
			Comment:       strings.TrimSpace(comment),
			At:            s.now(),
		}); err != nil {
			return err
		}
		if err := repo.UpdateApplicationStatus(ctx, tx, app.ID, from, to); err != nil {
			return err
		}
		eff = EffectsFor(from, to)
		return s.applyLedger(ctx, tx, app.ProgramID, eff)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("status.from", string(from)))

	updated, err := repo.GetApplication(ctx, s.DB, app.ID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, updated, from, to, actor, eff)
	return updated, nil
}

// applyLedger moves the program's filled count for eff inside tx.
func (s *WorkflowService) applyLedger(ctx context.Context, tx *gorm.DB, programID *string, eff Effects) error {
	if programID == nil || s.Ledger == nil {
		return nil
	}
	l := s.Ledger.WithTx(tx)
	switch {
	case eff.IncrementLedger:
		return l.Increment(ctx, *programID)
	case eff.DecrementLedger:
		return l.Decrement(ctx, *programID)
	}
	return nil
}

// dispatch fires the post-commit side channel for one transition.
func (s *WorkflowService) dispatch(ctx context.Context, app *domain.Application, from, to domain.Status, actor string, eff Effects) {
	observability.Transitions.WithLabelValues(string(from), string(to)).Inc()
	if s.Notifier == nil {
		return
	}
	s.Notifier.StatusChanged(ctx, app, from, to, actor)
	if eff.SelectionEmail {
		s.Notifier.Selected(ctx, app)
	}
	if eff.CertificateEmail {
		s.Notifier.CertificateAvailable(ctx, app)
	}
}

func (s *WorkflowService) policy() TransitionPolicy {
	if s.Policy == nil {
		return PermissivePolicy{}
	}
	return s.Policy
}

func (s *WorkflowService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
