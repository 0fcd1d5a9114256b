package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// ErrDuplicateApplication is returned when the (email, program) pair already
// has an application.
var ErrDuplicateApplication = errors.New("application already exists for this email and program")

// Guard modes accepted by NewDuplicateGuard.
const (
	GuardCheck = "check"
	GuardClaim = "claim"
)

// DuplicateGuard inserts an application unless one already exists for the
// same (email, program) pair. within, when non-nil, runs in the same
// transaction as the insert and can veto it by returning an error.
type DuplicateGuard interface {
	Insert(ctx context.Context, db *gorm.DB, app *domain.Application, within func(tx *gorm.DB) error) error
}

// NewDuplicateGuard returns the guard for mode; unknown modes fall back to
// check-then-insert.
func NewDuplicateGuard(mode string) DuplicateGuard {
	if strings.EqualFold(strings.TrimSpace(mode), GuardClaim) {
		return &ClaimInsert{}
	}
	return &CheckThenInsert{}
}

// CheckThenInsert queries for an existing row and inserts when none is found.
// The two steps are not atomic: two concurrent submissions for the same pair
// can both pass the check.
type CheckThenInsert struct {
	// TEST SEAM: runs between the check and the insert.
	afterCheck func()
}

// Insert implements DuplicateGuard.
func (g *CheckThenInsert) Insert(ctx context.Context, db *gorm.DB, app *domain.Application, within func(tx *gorm.DB) error) error {
	if err := checkExisting(ctx, db, app); err != nil {
		return err
	}
	if g.afterCheck != nil {
		g.afterCheck()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := CreateApplication(ctx, tx, app); err != nil {
			return err
		}
		if within != nil {
			return within(tx)
		}
		return nil
	})
}

// ClaimInsert writes a claim row keyed by (email, program) in the same
// transaction as the application. The unique index on the claim turns a
// concurrent second submission into ErrDuplicateApplication.
type ClaimInsert struct {
	// TEST SEAM: runs between the pre-check and the transaction.
	afterCheck func()
}

// Insert implements DuplicateGuard.
func (g *ClaimInsert) Insert(ctx context.Context, db *gorm.DB, app *domain.Application, within func(tx *gorm.DB) error) error {
	// Rows written before the claim table existed have no claim; the pre-check
	// still catches those.
	if err := checkExisting(ctx, db, app); err != nil {
		return err
	}
	if g.afterCheck != nil {
		g.afterCheck()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := &domain.ApplicationClaim{
			Email:         strings.ToLower(strings.TrimSpace(app.Email)),
			ProgramKey:    programKey(app.ProgramID),
			ApplicationID: app.ID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(claim).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateApplication
			}
			return err
		}
		if err := CreateApplication(ctx, tx, app); err != nil {
			return err
		}
		if within != nil {
			return within(tx)
		}
		return nil
	})
}

func checkExisting(ctx context.Context, db *gorm.DB, app *domain.Application) error {
	_, err := FindApplicationByEmailProgram(ctx, db, app.Email, app.ProgramID)
	switch {
	case err == nil:
		return ErrDuplicateApplication
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

// programKey maps a missing program to a fixed key so the unique index still
// applies to program-less applications.
func programKey(id *string) string {
	if id == nil || *id == "" {
		return "-"
	}
	return *id
}
