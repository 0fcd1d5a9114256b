// Package ledger owns the per-program slot counters and the apply-eligibility
// window.
//
// FilledSlots moves only on workflow edges into and out of "selected" (and on
// admin deletion of a selected application). Updates are single conditional
// SQL statements so concurrent status changes on the same program cannot lose
// writes. Increment is deliberately uncapped: a program can be over-booked by
// admin action.
package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// ErrProgramNotFound is returned when the counter row does not exist.
var ErrProgramNotFound = errors.New("ledger: program not found")

// EffectiveDeadline is the later of the application deadline and the start
// date. It keeps a deadline configured before the start date from locking out
// every applicant.
func EffectiveDeadline(p *domain.Program) time.Time {
	if p.StartDate.After(p.ApplicationDeadline) {
		return p.StartDate
	}
	return p.ApplicationDeadline
}

// EndOfDay returns the last instant of t's UTC calendar day.
func EndOfDay(t time.Time) time.Time {
	d := t.UTC().Truncate(24 * time.Hour)
	return d.Add(24*time.Hour - time.Nanosecond)
}

// CanApply reports whether p accepts applications at now.
func CanApply(p *domain.Program, now time.Time) bool {
	if p == nil || !p.IsActive {
		return false
	}
	return !now.UTC().After(EndOfDay(EffectiveDeadline(p)))
}

// Counts is a snapshot of a program's slot counters.
type Counts struct {
	Total  int
	Filled int
}

// Remaining never goes below zero even when over-booked.
func (c Counts) Remaining() int {
	if c.Filled >= c.Total {
		return 0
	}
	return c.Total - c.Filled
}

// Store moves slot counters.
type Store interface {
	Increment(ctx context.Context, programID string) error
	Decrement(ctx context.Context, programID string) error
	Counts(ctx context.Context, programID string) (Counts, error)
	// WithTx binds the store to an open transaction.
	WithTx(tx *gorm.DB) Store
}

// GormStore implements Store over the programs table.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{DB: db} }

// WithTx implements Store.
func (s *GormStore) WithTx(tx *gorm.DB) Store { return &GormStore{DB: tx} }

// Increment adds one filled slot.
func (s *GormStore) Increment(ctx context.Context, programID string) error {
	res := s.DB.WithContext(ctx).
		Model(&domain.Program{}).
		Where("id = ?", programID).
		Update("filled_slots", gorm.Expr("filled_slots + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

// Decrement removes one filled slot, clamped at zero.
func (s *GormStore) Decrement(ctx context.Context, programID string) error {
	res := s.DB.WithContext(ctx).
		Model(&domain.Program{}).
		Where("id = ?", programID).
		Update("filled_slots", gorm.Expr("CASE WHEN filled_slots > 0 THEN filled_slots - 1 ELSE 0 END"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

// Counts reads the current counters.
func (s *GormStore) Counts(ctx context.Context, programID string) (Counts, error) {
	var row struct {
		TotalSlots  int
		FilledSlots int
	}
	res := s.DB.WithContext(ctx).
		Model(&domain.Program{}).
		Select("total_slots", "filled_slots").
		Where("id = ?", programID).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return Counts{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Counts{}, ErrProgramNotFound
	}
	return Counts{Total: row.TotalSlots, Filled: row.FilledSlots}, nil
}
