// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Application aggregate (the application row, its status history, and its
// download flags).
//
// All functions are context-aware and accept a *gorm.DB handle, so they work
// the same on the root handle and inside a transaction. They follow the
// "thin repository" approach: no business rules, only persistence and query
// composition.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations on the identity code surface as ErrCodeConflict.
//   - Other DB errors are returned as-is.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/internship-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrCodeConflict is returned when an insert collides on the identity code.
var ErrCodeConflict = errors.New("application code already taken")

// ErrStatusChanged is returned when a conditional status update lost a race.
var ErrStatusChanged = errors.New("application status changed concurrently")

// ApplicationFilter narrows admin listings. Empty fields match everything.
type ApplicationFilter struct {
	Status    domain.Status
	ProgramID string
	Email     string
}

func (f ApplicationFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ProgramID != "" {
		q = q.Where("program_id = ?", f.ProgramID)
	}
	if f.Email != "" {
		q = q.Where("email = ?", strings.ToLower(strings.TrimSpace(f.Email)))
	}
	return q
}

// CreateApplication inserts app together with its History entries. The
// Program association is never written from here.
func CreateApplication(ctx context.Context, db *gorm.DB, app *domain.Application) error {
	err := db.WithContext(ctx).Omit("Program").Create(app).Error
	if err != nil && isUniqueViolation(err) && strings.Contains(strings.ToLower(err.Error()), "applications.code") {
		return ErrCodeConflict
	}
	return err
}

// CodeExists reports whether any application already uses code.
func CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("code = ?", code).
		Count(&n).Error
	return n > 0, err
}

// FindApplicationByEmailProgram returns the existing application for the
// (email, program) pair, or ErrNotFound. A nil programID matches applications
// without a program.
func FindApplicationByEmailProgram(ctx context.Context, db *gorm.DB, email string, programID *string) (*domain.Application, error) {
	q := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email)))
	if programID == nil {
		q = q.Where("program_id IS NULL")
	} else {
		q = q.Where("program_id = ?", *programID)
	}
	var a domain.Application
	if err := q.Order("created_at asc").First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountApplicationsByEmailProgram counts rows for the pair. Used by tests
// that assert the duplicate guard behaviour.
func CountApplicationsByEmailProgram(ctx context.Context, db *gorm.DB, email string, programID *string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Application{}).Where("email = ?", strings.ToLower(strings.TrimSpace(email)))
	if programID == nil {
		q = q.Where("program_id IS NULL")
	} else {
		q = q.Where("program_id = ?", *programID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("at asc") }).
		Preload("Program")
}

// GetApplication loads an application by primary key with history and program.
func GetApplication(ctx context.Context, db *gorm.DB, id string) (*domain.Application, error) {
	var a domain.Application
	if err := withDetails(db.WithContext(ctx)).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetApplicationByCode loads an application by identity code. Codes are
// stored upper case.
func GetApplicationByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Application, error) {
	var a domain.Application
	err := withDetails(db.WithContext(ctx)).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountApplications returns the number of applications matching f.
func CountApplications(ctx context.Context, db *gorm.DB, f ApplicationFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Application{})).Count(&total).Error
	return total, err
}

// ListApplicationsPage returns a page of applications matching f, newest
// first, with their program attached.
func ListApplicationsPage(ctx context.Context, db *gorm.DB, f ApplicationFilter, offset, limit int) ([]domain.Application, error) {
	var out []domain.Application
	err := f.apply(db.WithContext(ctx)).
		Preload("Program").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateApplicationStatus moves the application from one status to another.
// It only matches a row still in from, so two concurrent transitions cannot
// both apply: the loser gets ErrStatusChanged.
func UpdateApplicationStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.Status) error {
	res := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Application{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStatusChanged
	}
	return nil
}

// AppendStatusChange appends one history entry.
func AppendStatusChange(ctx context.Context, db *gorm.DB, ch *domain.StatusChange) error {
	return db.WithContext(ctx).Create(ch).Error
}

// UpdateApplicationNotes replaces the admin notes.
func UpdateApplicationNotes(ctx context.Context, db *gorm.DB, id, notes string) error {
	res := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("id = ?", id).
		Update("notes", notes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var downloadColumns = map[domain.DocumentKind][2]string{
	domain.DocOfferLetter:    {"offer_letter_downloaded", "offer_letter_downloaded_at"},
	domain.DocTaskAssignment: {"task_assignment_downloaded", "task_assignment_downloaded_at"},
	domain.DocCertificate:    {"certificate_downloaded", "certificate_downloaded_at"},
}

// MarkDocumentDownloaded sets the flag for kind and overwrites its timestamp.
func MarkDocumentDownloaded(ctx context.Context, db *gorm.DB, id string, kind domain.DocumentKind, at time.Time) error {
	cols, ok := downloadColumns[kind]
	if !ok {
		return errors.New("unknown document kind " + string(kind))
	}
	res := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("id = ?", id).
		Updates(map[string]any{cols[0]: true, cols[1]: at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApplication hard-deletes the application with its history and any
// duplicate-guard claim.
func DeleteApplication(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("application_id = ?", id).Delete(&domain.StatusChange{}).Error; err != nil {
			return err
		}
		if err := tx.Where("application_id = ?", id).Delete(&domain.ApplicationClaim{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Application{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListSelectedStartingBetween returns selected applications whose program
// starts in [from, to).
func ListSelectedStartingBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Application, error) {
	var out []domain.Application
	err := db.WithContext(ctx).
		Joins("JOIN programs ON programs.id = applications.program_id").
		Where("applications.status = ?", domain.StatusSelected).
		Where("programs.start_date >= ? AND programs.start_date < ?", from.UTC(), to.UTC()).
		Preload("Program").
		Order("applications.created_at asc").
		Find(&out).Error
	return out, err
}

// isUniqueViolation matches the plain-text errors glebarez/sqlite returns for
// UNIQUE constraint failures.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
