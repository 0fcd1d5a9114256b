package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/internship-backend/internal/domain"
)

// newTestDB opens a private in-memory database. A single connection keeps
// foreign_keys on for every statement and serializes writers.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newFullDB is newTestDB with every table migrated.
func newFullDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedProgram(t *testing.T, db *gorm.DB, start time.Time) *domain.Program {
	t.Helper()
	p := &domain.Program{
		Title: "Backend Engineering", Domain: "backend", TotalSlots: 5,
		StartDate: start, EndDate: start.AddDate(0, 2, 0), ApplicationDeadline: start.AddDate(0, 0, -1),
		FeeAmount: 49900, IsActive: true,
	}
	if err := CreateProgram(context.Background(), db, p); err != nil {
		t.Fatalf("seed program: %v", err)
	}
	return p
}

var codeSeq int

func newApp(programID *string, email string, status domain.Status) *domain.Application {
	codeSeq++
	id := uuid.NewString()
	now := time.Now().UTC()
	return &domain.Application{
		ID:          id,
		Code:        fmt.Sprintf("TEST%04d", codeSeq),
		ProgramID:   programID,
		Name:        "Jane Doe",
		Email:       email,
		Phone:       "+91 98765 43210",
		Institution: "IIT Madras",
		Skills:      "go, sql",
		Status:      status,
		CreatedBy:   domain.CreatedByApplicant,
		Payment:     domain.Payment{Status: domain.PaymentPending},
		History: []domain.StatusChange{{
			ID: uuid.NewString(), ApplicationID: id, Status: status, Actor: "applicant", At: now,
		}},
	}
}
