package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/internship-backend/internal/documents"
	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/ledger"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/payments"
	"github.com/tbourn/internship-backend/internal/repo"
	"github.com/tbourn/internship-backend/internal/services"
	"github.com/tbourn/internship-backend/internal/uploads"
)

// ---------- test DB + server ----------

const testSecret = "handler_test_secret"

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testServer struct {
	r        *gin.Engine
	db       *gorm.DB
	apps     *services.ApplicationService
	docs     *services.DocumentService
	runner   *notify.Background
	mailer   *notify.MemoryMailer
	verifier *payments.Verifier
	resumes  *uploads.DiskStore
}

// newTestServer wires real services on an in-memory database and mounts the
// handlers without auth; admin auth is covered by the middleware and router
// tests.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	runner := &notify.Background{}
	mailer := &notify.MemoryMailer{}
	n := notify.NewNotifier(mailer, notify.NewGormSink(db, time.Hour), runner, "Acme Labs")
	wf := services.NewWorkflowService(db, ledger.NewGormStore(db), n, false)
	docs := services.NewDocumentService(db, documents.NewRenderer("Acme Labs"), runner)
	v := payments.NewVerifier(testSecret)
	apps := services.NewApplicationService(db, &repo.CheckThenInsert{}, v, wf, docs, n)
	pay := services.NewPaymentService(db, &payments.FakeGateway{}, "rzp_test_key")
	t.Cleanup(runner.Wait)

	resumes, err := uploads.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("resume store: %v", err)
	}

	h := New(apps, wf, docs, pay, resumes)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/applications", h.SubmitApplication)
	r.POST("/payments/create-order", h.CreateOrder)
	r.POST("/internships/submit-application", h.SubmitPaidApplication)
	r.POST("/applications/verify", h.VerifyApplication)
	r.GET("/documents/:kind/:applicationId", h.DownloadDocument)
	r.GET("/programs/:id/availability", h.ProgramAvailability)

	r.PUT("/applications/:id/status", h.UpdateStatus)
	r.POST("/admin/applications", h.CreateApplication)
	r.GET("/applications", h.ListApplications)
	r.GET("/applications/stats/overview", h.Overview)
	r.GET("/applications/:id", h.GetApplication)
	r.PUT("/applications/:id/notes", h.UpdateNotes)
	r.DELETE("/applications/:id", h.DeleteApplication)

	return &testServer{
		r: r, db: db, apps: apps, docs: docs, runner: runner,
		mailer: mailer, verifier: v, resumes: resumes,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return out
}

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

func applicantBody(programID, email string) map[string]any {
	return map[string]any{
		"program_id":  programID,
		"name":        "Jane Doe",
		"email":       email,
		"phone":       "+91 98765 43210",
		"institution": "IIT Madras",
		"skills":      "go, sql",
	}
}

func countApplications(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Application{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
