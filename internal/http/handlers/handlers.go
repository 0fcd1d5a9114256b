// Handler wiring.
//
// Handlers are transport-thin: they bind input, call application services,
// and translate results into HTTP responses. They depend on the narrow
// interfaces below, never on concrete service types.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/repo"
	"github.com/tbourn/internship-backend/internal/services"
	"github.com/tbourn/internship-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ApplicationService covers application creation, lookup and admin upkeep.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ApplicationService interface {
	Submit(ctx context.Context, in services.ApplicantInput) (*domain.Application, error)
	SubmitPaid(ctx context.Context, in services.PaidSubmitInput) (*domain.Application, error)
	CreateByAdmin(ctx context.Context, in services.AdminCreateInput, actor string) (*domain.Application, error)
	Verify(ctx context.Context, email, code string) (*services.VerifyResult, error)
	Get(ctx context.Context, id string) (*domain.Application, error)
	ListPage(ctx context.Context, f repo.ApplicationFilter, page, pageSize int) ([]domain.Application, int64, error)
	// ListStats returns (count, last update) for conditional listings.
	ListStats(ctx context.Context, f repo.ApplicationFilter) (int64, *time.Time, error)
	UpdateNotes(ctx context.Context, id, notes string) (*domain.Application, error)
	Delete(ctx context.Context, id, actor string) error
	Stats(ctx context.Context, programID string) (*repo.Overview, error)
	// Replay returns the application stored under an idempotency key, or nil.
	Replay(ctx context.Context, scope, key string) *domain.Application
	// Remember stores an idempotency record. Best effort.
	Remember(ctx context.Context, scope, key, appID string, status int, ttl time.Duration)
}

// WorkflowService moves applications between statuses.
type WorkflowService interface {
	Transition(ctx context.Context, id, newStatus, actor, comment string) (*domain.Application, error)
}

// DocumentService renders gated documents.
type DocumentService interface {
	Fetch(ctx context.Context, kind, code, email string) (*services.Artifact, error)
}

// PaymentService creates gateway orders and reports program availability.
type PaymentService interface {
	CreateOrder(ctx context.Context, programID string) (*services.OrderResult, error)
	Availability(ctx context.Context, programID string) (*services.ProgramAvailability, error)
}

// ResumeStore persists uploaded resumes and returns a reference to them.
type ResumeStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
}

//
// Handler wiring
//

// Handlers groups every HTTP endpoint.
type Handlers struct {
	apps    ApplicationService
	flow    WorkflowService
	docs    DocumentService
	pay     PaymentService
	resumes ResumeStore // nil disables resume uploads

	// IdempotencyTTL bounds how long a replayed submission is remembered.
	IdempotencyTTL time.Duration
}

// New constructs Handlers bound to the given services.
func New(apps ApplicationService, flow WorkflowService, docs DocumentService, pay PaymentService, resumes ResumeStore) *Handlers {
	return &Handlers{
		apps:           apps,
		flow:           flow,
		docs:           docs,
		pay:            pay,
		resumes:        resumes,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.BoundedInt(c.Query("page"), defaultPage, 1, 0)
	pageSize = utils.BoundedInt(c.Query("page_size"), defaultPageSize, 1, maxPageSize)
	return
}
