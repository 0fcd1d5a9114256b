// Admin HTTP handlers.
//
// Every route here sits behind middleware.AdminAuth; the verified actor is
// recorded on history entries and in logs.
//
//   - PUT    /applications/{id}/status
//   - POST   /admin/applications
//   - GET    /applications                (paginated, filters, weak ETag)
//   - GET    /applications/{id}
//   - PUT    /applications/{id}/notes
//   - DELETE /applications/{id}
//   - GET    /applications/stats/overview
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/repo"
	"github.com/tbourn/internship-backend/internal/services"
	"github.com/tbourn/internship-backend/internal/utils"
)

//
// DTOs
//

// UpdateStatusRequest moves an application to a new status.
type UpdateStatusRequest struct {
	Status  string `json:"status"  binding:"required" example:"selected"`
	Comment string `json:"comment" binding:"max=2000" example:"Strong Go background"`
}

// AdminCreateRequest enters an application on an applicant's behalf.
type AdminCreateRequest struct {
	SubmitApplicationRequest
	Status        string `json:"status"         example:"selected"`
	PaymentStatus string `json:"payment_status" example:"admin_exempt"`
	Notes         string `json:"notes"`
}

// UpdateNotesRequest replaces the admin notes.
type UpdateNotesRequest struct {
	Notes string `json:"notes" example:"Called on 12 May, confirmed availability"`
}

// ListApplicationsResponse wraps a page of applications.
type ListApplicationsResponse struct {
	Applications []domain.Application `json:"applications"`
	Pagination   Pagination           `json:"pagination"`
}

// actor returns the authenticated admin, or "admin" when auth ran without
// identifying claims.
func actor(c *gin.Context) string {
	if a := middleware.Actor(c); a != "" {
		return a
	}
	return middleware.RoleAdmin
}

//
// Handlers
//

// UpdateStatus godoc
// @ID          updateApplicationStatus
// @Summary     Change application status
// @Description Applies a status transition. Entering "selected" takes a program slot and leaving it gives one back; the history entry and slot change commit together.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                        true  "Application ID"  format(uuid)
// @Param       body  body  handlers.UpdateStatusRequest  true  "New status"
//
// @Success     200  {object}  domain.Application
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Application not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Transition not allowed or concurrent update"
// @Router      /applications/{id}/status [put]
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	app, err := h.flow.Transition(c.Request.Context(), c.Param("id"), req.Status, actor(c), strings.TrimSpace(req.Comment))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, app)
}

// CreateApplication godoc
// @ID          adminCreateApplication
// @Summary     Create an application as admin
// @Description Creates an application with an explicit initial status and payment status. The submission window is not enforced; duplicates still are.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.AdminCreateRequest  true  "Application"
//
// @Success     201  {object}  handlers.ApplicationCreatedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse  "ALREADY_REGISTERED"
// @Router      /admin/applications [post]
func (h *Handlers) CreateApplication(c *gin.Context) {
	var req AdminCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	app, err := h.apps.CreateByAdmin(c.Request.Context(), services.AdminCreateInput{
		ApplicantInput: req.input(),
		Status:         req.Status,
		PaymentStatus:  req.PaymentStatus,
		Notes:          req.Notes,
	}, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, created(app))
}

// ListApplications godoc
// @ID          listApplications
// @Summary     List applications (paginated)
// @Description Returns a page of applications, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       status         query   string  false  "Filter by status"  Enums(applied, shortlisted, selected, rejected, completed)
// @Param       program_id     query   string  false  "Filter by program"
// @Param       email          query   string  false  "Filter by applicant email"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListApplicationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad filter"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /applications [get]
func (h *Handlers) ListApplications(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	f := repo.ApplicationFilter{
		ProgramID: strings.TrimSpace(c.Query("program_id")),
		Email:     utils.NormalizeEmail(c.Query("email")),
	}
	if raw := c.Query("status"); raw != "" {
		st, valid := domain.ParseStatus(raw)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
			return
		}
		f.Status = st
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.apps.ListStats(ctx, f); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"applications:%s:%d:%d:%d:%d"`, filterKey(f), page, pageSize, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.apps.ListPage(ctx, f, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListApplicationsResponse{
		Applications: items,
		Pagination:   newPagination(page, pageSize, total),
	})
}

// filterKey folds the filter into the ETag so different filters never share
// a validator.
func filterKey(f repo.ApplicationFilter) string {
	return string(f.Status) + "|" + f.ProgramID + "|" + f.Email
}

// GetApplication godoc
// @ID          getApplication
// @Summary     Get an application
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Application ID"  format(uuid)
//
// @Success     200  {object}  domain.Application
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Application not found"
// @Router      /applications/{id} [get]
func (h *Handlers) GetApplication(c *gin.Context) {
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, app)
}

// UpdateNotes godoc
// @ID          updateApplicationNotes
// @Summary     Replace admin notes
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                       true  "Application ID"  format(uuid)
// @Param       body  body  handlers.UpdateNotesRequest  true  "Notes"
//
// @Success     200  {object}  domain.Application
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Application not found"
// @Router      /applications/{id}/notes [put]
func (h *Handlers) UpdateNotes(c *gin.Context) {
	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	app, err := h.apps.UpdateNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, app)
}

// DeleteApplication godoc
// @ID          deleteApplication
// @Summary     Delete an application
// @Description Hard-deletes the application and its history. A selected application gives its slot back.
// @Tags        Admin
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Application ID"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Application not found"
// @Router      /applications/{id} [delete]
func (h *Handlers) DeleteApplication(c *gin.Context) {
	if err := h.apps.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// Overview godoc
// @ID          applicationsOverview
// @Summary     Application counts
// @Description Counts applications by status and payment status, optionally for one program.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       program_id  query  string  false  "Restrict to one program"
//
// @Success     200  {object}  repo.Overview
// @Router      /applications/stats/overview [get]
func (h *Handlers) Overview(c *gin.Context) {
	res, err := h.apps.Stats(c.Request.Context(), c.Query("program_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
