// Application HTTP handlers (public).
//
// This file exposes the applicant-facing endpoints:
//   - POST /applications                      (free submission, JSON or multipart)
//   - POST /internships/submit-application    (payment-verified submission)
//   - POST /applications/verify               (status lookup by email + code)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/http/middleware"
	"github.com/tbourn/internship-backend/internal/services"
	"github.com/tbourn/internship-backend/internal/uploads"
)

// resumeField is the multipart field carrying the resume file.
const resumeField = "resume"

//
// DTOs
//

// SubmitApplicationRequest is the applicant payload. As multipart form data
// the same field names are used, plus an optional `resume` file.
type SubmitApplicationRequest struct {
	ProgramID   string `json:"program_id"  form:"program_id"  example:"0b6f2c1e-1f2a-4d6b-9c38-5a9e1f0c7d21"`
	Name        string `json:"name"        form:"name"        example:"Asha Verma"`
	Email       string `json:"email"       form:"email"       example:"asha@example.com"`
	Phone       string `json:"phone"       form:"phone"       example:"+91 98765 43210"`
	Institution string `json:"institution" form:"institution" example:"IIT Delhi"`
	Skills      string `json:"skills"      form:"skills"      example:"Go, SQL"`
	Message     string `json:"message"     form:"message"`
}

func (r SubmitApplicationRequest) input() services.ApplicantInput {
	return services.ApplicantInput{
		ProgramID:   r.ProgramID,
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		Institution: r.Institution,
		Skills:      r.Skills,
		Message:     r.Message,
	}
}

// PaidSubmissionRequest is the applicant payload plus the gateway callback.
type PaidSubmissionRequest struct {
	SubmitApplicationRequest
	OrderID   string `json:"razorpay_order_id"   example:"order_N8f3kq2"`
	PaymentID string `json:"razorpay_payment_id" example:"pay_N8f4Xa1"`
	Signature string `json:"razorpay_signature"  example:"3f1c...e9"`
}

// VerifyRequest looks an application up by its public code.
type VerifyRequest struct {
	Email         string `json:"email"         binding:"required" example:"asha@example.com"`
	ApplicationID string `json:"applicationId" binding:"required" example:"K7QX2M9P"`
}

// ApplicationCreatedResponse is returned on successful submission.
type ApplicationCreatedResponse struct {
	ApplicationID string               `json:"applicationId" example:"K7QX2M9P"`
	Status        domain.Status        `json:"status" example:"applied"`
	PaymentStatus domain.PaymentStatus `json:"payment_status" example:"not_required"`
	Application   *domain.Application  `json:"application"`
}

func created(app *domain.Application) ApplicationCreatedResponse {
	return ApplicationCreatedResponse{
		ApplicationID: app.Code,
		Status:        app.Status,
		PaymentStatus: app.Payment.Status,
		Application:   app,
	}
}

//
// Handlers
//

// SubmitApplication godoc
// @ID          submitApplication
// @Summary     Submit an application
// @Description Free submission path. Accepts JSON, or multipart form data with an optional `resume` file (PDF or Word, max 5 MiB).
// @Tags        Applications
// @Accept      json,mpfd
// @Produce     json
//
// @Param       body    body      handlers.SubmitApplicationRequest  true   "Applicant"
// @Param       resume  formData  file                               false  "Resume (PDF/DOC/DOCX)"
//
// @Success     201  {object}  handlers.ApplicationCreatedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Program not found"
// @Failure     409  {object}  handlers.ErrorResponse  "ALREADY_REGISTERED or applications closed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /applications [post]
func (h *Handlers) SubmitApplication(c *gin.Context) {
	var req SubmitApplicationRequest
	multipart := strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm)
	var err error
	if multipart {
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	in := req.input()
	if multipart {
		ref, err := h.saveResume(c)
		if err != nil {
			writeError(c, err)
			return
		}
		in.ResumeRef = ref
	}

	app, err := h.apps.Submit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, created(app))
}

// saveResume stores the optional resume part. A missing part is not an error.
func (h *Handlers) saveResume(c *gin.Context) (string, error) {
	fh, err := c.FormFile(resumeField)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", &services.ValidationError{Fields: map[string]string{resumeField: "could not read upload"}}
	}
	if h.resumes == nil {
		return "", &services.ValidationError{Fields: map[string]string{resumeField: "uploads are disabled"}}
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	ref, err := h.resumes.Save(c.Request.Context(), f)
	switch {
	case errors.Is(err, uploads.ErrTooLarge), errors.Is(err, uploads.ErrUnsupportedType), errors.Is(err, uploads.ErrEmpty):
		return "", &services.ValidationError{Fields: map[string]string{resumeField: err.Error()}}
	case err != nil:
		return "", err
	}
	return ref, nil
}

// SubmitPaidApplication godoc
// @ID          submitPaidApplication
// @Summary     Submit an application with a verified payment
// @Description Verifies the gateway signature over the order and payment ids, binds the payment to the order created for the program, and creates the application. Nothing is written when verification fails. Send an Idempotency-Key to make retries safe: a replay returns the original application with Idempotency-Replayed: true.
// @Tags        Applications
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                            false  "Client retry key"  example(4b9d6f2e-submit)
// @Param       body             body    handlers.PaidSubmissionRequest    true   "Applicant and payment callback"
//
// @Success     201  {object}  handlers.ApplicationCreatedResponse
// @Header      201  {string}  Idempotency-Replayed  "true when the response is a replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation or PAYMENT_VERIFICATION_FAILED"
// @Failure     404  {object}  handlers.ErrorResponse  "Program not found"
// @Failure     409  {object}  handlers.ErrorResponse  "ALREADY_REGISTERED or payment reused"
// @Failure     503  {object}  handlers.ErrorResponse  "Payments not configured"
// @Router      /internships/submit-application [post]
func (h *Handlers) SubmitPaidApplication(c *gin.Context) {
	ctx := c.Request.Context()

	var req PaidSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Idempotency (replay path).
	scope := middleware.IdempotencyScope(c)
	key, hasKey := idempotencyKey(c)
	if hasKey {
		if prev := h.apps.Replay(ctx, scope, key); prev != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, created(prev))
			return
		}
	}

	app, err := h.apps.SubmitPaid(ctx, services.PaidSubmitInput{
		ApplicantInput: req.input(),
		OrderID:        req.OrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if hasKey {
		h.apps.Remember(ctx, scope, key, app.ID, http.StatusCreated, h.IdempotencyTTL)
	}
	ok(c, http.StatusCreated, created(app))
}

// VerifyApplication godoc
// @ID          verifyApplication
// @Summary     Look up an application
// @Description Returns status, history and document availability for the application identified by its public code and the applicant email. A wrong pair answers 404, never 403.
// @Tags        Applications
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.VerifyRequest  true  "Lookup"
//
// @Success     200  {object}  services.VerifyResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Application not found"
// @Router      /applications/verify [post]
func (h *Handlers) VerifyApplication(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and applicationId are required")
		return
	}
	res, err := h.apps.Verify(c.Request.Context(), req.Email, req.ApplicationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, res)
}

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header when the validator is not mounted.
func idempotencyKey(c *gin.Context) (string, bool) {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k, true
	}
	if v := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); v != "" {
		return v, true
	}
	return "", false
}
