// Document HTTP handler (public).
//
//   - GET /documents/{kind}/{applicationId}?email=
//
// The (application code, email) pair is the capability token. The response
// is the PDF itself, never a JSON wrapper around it.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DownloadDocument godoc
// @ID          downloadDocument
// @Summary     Download a document
// @Description Streams the offer letter, task assignment or certificate as a PDF once its gate opens. A locked document answers 403 DOCUMENT_LOCKED with a reason and, for certificates, the unlock date.
// @Tags        Documents
// @Produce     application/pdf
// @Produce     json
//
// @Param       kind           path   string  true  "Document kind"  Enums(offer-letter, task-assignment, certificate)
// @Param       applicationId  path   string  true  "Application code"  example(K7QX2M9P)
// @Param       email          query  string  true  "Applicant email"
//
// @Success     200  {file}    file
// @Header      200  {string}  Content-Disposition  "attachment; filename=..."
// @Failure     400  {object}  handlers.ErrorResponse  "Email missing"
// @Failure     403  {object}  handlers.ErrorResponse  "DOCUMENT_LOCKED"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown kind or application"
// @Router      /documents/{kind}/{applicationId} [get]
func (h *Handlers) DownloadDocument(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email query parameter is required")
		return
	}
	art, err := h.docs.Fetch(c.Request.Context(), c.Param("kind"), c.Param("applicationId"), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, art.ContentType, art.Bytes)
}
