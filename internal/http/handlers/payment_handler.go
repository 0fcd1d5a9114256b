// Payment and program HTTP handlers (public).
//
//   - POST /payments/create-order           (gateway order for a program fee)
//   - GET  /programs/{id}/availability      (eligibility and remaining slots)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest names the program to pay for.
type CreateOrderRequest struct {
	ProgramID string `json:"programId" binding:"required" example:"0b6f2c1e-1f2a-4d6b-9c38-5a9e1f0c7d21"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Create a payment order
// @Description Creates a gateway order for the program's fee. The returned key and order id open the checkout; the signed callback is then sent to /internships/submit-application.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateOrderRequest  true  "Program"
//
// @Success     200  {object}  services.OrderResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or program is free"
// @Failure     404  {object}  handlers.ErrorResponse  "Program not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Applications closed"
// @Failure     503  {object}  handlers.ErrorResponse  "Payments not configured"
// @Router      /payments/create-order [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ProgramID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "programId is required")
		return
	}
	res, err := h.pay.CreateOrder(c.Request.Context(), strings.TrimSpace(req.ProgramID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, res)
}

// ProgramAvailability godoc
// @ID          programAvailability
// @Summary     Program availability
// @Description Reports whether the program accepts applications now, its effective deadline, fee and slot counts.
// @Tags        Programs
// @Produce     json
//
// @Param       id  path  string  true  "Program ID"
//
// @Success     200  {object}  services.ProgramAvailability
// @Failure     404  {object}  handlers.ErrorResponse  "Program not found"
// @Router      /programs/{id}/availability [get]
func (h *Handlers) ProgramAvailability(c *gin.Context) {
	res, err := h.pay.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
