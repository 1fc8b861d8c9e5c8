package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/tripdesk/backend/internal/application/billing"
)

// QuotationHandler handles quotation-related API endpoints
type QuotationHandler struct {
	BaseHandler
	quotationService *billingapp.QuotationService
}

// NewQuotationHandler creates a new QuotationHandler
func NewQuotationHandler(quotationService *billingapp.QuotationService) *QuotationHandler {
	return &QuotationHandler{
		quotationService: quotationService,
	}
}

// RejectQuotationRequest represents a request to reject a quotation
// @Description Request body for rejecting a quotation
type RejectQuotationRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Went with another agency"`
}

// ConvertQuotationRequest represents a request to convert a quotation into an invoice
// @Description Request body for converting an accepted quotation
type ConvertQuotationRequest struct {
	DueDate    *time.Time `json:"due_date"`
	BookingRef string     `json:"booking_ref" example:"BK-2026-0042"`
}

// Create godoc
// @Summary      Create a quotation
// @Description  Create a draft quotation for a lead
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Param        request body billingapp.CreateQuotationRequest true "Quotation creation request"
// @Success      201 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations [post]
func (h *QuotationHandler) Create(c *gin.Context) {
	var req billingapp.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	quotation, err := h.quotationService.CreateQuotation(c.Request.Context(), req, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, quotation)
}

// GetByID godoc
// @Summary      Get quotation by ID
// @Tags         quotations
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id} [get]
func (h *QuotationHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	quotation, err := h.quotationService.GetQuotation(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, quotation)
}

// List godoc
// @Summary      List quotations
// @Description  Retrieve a paginated list of quotations with optional filtering
// @Tags         quotations
// @Produce      json
// @Param        search query string false "Search term (quotation number, customer name)"
// @Param        lead_id query string false "Lead ID" format(uuid)
// @Param        status query string false "Quotation status" Enums(DRAFT, SENT, VIEWED, ACCEPTED, REJECTED, EXPIRED, CONVERTED)
// @Param        from_date query string false "Start date (ISO 8601)" format(date-time)
// @Param        to_date query string false "End date (ISO 8601)" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]billingapp.QuotationResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations [get]
func (h *QuotationHandler) List(c *gin.Context) {
	var filter billingapp.QuotationListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindingError(c, err)
		return
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	quotations, total, err := h.quotationService.ListQuotations(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, quotations, total, filter.Page, filter.PageSize)
}

// Update godoc
// @Summary      Update a quotation
// @Description  Edit quotation content; edits after sending record a revision entry
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Param        request body billingapp.UpdateQuotationRequest true "Quotation update request"
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id} [put]
func (h *QuotationHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	var req billingapp.UpdateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	quotation, err := h.quotationService.UpdateQuotation(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, quotation)
}

// Delete godoc
// @Summary      Delete a quotation
// @Description  Delete a quotation (only allowed in DRAFT status)
// @Tags         quotations
// @Param        id path string true "Quotation ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id} [delete]
func (h *QuotationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	if err := h.quotationService.DeleteDraftQuotation(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// Send godoc
// @Summary      Send a quotation
// @Description  Mark a quotation as sent to the customer (DRAFT to SENT)
// @Tags         quotations
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id}/send [post]
func (h *QuotationHandler) Send(c *gin.Context) {
	h.transition(c, h.quotationService.SendQuotation)
}

// MarkViewed godoc
// @Summary      Mark a quotation as viewed
// @Description  Record that the customer opened the quotation (SENT to VIEWED)
// @Tags         quotations
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /billing/quotations/{id}/view [post]
func (h *QuotationHandler) MarkViewed(c *gin.Context) {
	h.transition(c, h.quotationService.MarkQuotationViewed)
}

// Accept godoc
// @Summary      Accept a quotation
// @Description  Record customer acceptance (SENT or VIEWED to ACCEPTED)
// @Tags         quotations
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id}/accept [post]
func (h *QuotationHandler) Accept(c *gin.Context) {
	h.transition(c, h.quotationService.AcceptQuotation)
}

// Reject godoc
// @Summary      Reject a quotation
// @Description  Record customer rejection with a reason
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Param        request body RejectQuotationRequest true "Rejection reason"
// @Success      200 {object} dto.Response{data=billingapp.QuotationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id}/reject [post]
func (h *QuotationHandler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	var req RejectQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	quotation, err := h.quotationService.RejectQuotation(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, quotation)
}

// Convert godoc
// @Summary      Convert a quotation into an invoice
// @Description  Create an invoice from an accepted quotation. Retrying after success returns the invoice created by the first call.
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Param        id path string true "Quotation ID" format(uuid)
// @Param        request body ConvertQuotationRequest false "Conversion options"
// @Success      200 {object} dto.Response{data=billingapp.ConvertResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/quotations/{id}/convert [post]
func (h *QuotationHandler) Convert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	var req ConvertQuotationRequest
	// Allow empty body
	_ = c.ShouldBindJSON(&req)

	result, err := h.quotationService.ConvertToInvoice(c.Request.Context(), id, req.DueDate, req.BookingRef, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// transition runs a single-argument lifecycle operation against the
// quotation identified in the path
func (h *QuotationHandler) transition(c *gin.Context, op func(context.Context, uuid.UUID) (*billingapp.QuotationResponse, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quotation ID format")
		return
	}

	quotation, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, quotation)
}
