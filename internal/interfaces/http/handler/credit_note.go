package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/tripdesk/backend/internal/application/billing"
)

// CreditNoteHandler handles credit note API endpoints
type CreditNoteHandler struct {
	BaseHandler
	creditNoteService *billingapp.CreditNoteService
}

// NewCreditNoteHandler creates a new CreditNoteHandler
func NewCreditNoteHandler(creditNoteService *billingapp.CreditNoteService) *CreditNoteHandler {
	return &CreditNoteHandler{
		creditNoteService: creditNoteService,
	}
}

// RejectCreditNoteRequest represents a request to reject a pending approval
// @Description Request body for rejecting a credit note approval
type RejectCreditNoteRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Credit amount not justified"`
}

// StartRefundRequest represents a request to start a refund
// @Description Request body for starting a refund
type StartRefundRequest struct {
	Reference string `json:"reference" binding:"required,min=1,max=100" example:"TXN-20260828-001"`
}

// FailRefundRequest represents a request to record a refund failure
// @Description Request body for marking a refund as failed
type FailRefundRequest struct {
	Failure string `json:"failure" binding:"required,min=1,max=500" example:"Beneficiary account closed"`
}

// CancelCreditNoteRequest represents a request to cancel a credit note
// @Description Request body for cancelling a credit note
type CancelCreditNoteRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Raised in error"`
}

// Create godoc
// @Summary      Create a credit note
// @Description  Create a draft credit note against an invoice. The credited amount may not exceed what was billed per line item.
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        request body billingapp.CreateCreditNoteRequest true "Credit note creation request"
// @Success      201 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes [post]
func (h *CreditNoteHandler) Create(c *gin.Context) {
	var req billingapp.CreateCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	creditNote, err := h.creditNoteService.CreateCreditNote(c.Request.Context(), req, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, creditNote)
}

// GetByID godoc
// @Summary      Get credit note by ID
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id} [get]
func (h *CreditNoteHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	creditNote, err := h.creditNoteService.GetCreditNote(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// List godoc
// @Summary      List credit notes
// @Description  Retrieve a paginated list of credit notes with optional filtering
// @Tags         credit-notes
// @Produce      json
// @Param        invoice_id query string false "Invoice ID" format(uuid)
// @Param        status query string false "Credit note status" Enums(DRAFT, ISSUED, APPLIED, REFUNDED, CANCELLED)
// @Param        refund_status query string false "Refund status" Enums(NOT_APPLICABLE, PENDING, PROCESSING, COMPLETED, FAILED)
// @Param        reason query string false "Credit reason" Enums(CANCELLATION, SERVICE_FAILURE, PRICE_ADJUSTMENT, GOODWILL, DUPLICATE_CHARGE, OTHER)
// @Param        from_date query string false "Start date (ISO 8601)" format(date-time)
// @Param        to_date query string false "End date (ISO 8601)" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]billingapp.CreditNoteResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes [get]
func (h *CreditNoteHandler) List(c *gin.Context) {
	var filter billingapp.CreditNoteListFilter
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

	creditNotes, total, err := h.creditNoteService.ListCreditNotes(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, creditNotes, total, filter.Page, filter.PageSize)
}

// Approve godoc
// @Summary      Approve a credit note
// @Description  Approve a credit note awaiting managerial approval
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/approve [post]
func (h *CreditNoteHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	creditNote, err := h.creditNoteService.ApproveCreditNote(c.Request.Context(), id, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// RejectApproval godoc
// @Summary      Reject a credit note approval
// @Description  Reject a credit note awaiting approval, returning it to draft
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Param        request body RejectCreditNoteRequest true "Rejection reason"
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/reject [post]
func (h *CreditNoteHandler) RejectApproval(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req RejectCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	creditNote, err := h.creditNoteService.RejectCreditNoteApproval(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// Issue godoc
// @Summary      Issue a credit note
// @Description  Issue an approved credit note, making it effective
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/issue [post]
func (h *CreditNoteHandler) Issue(c *gin.Context) {
	h.transition(c, h.creditNoteService.IssueCreditNote)
}

// Apply godoc
// @Summary      Apply a credit note
// @Description  Apply an issued credit note against its invoice's outstanding balance
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.ApplyCreditNoteResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/apply [post]
func (h *CreditNoteHandler) Apply(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	result, err := h.creditNoteService.ApplyCreditNote(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GenerateVoucher godoc
// @Summary      Generate a store voucher
// @Description  Generate a settlement voucher for an issued credit note
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/voucher [post]
func (h *CreditNoteHandler) GenerateVoucher(c *gin.Context) {
	h.transition(c, h.creditNoteService.GenerateVoucher)
}

// StartRefund godoc
// @Summary      Start a refund
// @Description  Start refund processing for an issued credit note with refund settlement
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Param        request body StartRefundRequest true "Refund transaction reference"
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/refund/start [post]
func (h *CreditNoteHandler) StartRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	var req StartRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	creditNote, err := h.creditNoteService.StartRefund(c.Request.Context(), id, req.Reference)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// CompleteRefund godoc
// @Summary      Complete a refund
// @Description  Mark a processing refund as completed
// @Tags         credit-notes
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/refund/complete [post]
func (h *CreditNoteHandler) CompleteRefund(c *gin.Context) {
	h.transition(c, h.creditNoteService.CompleteRefund)
}

// FailRefund godoc
// @Summary      Record a refund failure
// @Description  Mark a processing refund as failed so it can be retried
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Param        request body FailRefundRequest true "Failure description"
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/refund/fail [post]
func (h *CreditNoteHandler) FailRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	var req FailRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	creditNote, err := h.creditNoteService.FailRefund(c.Request.Context(), id, req.Failure)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// Cancel godoc
// @Summary      Cancel a credit note
// @Description  Cancel a credit note that has not been applied or refunded
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        id path string true "Credit Note ID" format(uuid)
// @Param        request body CancelCreditNoteRequest true "Cancellation reason"
// @Success      200 {object} dto.Response{data=billingapp.CreditNoteResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/credit-notes/{id}/cancel [post]
func (h *CreditNoteHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	var req CancelCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	creditNote, err := h.creditNoteService.CancelCreditNote(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}

// transition runs a single-argument lifecycle operation against the
// credit note identified in the path
func (h *CreditNoteHandler) transition(c *gin.Context, op func(context.Context, uuid.UUID) (*billingapp.CreditNoteResponse, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	creditNote, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, creditNote)
}
