package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/tripdesk/backend/internal/application/billing"
)

// PaymentHandler handles payment receipt API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *billingapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// CancelReceiptRequest represents a request to cancel a payment receipt
// @Description Request body for cancelling a receipt
type CancelReceiptRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Recorded against the wrong invoice"`
}

// Record godoc
// @Summary      Record a payment
// @Description  Apply a payment to an invoice and issue a receipt. The payment may not exceed the invoice's outstanding balance.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body billingapp.RecordPaymentRequest true "Payment details"
// @Success      201 {object} dto.Response{data=billingapp.RecordPaymentResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req billingapp.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.paymentService.RecordPayment(c.Request.Context(), req, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// GetByID godoc
// @Summary      Get receipt by ID
// @Tags         payments
// @Produce      json
// @Param        id path string true "Receipt ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.PaymentReceiptResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments/{id} [get]
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	receipt, err := h.paymentService.GetReceipt(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, receipt)
}

// List godoc
// @Summary      List payment receipts
// @Description  Retrieve a paginated list of receipts with optional filtering
// @Tags         payments
// @Produce      json
// @Param        invoice_id query string false "Invoice ID" format(uuid)
// @Param        status query string false "Receipt status" Enums(PAID_IN_ADVANCE, PAID_IN_FULL, PARTIAL_PAYMENT, REFUNDED, CANCELLED)
// @Param        method query string false "Payment method" Enums(CASH, CARD, BANK_TRANSFER, CHEQUE, ONLINE)
// @Param        verified query bool false "Verification state"
// @Param        reconciled query bool false "Reconciliation state"
// @Param        from_date query string false "Start date (ISO 8601)" format(date-time)
// @Param        to_date query string false "End date (ISO 8601)" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]billingapp.PaymentReceiptResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var filter billingapp.ReceiptListFilter
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

	receipts, total, err := h.paymentService.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, receipts, total, filter.Page, filter.PageSize)
}

// ListForInvoice godoc
// @Summary      List receipts for an invoice
// @Description  The payment ledger of a single invoice, newest first
// @Tags         payments
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]billingapp.PaymentReceiptResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/payments [get]
func (h *PaymentHandler) ListForInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	receipts, err := h.paymentService.ListReceiptsForInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, receipts)
}

// Verify godoc
// @Summary      Verify a receipt
// @Description  Mark a receipt as verified against the underlying payment
// @Tags         payments
// @Produce      json
// @Param        id path string true "Receipt ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.PaymentReceiptResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments/{id}/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	receipt, err := h.paymentService.VerifyReceipt(c.Request.Context(), id, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, receipt)
}

// Reconcile godoc
// @Summary      Reconcile a receipt
// @Description  Mark a verified receipt as reconciled against the bank statement
// @Tags         payments
// @Produce      json
// @Param        id path string true "Receipt ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.PaymentReceiptResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments/{id}/reconcile [post]
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	receipt, err := h.paymentService.ReconcileReceipt(c.Request.Context(), id, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, receipt)
}

// Cancel godoc
// @Summary      Cancel a receipt
// @Description  Void a receipt and restore the invoice's outstanding balance
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id path string true "Receipt ID" format(uuid)
// @Param        request body CancelReceiptRequest true "Cancellation reason"
// @Success      200 {object} dto.Response{data=billingapp.RecordPaymentResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments/{id}/cancel [post]
func (h *PaymentHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	var req CancelReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	result, err := h.paymentService.CancelReceipt(c.Request.Context(), id, req.Reason, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
