package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/tripdesk/backend/internal/application/billing"
	"github.com/tripdesk/backend/internal/domain/billing"
)

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
	quotationRepo  billing.QuotationRepository
}

// NewInvoiceHandler creates a new InvoiceHandler. The quotation repository
// is only used for the billing stats endpoint.
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService, quotationRepo billing.QuotationRepository) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		quotationRepo:  quotationRepo,
	}
}

// CancelInvoiceRequest represents a request to cancel an invoice
// @Description Request body for cancelling an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Trip cancelled by customer"`
}

// Create godoc
// @Summary      Create an invoice
// @Description  Create a standalone invoice for a lead, without going through a quotation
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body billingapp.CreateInvoiceRequest true "Invoice creation request"
// @Success      201 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req billingapp.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), req, actorID(c))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, invoice)
}

// GetByID godoc
// @Summary      Get invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id} [get]
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoice)
}

// GetByNumber godoc
// @Summary      Get invoice by document number
// @Tags         invoices
// @Produce      json
// @Param        number path string true "Invoice number" example:"INV-202608-00042"
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/number/{number} [get]
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}

	invoice, err := h.invoiceService.GetInvoiceByNumber(c.Request.Context(), number)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoice)
}

// List godoc
// @Summary      List invoices
// @Description  Retrieve a paginated list of invoices with optional filtering
// @Tags         invoices
// @Produce      json
// @Param        search query string false "Search term (invoice number, customer name, booking reference)"
// @Param        lead_id query string false "Lead ID" format(uuid)
// @Param        status query string false "Invoice status" Enums(DRAFT, SENT, VIEWED, PARTIAL, PAID, OVERDUE, REFUNDED, CANCELLED)
// @Param        payment_status query string false "Payment status" Enums(UNPAID, PARTIAL, PAID)
// @Param        overdue query bool false "Only invoices past their due date"
// @Param        from_date query string false "Start date (ISO 8601)" format(date-time)
// @Param        to_date query string false "End date (ISO 8601)" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]billingapp.InvoiceResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter billingapp.InvoiceListFilter
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

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, invoices, total, filter.Page, filter.PageSize)
}

// Update godoc
// @Summary      Update an invoice
// @Description  Edit invoice content; the paid amount and payment ledger survive the edit
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body billingapp.UpdateInvoiceRequest true "Invoice update request"
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req billingapp.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Send godoc
// @Summary      Send an invoice
// @Description  Mark an invoice as sent to the customer (DRAFT to SENT)
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/send [post]
func (h *InvoiceHandler) Send(c *gin.Context) {
	h.transition(c, h.invoiceService.SendInvoice)
}

// MarkViewed godoc
// @Summary      Mark an invoice as viewed
// @Description  Record that the customer opened the invoice (SENT to VIEWED)
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /billing/invoices/{id}/view [post]
func (h *InvoiceHandler) MarkViewed(c *gin.Context) {
	h.transition(c, h.invoiceService.MarkInvoiceViewed)
}

// SendReminder godoc
// @Summary      Send a payment reminder
// @Description  Record a payment reminder for an outstanding invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/remind [post]
func (h *InvoiceHandler) SendReminder(c *gin.Context) {
	h.transition(c, h.invoiceService.SendReminder)
}

// Cancel godoc
// @Summary      Cancel an invoice
// @Description  Cancel an invoice that has no recorded payments
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body CancelInvoiceRequest true "Cancellation reason"
// @Success      200 {object} dto.Response{data=billingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/cancel [post]
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoice)
}

// GetStats godoc
// @Summary      Get billing statistics
// @Description  Dashboard statistics: document counts by status, total outstanding, collected this month
// @Tags         invoices
// @Produce      json
// @Success      200 {object} dto.Response{data=billingapp.BillingStats}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/stats [get]
func (h *InvoiceHandler) GetStats(c *gin.Context) {
	stats, err := h.invoiceService.GetBillingStats(c.Request.Context(), h.quotationRepo)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, stats)
}

// transition runs a single-argument lifecycle operation against the
// invoice identified in the path
func (h *InvoiceHandler) transition(c *gin.Context, op func(context.Context, uuid.UUID) (*billingapp.InvoiceResponse, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, invoice)
}
