package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// InvoiceService provides application-level invoice operations
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	leads       billing.LeadGateway
	numbers     billing.DocumentNumberService
	eventBus    shared.EventPublisher
	statsCache  StatsCache
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo billing.InvoiceRepository,
	leads billing.LeadGateway,
	numbers billing.DocumentNumberService,
	eventBus shared.EventPublisher,
	statsCache StatsCache,
) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		leads:       leads,
		numbers:     numbers,
		eventBus:    eventBus,
		statsCache:  statsCache,
	}
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID             uuid.UUID       `json:"id"`
	Kind           string          `json:"kind"`
	ReferenceID    uuid.UUID       `json:"reference_id"`
	Amount         decimal.Decimal `json:"amount"`
	AppliedAt      time.Time       `json:"applied_at"`
	Remark         string          `json:"remark,omitempty"`
	Status         string          `json:"status"`
	ReversedAt     *time.Time      `json:"reversed_at,omitempty"`
	ReversalReason string          `json:"reversal_reason,omitempty"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID                  uuid.UUID                `json:"id"`
	InvoiceNumber       string                   `json:"invoice_number"`
	LeadID              uuid.UUID                `json:"lead_id"`
	QuotationID         *uuid.UUID               `json:"quotation_id,omitempty"`
	BookingRef          string                   `json:"booking_ref,omitempty"`
	Customer            billing.CustomerSnapshot `json:"customer"`
	Items               billing.LineItems        `json:"items"`
	Pricing             billing.PricingParams    `json:"pricing"`
	Subtotal            decimal.Decimal          `json:"subtotal"`
	DiscountAmount      decimal.Decimal          `json:"discount_amount"`
	ServiceChargeAmount decimal.Decimal          `json:"service_charge_amount"`
	TaxAmount           decimal.Decimal          `json:"tax_amount"`
	TotalAmount         decimal.Decimal          `json:"total_amount"`
	PaidAmount          decimal.Decimal          `json:"paid_amount"`
	OutstandingAmount   decimal.Decimal          `json:"outstanding_amount"`
	Status              string                   `json:"status"`
	PaymentStatus       string                   `json:"payment_status"`
	DueDate             *time.Time               `json:"due_date,omitempty"`
	Ledger              []LedgerEntryResponse    `json:"ledger"`
	Notes               string                   `json:"notes,omitempty"`
	ReminderCount       int                      `json:"reminder_count"`
	LastReminderAt      *time.Time               `json:"last_reminder_at,omitempty"`
	SentAt              *time.Time               `json:"sent_at,omitempty"`
	PaidAt              *time.Time               `json:"paid_at,omitempty"`
	CancelledAt         *time.Time               `json:"cancelled_at,omitempty"`
	CancelReason        string                   `json:"cancel_reason,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
	Version             int                      `json:"version"`
}

func toInvoiceResponse(inv *billing.Invoice) *InvoiceResponse {
	ledger := make([]LedgerEntryResponse, len(inv.Ledger))
	for i, e := range inv.Ledger {
		ledger[i] = LedgerEntryResponse{
			ID:             e.ID,
			Kind:           string(e.Kind),
			ReferenceID:    e.ReferenceID,
			Amount:         e.Amount,
			AppliedAt:      e.AppliedAt,
			Remark:         e.Remark,
			Status:         string(e.Status),
			ReversedAt:     e.ReversedAt,
			ReversalReason: e.ReversalReason,
		}
	}

	return &InvoiceResponse{
		ID:                  inv.ID,
		InvoiceNumber:       inv.InvoiceNumber,
		LeadID:              inv.LeadID,
		QuotationID:         inv.QuotationID,
		BookingRef:          inv.BookingRef,
		Customer:            inv.Customer,
		Items:               inv.Items,
		Pricing:             inv.Pricing,
		Subtotal:            inv.Subtotal,
		DiscountAmount:      inv.DiscountAmount,
		ServiceChargeAmount: inv.ServiceChargeAmount,
		TaxAmount:           inv.TaxAmount,
		TotalAmount:         inv.TotalAmount,
		PaidAmount:          inv.PaidAmount,
		OutstandingAmount:   inv.OutstandingAmount,
		Status:              inv.Status.String(),
		PaymentStatus:       inv.PaymentStatus.String(),
		DueDate:             inv.DueDate,
		Ledger:              ledger,
		Notes:               inv.Notes,
		ReminderCount:       inv.ReminderCount,
		LastReminderAt:      inv.LastReminderAt,
		SentAt:              inv.SentAt,
		PaidAt:              inv.PaidAt,
		CancelledAt:         inv.CancelledAt,
		CancelReason:        inv.CancelReason,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
		Version:             inv.Version,
	}
}

// CreateInvoiceRequest is the input for creating an invoice directly,
// without going through a quotation
type CreateInvoiceRequest struct {
	LeadID     uuid.UUID       `json:"lead_id" binding:"required"`
	Items      []LineItemInput `json:"items" binding:"required,min=1,dive"`
	Pricing    *PricingInput   `json:"pricing"`
	DueDate    *time.Time      `json:"due_date"`
	BookingRef string          `json:"booking_ref"`
	Notes      string          `json:"notes"`
}

// CreateInvoice creates a standalone invoice for a lead
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest, createdBy *uuid.UUID) (*InvoiceResponse, error) {
	lead, err := s.leads.FindByID(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Lead not found")
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, billing.DocumentTypeInvoice)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	invoice, err := billing.NewInvoice(number, lead.ID, lead.Snapshot(), items,
		buildPricing(req.Pricing), req.DueDate, nil, req.BookingRef, req.Notes, createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.invalidateStats(ctx)
	publishEvents(ctx, s.eventBus, invoice)

	return toInvoiceResponse(invoice), nil
}

// UpdateInvoiceRequest is the input for editing an invoice
type UpdateInvoiceRequest struct {
	Items      []LineItemInput `json:"items" binding:"required,min=1,dive"`
	Pricing    *PricingInput   `json:"pricing"`
	DueDate    *time.Time      `json:"due_date"`
	BookingRef string          `json:"booking_ref"`
	Notes      string          `json:"notes"`
}

// UpdateInvoice edits invoice content; the paid amount and ledger survive
// the edit and the balance fields are recomputed
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id uuid.UUID, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	invoice, err := s.getInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	expectedVersion := invoice.Version
	if err := invoice.UpdateDetails(items, buildPricing(req.Pricing), req.DueDate, req.BookingRef, req.Notes); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)

	return toInvoiceResponse(invoice), nil
}

// SendInvoice marks the invoice sent
func (s *InvoiceService) SendInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, func(inv *billing.Invoice) error { return inv.Send() })
}

// MarkInvoiceViewed records that the customer opened the invoice
func (s *InvoiceService) MarkInvoiceViewed(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, func(inv *billing.Invoice) error { return inv.MarkViewed() })
}

// SendReminder records a payment reminder; the invoice status is unchanged
func (s *InvoiceService) SendReminder(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, func(inv *billing.Invoice) error { return inv.RecordReminder() })
}

// CancelInvoice cancels an unpaid or partially paid invoice
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID, reason string) (*InvoiceResponse, error) {
	resp, err := s.transition(ctx, id, func(inv *billing.Invoice) error { return inv.Cancel(reason) })
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return resp, nil
}

func (s *InvoiceService) transition(ctx context.Context, id uuid.UUID, op func(*billing.Invoice) error) (*InvoiceResponse, error) {
	invoice, err := s.getInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := invoice.Version
	if err := op(invoice); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion); err != nil {
		return nil, err
	}

	publishEvents(ctx, s.eventBus, invoice)

	return toInvoiceResponse(invoice), nil
}

// GetInvoice gets an invoice by ID, ledger included
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.getInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(invoice), nil
}

// GetInvoiceByNumber gets an invoice by its document number
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, number string) (*InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}
	return toInvoiceResponse(invoice), nil
}

// InvoiceListFilter defines filtering options for invoice list queries
type InvoiceListFilter struct {
	Search        string     `form:"search"`
	LeadID        *uuid.UUID `form:"lead_id"`
	Status        string     `form:"status"`
	PaymentStatus string     `form:"payment_status"`
	FromDate      *time.Time `form:"from_date"`
	ToDate        *time.Time `form:"to_date"`
	Overdue       *bool      `form:"overdue"`
	Page          int        `form:"page"`
	PageSize      int        `form:"page_size"`
}

// ListInvoices lists invoices with filtering
func (s *InvoiceService) ListInvoices(ctx context.Context, filter InvoiceListFilter) ([]InvoiceResponse, int64, error) {
	domainFilter := billing.InvoiceFilter{
		LeadID:   filter.LeadID,
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Overdue:  filter.Overdue,
	}
	domainFilter.Search = filter.Search
	domainFilter.Page = filter.Page
	domainFilter.PageSize = filter.PageSize

	if filter.Status != "" {
		status := billing.InvoiceStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION_ERROR", "Unknown invoice status filter")
		}
		domainFilter.Status = &status
	}
	if filter.PaymentStatus != "" {
		ps := billing.PaymentStatus(filter.PaymentStatus)
		if !ps.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION_ERROR", "Unknown payment status filter")
		}
		domainFilter.PaymentStatus = &ps
	}

	invoices, err := s.invoiceRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.invoiceRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = *toInvoiceResponse(&invoices[i])
	}
	return responses, total, nil
}

// BillingStats summarizes the billing pipeline for dashboards
type BillingStats struct {
	QuotationsByStatus map[string]int64 `json:"quotations_by_status"`
	InvoicesByStatus   map[string]int64 `json:"invoices_by_status"`
	TotalOutstanding   decimal.Decimal  `json:"total_outstanding"`
	CollectedThisMonth decimal.Decimal  `json:"collected_this_month"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

const statsCacheKey = "billing:stats"
const statsCacheTTL = 5 * time.Minute

// GetBillingStats computes dashboard statistics, served from cache when
// fresh
func (s *InvoiceService) GetBillingStats(ctx context.Context, quotationRepo billing.QuotationRepository) (*BillingStats, error) {
	if s.statsCache != nil {
		var cached BillingStats
		if ok, _ := s.statsCache.Get(ctx, statsCacheKey, &cached); ok {
			return &cached, nil
		}
	}

	invoiceCounts, err := s.invoiceRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	quotationCounts, err := quotationRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.invoiceRepo.SumOutstanding(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	collected, err := s.invoiceRepo.SumCollected(ctx, monthStart, now)
	if err != nil {
		return nil, err
	}

	stats := &BillingStats{
		QuotationsByStatus: make(map[string]int64, len(quotationCounts)),
		InvoicesByStatus:   make(map[string]int64, len(invoiceCounts)),
		TotalOutstanding:   outstanding,
		CollectedThisMonth: collected,
		GeneratedAt:        now,
	}
	for status, count := range quotationCounts {
		stats.QuotationsByStatus[status.String()] = count
	}
	for status, count := range invoiceCounts {
		stats.InvoicesByStatus[status.String()] = count
	}

	if s.statsCache != nil {
		_ = s.statsCache.Set(ctx, statsCacheKey, stats, statsCacheTTL)
	}

	return stats, nil
}

// MarkOverdueInvoices flags sent invoices past their due date as OVERDUE.
// Called by the scheduler sweep; returns the number flagged.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, batchSize int) (int, error) {
	now := time.Now()
	invoices, err := s.invoiceRepo.FindDueForOverdue(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i := range invoices {
		inv := &invoices[i]
		expectedVersion := inv.Version
		if !inv.RefreshStatus(now) {
			continue
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv, expectedVersion); err != nil {
			continue
		}
		publishEvents(ctx, s.eventBus, inv)
		flagged++
	}
	if flagged > 0 {
		s.invalidateStats(ctx)
	}
	return flagged, nil
}

func (s *InvoiceService) invalidateStats(ctx context.Context) {
	if s.statsCache != nil {
		_ = s.statsCache.Delete(ctx, statsCacheKey)
	}
}

func (s *InvoiceService) getInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}
	return invoice, nil
}
