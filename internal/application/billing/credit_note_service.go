package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
)

// CreditNoteService manages the credit note workflow: draft, approval,
// issue, and settlement by invoice application, cash refund, or voucher.
type CreditNoteService struct {
	creditNoteRepo billing.CreditNoteRepository
	invoiceRepo    billing.InvoiceRepository
	numbers        billing.DocumentNumberService
	eventBus       shared.EventPublisher
	statsCache     StatsCache
}

// NewCreditNoteService creates a new CreditNoteService
func NewCreditNoteService(
	creditNoteRepo billing.CreditNoteRepository,
	invoiceRepo billing.InvoiceRepository,
	numbers billing.DocumentNumberService,
	eventBus shared.EventPublisher,
	statsCache StatsCache,
) *CreditNoteService {
	return &CreditNoteService{
		creditNoteRepo: creditNoteRepo,
		invoiceRepo:    invoiceRepo,
		numbers:        numbers,
		eventBus:       eventBus,
		statsCache:     statsCache,
	}
}

// CreditLineItemInput carries a caller-provided credit line item
type CreditLineItemInput struct {
	LineItemID   uuid.UUID       `json:"line_item_id" binding:"required"`
	CreditAmount decimal.Decimal `json:"credit_amount" binding:"required"`
	Reason       string          `json:"reason"`
}

// CreateCreditNoteRequest is the input for creating a credit note
type CreateCreditNoteRequest struct {
	InvoiceID      uuid.UUID             `json:"invoice_id" binding:"required"`
	Items          []CreditLineItemInput `json:"items" binding:"required,min=1,dive"`
	Reason         string                `json:"reason" binding:"required"`
	ReasonDetail   string                `json:"reason_detail"`
	SettlementMode string                `json:"settlement_mode" binding:"required"`
}

// VoucherResponse represents a settlement voucher in API responses
type VoucherResponse struct {
	Code      string          `json:"code"`
	Amount    decimal.Decimal `json:"amount"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// CreditNoteResponse represents a credit note in API responses
type CreditNoteResponse struct {
	ID               uuid.UUID                `json:"id"`
	CreditNoteNumber string                   `json:"credit_note_number"`
	InvoiceID        uuid.UUID                `json:"invoice_id"`
	LeadID           uuid.UUID                `json:"lead_id"`
	Customer         billing.CustomerSnapshot `json:"customer"`
	Items            billing.CreditLineItems  `json:"items"`
	Amount           decimal.Decimal          `json:"amount"`
	Reason           string                   `json:"reason"`
	ReasonDetail     string                   `json:"reason_detail,omitempty"`
	Status           string                   `json:"status"`
	SettlementMode   string                   `json:"settlement_mode"`
	RefundStatus     string                   `json:"refund_status"`
	RefundReference  string                   `json:"refund_reference,omitempty"`
	RefundFailure    string                   `json:"refund_failure,omitempty"`
	Voucher          *VoucherResponse         `json:"voucher,omitempty"`
	ApprovedBy       *uuid.UUID               `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time               `json:"approved_at,omitempty"`
	RejectedBy       *uuid.UUID               `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time               `json:"rejected_at,omitempty"`
	IssuedAt         *time.Time               `json:"issued_at,omitempty"`
	AppliedAt        *time.Time               `json:"applied_at,omitempty"`
	RefundedAt       *time.Time               `json:"refunded_at,omitempty"`
	CancelledAt      *time.Time               `json:"cancelled_at,omitempty"`
	CancelReason     string                   `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	Version          int                      `json:"version"`
}

func toCreditNoteResponse(cn *billing.CreditNote) *CreditNoteResponse {
	resp := &CreditNoteResponse{
		ID:               cn.ID,
		CreditNoteNumber: cn.CreditNoteNumber,
		InvoiceID:        cn.InvoiceID,
		LeadID:           cn.LeadID,
		Customer:         cn.Customer,
		Items:            cn.Items,
		Amount:           cn.Amount,
		Reason:           string(cn.Reason),
		ReasonDetail:     cn.ReasonDetail,
		Status:           cn.Status.String(),
		SettlementMode:   string(cn.SettlementMode),
		RefundStatus:     string(cn.RefundStatus),
		RefundReference:  cn.RefundReference,
		RefundFailure:    cn.RefundFailure,
		ApprovedBy:       cn.ApprovedBy,
		ApprovedAt:       cn.ApprovedAt,
		RejectedBy:       cn.RejectedBy,
		RejectedAt:       cn.RejectedAt,
		IssuedAt:         cn.IssuedAt,
		AppliedAt:        cn.AppliedAt,
		RefundedAt:       cn.RefundedAt,
		CancelledAt:      cn.CancelledAt,
		CancelReason:     cn.CancelReason,
		CreatedAt:        cn.CreatedAt,
		UpdatedAt:        cn.UpdatedAt,
		Version:          cn.Version,
	}
	if !cn.StoreVoucher.IsZero() {
		resp.Voucher = &VoucherResponse{
			Code:      cn.StoreVoucher.Code,
			Amount:    cn.StoreVoucher.Amount,
			IssuedAt:  cn.StoreVoucher.IssuedAt,
			ExpiresAt: cn.StoreVoucher.ExpiresAt,
		}
	}
	return resp
}

// CreateCreditNote creates a draft credit note against an invoice. The
// credited line items are resolved against the invoice so the per-item
// ceiling always reflects what was actually billed.
func (s *CreditNoteService) CreateCreditNote(ctx context.Context, req CreateCreditNoteRequest, createdBy *uuid.UUID) (*CreditNoteResponse, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}

	items, err := resolveCreditItems(invoice, req.Items)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, billing.DocumentTypeCreditNote)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate credit note number: %w", err)
	}

	creditNote, err := billing.NewCreditNote(number, invoice, items,
		billing.CreditReason(req.Reason), req.ReasonDetail,
		billing.SettlementMode(req.SettlementMode), createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.creditNoteRepo.Save(ctx, creditNote); err != nil {
		return nil, fmt.Errorf("failed to save credit note: %w", err)
	}

	publishEvents(ctx, s.eventBus, creditNote)

	return toCreditNoteResponse(creditNote), nil
}

// resolveCreditItems maps caller inputs onto invoice line items, carrying
// over the original amounts that cap each credit
func resolveCreditItems(invoice *billing.Invoice, inputs []CreditLineItemInput) (billing.CreditLineItems, error) {
	byID := make(map[uuid.UUID]billing.LineItem, len(invoice.Items))
	for _, item := range invoice.Items {
		byID[item.ID] = item
	}

	items := make(billing.CreditLineItems, 0, len(inputs))
	for _, in := range inputs {
		original, ok := byID[in.LineItemID]
		if !ok {
			return nil, shared.NewDomainError("VALIDATION_ERROR",
				fmt.Sprintf("Line item %s does not belong to invoice %s", in.LineItemID, invoice.InvoiceNumber))
		}
		items = append(items, billing.CreditLineItem{
			LineItemID:     original.ID,
			Description:    original.Description,
			OriginalAmount: original.TotalPrice,
			CreditAmount:   in.CreditAmount,
			Reason:         in.Reason,
		})
	}
	return items, nil
}

// ApproveCreditNote records an approval on a draft credit note
func (s *CreditNoteService) ApproveCreditNote(ctx context.Context, id, userID uuid.UUID) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.Approve(userID) })
}

// RejectCreditNoteApproval cancels a draft credit note awaiting approval
func (s *CreditNoteService) RejectCreditNoteApproval(ctx context.Context, id, userID uuid.UUID, reason string) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.RejectApproval(userID, reason) })
}

// IssueCreditNote transitions a draft credit note to ISSUED
func (s *CreditNoteService) IssueCreditNote(ctx context.Context, id uuid.UUID) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.Issue() })
}

// ApplyCreditNoteResult pairs the settled credit note with the updated
// invoice
type ApplyCreditNoteResult struct {
	CreditNote *CreditNoteResponse `json:"credit_note"`
	Invoice    *InvoiceResponse    `json:"invoice"`
}

// ApplyCreditNote applies an issued credit note to its invoice balance.
// The balance mutation goes through the same ledger path as payment
// receipts, under the same optimistic lock and retry policy.
func (s *CreditNoteService) ApplyCreditNote(ctx context.Context, id uuid.UUID) (*ApplyCreditNoteResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "apply")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCreditNoteID, id.String())

	creditNote, err := s.getCreditNote(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	expectedNoteVersion := creditNote.Version
	if err := creditNote.MarkApplied(); err != nil {
		return nil, err
	}

	amount := valueobject.NewMoneyUSD(creditNote.Amount)
	remark := fmt.Sprintf("Credit note %s applied", creditNote.CreditNoteNumber)

	var invoice *billing.Invoice
	for attempt := 0; ; attempt++ {
		invoice, err = s.invoiceRepo.FindByID(ctx, creditNote.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice == nil {
			return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
		}

		expectedVersion := invoice.Version
		if _, err = invoice.ApplyLedgerEntry(billing.LedgerEntryKindCreditNote, creditNote.ID, amount, remark); err != nil {
			if isAlreadyProcessed(err) {
				// A previous attempt already booked this credit on the
				// invoice but failed to persist the note; finish that.
				break
			}
			return nil, err
		}

		err = s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion)
		if err == nil {
			break
		}
		if !isConcurrencyConflict(err) || attempt+1 >= maxPaymentRetries {
			return nil, err
		}
	}

	if err := s.creditNoteRepo.SaveWithLock(ctx, creditNote, expectedNoteVersion); err != nil {
		telemetry.RecordError(span, err)
		if revErr := reverseAppliedEntry(ctx, s.invoiceRepo, invoice.ID, creditNote.ID, "credit note save failed"); revErr != nil {
			return nil, fmt.Errorf("failed to save credit note: %w (ledger reversal failed: %v)", err, revErr)
		}
		return nil, err
	}

	if s.statsCache != nil {
		_ = s.statsCache.Delete(ctx, statsCacheKey)
	}

	publishEvents(ctx, s.eventBus, invoice)
	publishEvents(ctx, s.eventBus, creditNote)

	telemetry.AddEvent(span, "credit_note_applied",
		telemetry.SpanAttrSettlementMode, string(creditNote.SettlementMode),
		"outstanding_after", invoice.OutstandingAmount.String(),
	)

	return &ApplyCreditNoteResult{
		CreditNote: toCreditNoteResponse(creditNote),
		Invoice:    toInvoiceResponse(invoice),
	}, nil
}

// GenerateVoucher settles an issued credit note as store credit. The
// voucher code is generated once; retries return the same voucher.
func (s *CreditNoteService) GenerateVoucher(ctx context.Context, id uuid.UUID) (*CreditNoteResponse, error) {
	creditNote, err := s.getCreditNote(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := creditNote.Version
	if _, err := creditNote.GenerateVoucher(time.Now()); err != nil {
		return nil, err
	}
	if creditNote.Version != expectedVersion {
		if err := s.creditNoteRepo.SaveWithLock(ctx, creditNote, expectedVersion); err != nil {
			return nil, err
		}
		publishEvents(ctx, s.eventBus, creditNote)
	}

	return toCreditNoteResponse(creditNote), nil
}

// StartRefund begins the cash refund leg of an issued credit note
func (s *CreditNoteService) StartRefund(ctx context.Context, id uuid.UUID, reference string) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.StartRefund(reference) })
}

// CompleteRefund settles the credit note after a successful payout and
// flags the invoice as refunded
func (s *CreditNoteService) CompleteRefund(ctx context.Context, id uuid.UUID) (*CreditNoteResponse, error) {
	creditNote, err := s.getCreditNote(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := creditNote.Version
	if err := creditNote.CompleteRefund(); err != nil {
		return nil, err
	}
	if err := s.creditNoteRepo.SaveWithLock(ctx, creditNote, expectedVersion); err != nil {
		return nil, err
	}

	// A full refund of everything paid marks the invoice refunded; partial
	// credits leave the invoice status alone.
	invoice, err := s.invoiceRepo.FindByID(ctx, creditNote.InvoiceID)
	if err == nil && invoice != nil && creditNote.Amount.Equal(invoice.PaidAmount) {
		invVersion := invoice.Version
		if err := invoice.MarkRefunded(); err == nil {
			_ = s.invoiceRepo.SaveWithLock(ctx, invoice, invVersion)
		}
	}

	if s.statsCache != nil {
		_ = s.statsCache.Delete(ctx, statsCacheKey)
	}

	publishEvents(ctx, s.eventBus, creditNote)

	return toCreditNoteResponse(creditNote), nil
}

// FailRefund records a failed payout attempt; the refund can be retried
func (s *CreditNoteService) FailRefund(ctx context.Context, id uuid.UUID, failure string) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.FailRefund(failure) })
}

// CancelCreditNote cancels an unsettled credit note
func (s *CreditNoteService) CancelCreditNote(ctx context.Context, id uuid.UUID, reason string) (*CreditNoteResponse, error) {
	return s.transition(ctx, id, func(cn *billing.CreditNote) error { return cn.Cancel(reason) })
}

func (s *CreditNoteService) transition(ctx context.Context, id uuid.UUID, op func(*billing.CreditNote) error) (*CreditNoteResponse, error) {
	creditNote, err := s.getCreditNote(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := creditNote.Version
	if err := op(creditNote); err != nil {
		return nil, err
	}
	if err := s.creditNoteRepo.SaveWithLock(ctx, creditNote, expectedVersion); err != nil {
		return nil, err
	}

	publishEvents(ctx, s.eventBus, creditNote)

	return toCreditNoteResponse(creditNote), nil
}

// GetCreditNote gets a credit note by ID
func (s *CreditNoteService) GetCreditNote(ctx context.Context, id uuid.UUID) (*CreditNoteResponse, error) {
	creditNote, err := s.getCreditNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCreditNoteResponse(creditNote), nil
}

// CreditNoteListFilter defines filtering options for credit note queries
type CreditNoteListFilter struct {
	InvoiceID    *uuid.UUID `form:"invoice_id"`
	Status       string     `form:"status"`
	RefundStatus string     `form:"refund_status"`
	Reason       string     `form:"reason"`
	FromDate     *time.Time `form:"from_date"`
	ToDate       *time.Time `form:"to_date"`
	Page         int        `form:"page"`
	PageSize     int        `form:"page_size"`
}

// ListCreditNotes lists credit notes with filtering
func (s *CreditNoteService) ListCreditNotes(ctx context.Context, filter CreditNoteListFilter) ([]CreditNoteResponse, int64, error) {
	domainFilter := billing.CreditNoteFilter{
		InvoiceID: filter.InvoiceID,
		FromDate:  filter.FromDate,
		ToDate:    filter.ToDate,
	}
	domainFilter.Page = filter.Page
	domainFilter.PageSize = filter.PageSize

	if filter.Status != "" {
		status := billing.CreditNoteStatus(filter.Status)
		domainFilter.Status = &status
	}
	if filter.RefundStatus != "" {
		rs := billing.RefundStatus(filter.RefundStatus)
		domainFilter.RefundStatus = &rs
	}
	if filter.Reason != "" {
		reason := billing.CreditReason(filter.Reason)
		domainFilter.Reason = &reason
	}

	creditNotes, err := s.creditNoteRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.creditNoteRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]CreditNoteResponse, len(creditNotes))
	for i := range creditNotes {
		responses[i] = *toCreditNoteResponse(&creditNotes[i])
	}
	return responses, total, nil
}

func (s *CreditNoteService) getCreditNote(ctx context.Context, id uuid.UUID) (*billing.CreditNote, error) {
	creditNote, err := s.creditNoteRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if creditNote == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Credit note not found")
	}
	return creditNote, nil
}
