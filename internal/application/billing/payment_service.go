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

// maxPaymentRetries bounds the optimistic-lock retry loop when two
// payments race on the same invoice
const maxPaymentRetries = 3

// PaymentService records and manages payment receipts. Every balance
// mutation goes through the invoice ledger under optimistic locking, so
// two concurrent payments can never overshoot the outstanding amount.
type PaymentService struct {
	invoiceRepo billing.InvoiceRepository
	receiptRepo billing.PaymentReceiptRepository
	numbers     billing.DocumentNumberService
	eventBus    shared.EventPublisher
	statsCache  StatsCache
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	invoiceRepo billing.InvoiceRepository,
	receiptRepo billing.PaymentReceiptRepository,
	numbers billing.DocumentNumberService,
	eventBus shared.EventPublisher,
	statsCache StatsCache,
) *PaymentService {
	return &PaymentService{
		invoiceRepo: invoiceRepo,
		receiptRepo: receiptRepo,
		numbers:     numbers,
		eventBus:    eventBus,
		statsCache:  statsCache,
	}
}

// RecordPaymentRequest is the input for recording a payment
type RecordPaymentRequest struct {
	InvoiceID   uuid.UUID              `json:"invoice_id" binding:"required"`
	Amount      decimal.Decimal        `json:"amount" binding:"required"`
	Method      string                 `json:"method" binding:"required"`
	PaymentType string                 `json:"payment_type"`
	Details     billing.PaymentDetails `json:"details"`
	Remark      string                 `json:"remark"`
}

// PaymentReceiptResponse represents a payment receipt in API responses
type PaymentReceiptResponse struct {
	ID            uuid.UUID              `json:"id"`
	ReceiptNumber string                 `json:"receipt_number"`
	InvoiceID     uuid.UUID              `json:"invoice_id"`
	LeadID        uuid.UUID              `json:"lead_id"`
	Amount        decimal.Decimal        `json:"amount"`
	Method        string                 `json:"method"`
	PaymentType   string                 `json:"payment_type"`
	Details       billing.PaymentDetails `json:"details"`
	Status        string                 `json:"status"`
	PaymentDate   time.Time              `json:"payment_date"`
	Verified      bool                   `json:"verified"`
	VerifiedAt    *time.Time             `json:"verified_at,omitempty"`
	Reconciled    bool                   `json:"reconciled"`
	ReconciledAt  *time.Time             `json:"reconciled_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	Remark        string                 `json:"remark,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// RecordPaymentResult pairs the new receipt with the updated invoice
type RecordPaymentResult struct {
	Receipt *PaymentReceiptResponse `json:"receipt"`
	Invoice *InvoiceResponse        `json:"invoice"`
}

func toReceiptResponse(r *billing.PaymentReceipt) *PaymentReceiptResponse {
	return &PaymentReceiptResponse{
		ID:            r.ID,
		ReceiptNumber: r.ReceiptNumber,
		InvoiceID:     r.InvoiceID,
		LeadID:        r.LeadID,
		Amount:        r.Amount,
		Method:        r.Method.String(),
		PaymentType:   string(r.PaymentType),
		Details:       r.Details,
		Status:        r.Status.String(),
		PaymentDate:   r.PaymentDate,
		Verified:      r.Verified,
		VerifiedAt:    r.VerifiedAt,
		Reconciled:    r.Reconciled,
		ReconciledAt:  r.ReconciledAt,
		CancelledAt:   r.CancelledAt,
		CancelReason:  r.CancelReason,
		Remark:        r.Remark,
		CreatedAt:     r.CreatedAt,
	}
}

// RecordPayment applies a payment to an invoice and issues a receipt.
// The ledger guard and the version predicate on the invoice save together
// make over-collection impossible: when two payments race, one save loses,
// the invoice is reloaded and the guard re-checks against the fresh
// outstanding amount.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest, recordedBy *uuid.UUID) (*RecordPaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMethod, req.Method,
	)

	amount, err := valueobject.NewMoney(req.Amount, valueobject.USD)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	method := billing.PaymentMethod(req.Method)
	if !method.IsValid() {
		err = shared.NewDomainError("VALIDATION_ERROR", "Payment method is not valid")
		telemetry.RecordError(span, err)
		return nil, err
	}
	paymentType := billing.PaymentType(req.PaymentType)
	if paymentType == "" {
		paymentType = billing.PaymentTypeFinal
	}
	// Reject before touching the ledger; a receipt that fails validation
	// after the invoice save would leave an orphaned ledger entry.
	if err := req.Details.Validate(method); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	receiptID := uuid.New()

	var invoice *billing.Invoice
	for attempt := 0; ; attempt++ {
		invoice, err = s.invoiceRepo.FindByID(ctx, req.InvoiceID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if invoice == nil {
			err = shared.NewDomainError("NOT_FOUND", "Invoice not found")
			telemetry.RecordError(span, err)
			return nil, err
		}

		expectedVersion := invoice.Version
		if _, err = invoice.ApplyLedgerEntry(billing.LedgerEntryKindReceipt, receiptID, amount, req.Remark); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		err = s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion)
		if err == nil {
			break
		}
		if !isConcurrencyConflict(err) || attempt+1 >= maxPaymentRetries {
			telemetry.RecordError(span, err)
			return nil, err
		}
		telemetry.AddEvent(span, "payment_retry", "attempt", fmt.Sprintf("%d", attempt+1))
	}

	number, err := s.numbers.Next(ctx, billing.DocumentTypeReceipt)
	if err != nil {
		telemetry.RecordError(span, err)
		if revErr := reverseAppliedEntry(ctx, s.invoiceRepo, invoice.ID, receiptID, "receipt number allocation failed"); revErr != nil {
			return nil, fmt.Errorf("failed to allocate receipt number: %w (ledger reversal failed: %v)", err, revErr)
		}
		return nil, fmt.Errorf("failed to allocate receipt number: %w", err)
	}

	receipt, err := billing.NewPaymentReceipt(number, invoice, amount, method, paymentType, req.Details, req.Remark, recordedBy)
	if err != nil {
		telemetry.RecordError(span, err)
		if revErr := reverseAppliedEntry(ctx, s.invoiceRepo, invoice.ID, receiptID, "receipt creation failed"); revErr != nil {
			return nil, fmt.Errorf("%w (ledger reversal failed: %v)", err, revErr)
		}
		return nil, err
	}
	receipt.ID = receiptID

	if err := s.receiptRepo.Save(ctx, receipt); err != nil {
		telemetry.RecordError(span, err)
		if revErr := reverseAppliedEntry(ctx, s.invoiceRepo, invoice.ID, receiptID, "receipt save failed"); revErr != nil {
			return nil, fmt.Errorf("failed to save receipt: %w (ledger reversal failed: %v)", err, revErr)
		}
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	if s.statsCache != nil {
		_ = s.statsCache.Delete(ctx, statsCacheKey)
	}

	publishEvents(ctx, s.eventBus, invoice)
	publishEvents(ctx, s.eventBus, receipt)

	telemetry.AddEvent(span, "payment_recorded",
		"receipt_number", receipt.ReceiptNumber,
		"outstanding_after", invoice.OutstandingAmount.String(),
	)

	return &RecordPaymentResult{
		Receipt: toReceiptResponse(receipt),
		Invoice: toInvoiceResponse(invoice),
	}, nil
}

// VerifyReceipt marks a receipt as verified
func (s *PaymentService) VerifyReceipt(ctx context.Context, id, userID uuid.UUID) (*PaymentReceiptResponse, error) {
	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := receipt.Verify(userID); err != nil {
		return nil, err
	}
	if err := s.receiptRepo.Save(ctx, receipt); err != nil {
		return nil, err
	}
	return toReceiptResponse(receipt), nil
}

// ReconcileReceipt marks a verified receipt as reconciled
func (s *PaymentService) ReconcileReceipt(ctx context.Context, id, userID uuid.UUID) (*PaymentReceiptResponse, error) {
	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := receipt.Reconcile(userID); err != nil {
		return nil, err
	}
	if err := s.receiptRepo.Save(ctx, receipt); err != nil {
		return nil, err
	}
	return toReceiptResponse(receipt), nil
}

// CancelReceipt soft-cancels a receipt and reverses its ledger entry on
// the invoice through the same locked path that applied it
func (s *PaymentService) CancelReceipt(ctx context.Context, id uuid.UUID, reason string, userID uuid.UUID) (*RecordPaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "cancel_receipt")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrReceiptID, id.String())

	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := receipt.Cancel(reason, userID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var invoice *billing.Invoice
	for attempt := 0; ; attempt++ {
		invoice, err = s.invoiceRepo.FindByID(ctx, receipt.InvoiceID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if invoice == nil {
			err = shared.NewDomainError("NOT_FOUND", "Invoice not found")
			telemetry.RecordError(span, err)
			return nil, err
		}

		expectedVersion := invoice.Version
		if _, err = invoice.ReverseLedgerEntry(receipt.ID, reason); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		err = s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion)
		if err == nil {
			break
		}
		if !isConcurrencyConflict(err) || attempt+1 >= maxPaymentRetries {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if err := s.receiptRepo.Save(ctx, receipt); err != nil {
		telemetry.RecordError(span, err)
		if revErr := s.restoreReversedEntry(ctx, invoice.ID, receipt); revErr != nil {
			return nil, fmt.Errorf("failed to save receipt: %w (ledger restore failed: %v)", err, revErr)
		}
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	if s.statsCache != nil {
		_ = s.statsCache.Delete(ctx, statsCacheKey)
	}

	publishEvents(ctx, s.eventBus, invoice)
	publishEvents(ctx, s.eventBus, receipt)

	return &RecordPaymentResult{
		Receipt: toReceiptResponse(receipt),
		Invoice: toInvoiceResponse(invoice),
	}, nil
}

// restoreReversedEntry re-books a receipt's ledger entry after a
// cancellation that reversed the entry could not persist the receipt,
// keeping the invoice balance in step with the receipts that exist.
func (s *PaymentService) restoreReversedEntry(ctx context.Context, invoiceID uuid.UUID, receipt *billing.PaymentReceipt) error {
	amount := valueobject.NewMoneyUSD(receipt.Amount)
	for attempt := 0; ; attempt++ {
		invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return shared.NewDomainError("NOT_FOUND", "Invoice not found")
		}

		expectedVersion := invoice.Version
		if _, err := invoice.ApplyLedgerEntry(billing.LedgerEntryKindReceipt, receipt.ID, amount, "receipt cancellation rolled back"); err != nil {
			return err
		}

		err = s.invoiceRepo.SaveWithLock(ctx, invoice, expectedVersion)
		if err == nil {
			return nil
		}
		if !isConcurrencyConflict(err) || attempt+1 >= maxPaymentRetries {
			return err
		}
	}
}

// GetReceipt gets a receipt by ID
func (s *PaymentService) GetReceipt(ctx context.Context, id uuid.UUID) (*PaymentReceiptResponse, error) {
	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	return toReceiptResponse(receipt), nil
}

// ReceiptListFilter defines filtering options for receipt list queries
type ReceiptListFilter struct {
	InvoiceID  *uuid.UUID `form:"invoice_id"`
	Status     string     `form:"status"`
	Method     string     `form:"method"`
	Verified   *bool      `form:"verified"`
	Reconciled *bool      `form:"reconciled"`
	FromDate   *time.Time `form:"from_date"`
	ToDate     *time.Time `form:"to_date"`
	Page       int        `form:"page"`
	PageSize   int        `form:"page_size"`
}

// ListReceipts lists receipts with filtering
func (s *PaymentService) ListReceipts(ctx context.Context, filter ReceiptListFilter) ([]PaymentReceiptResponse, int64, error) {
	domainFilter := billing.PaymentReceiptFilter{
		InvoiceID:  filter.InvoiceID,
		Verified:   filter.Verified,
		Reconciled: filter.Reconciled,
		FromDate:   filter.FromDate,
		ToDate:     filter.ToDate,
	}
	domainFilter.Page = filter.Page
	domainFilter.PageSize = filter.PageSize

	if filter.Status != "" {
		status := billing.ReceiptStatus(filter.Status)
		domainFilter.Status = &status
	}
	if filter.Method != "" {
		method := billing.PaymentMethod(filter.Method)
		domainFilter.Method = &method
	}

	receipts, err := s.receiptRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.receiptRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]PaymentReceiptResponse, len(receipts))
	for i := range receipts {
		responses[i] = *toReceiptResponse(&receipts[i])
	}
	return responses, total, nil
}

// ListReceiptsForInvoice returns every receipt recorded against an invoice
func (s *PaymentService) ListReceiptsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]PaymentReceiptResponse, error) {
	receipts, err := s.receiptRepo.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	responses := make([]PaymentReceiptResponse, len(receipts))
	for i := range receipts {
		responses[i] = *toReceiptResponse(&receipts[i])
	}
	return responses, nil
}

func (s *PaymentService) getReceipt(ctx context.Context, id uuid.UUID) (*billing.PaymentReceipt, error) {
	receipt, err := s.receiptRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment receipt not found")
	}
	return receipt, nil
}
