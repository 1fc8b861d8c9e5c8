package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// QuotationFilter defines filtering options for quotation queries
type QuotationFilter struct {
	shared.BaseFilter
	LeadID     *uuid.UUID       // Filter by lead
	Status     *QuotationStatus // Filter by status
	FromDate   *time.Time       // Filter by creation date range start
	ToDate     *time.Time       // Filter by creation date range end
	ValidAfter *time.Time       // Filter by validity deadline
	MinAmount  *decimal.Decimal // Filter by minimum total amount
	MaxAmount  *decimal.Decimal // Filter by maximum total amount
}

// QuotationRepository defines the interface for quotation persistence
type QuotationRepository interface {
	// Save persists a quotation (create or update)
	Save(ctx context.Context, quotation *Quotation) error

	// SaveWithLock persists with optimistic concurrency control on Version
	SaveWithLock(ctx context.Context, quotation *Quotation, expectedVersion int) error

	// FindByID finds a quotation by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Quotation, error)

	// FindByNumber finds a quotation by its document number
	FindByNumber(ctx context.Context, quotationNumber string) (*Quotation, error)

	// FindByLead finds all quotations for a lead
	FindByLead(ctx context.Context, leadID uuid.UUID) ([]Quotation, error)

	// FindAll finds quotations with filtering and pagination
	FindAll(ctx context.Context, filter QuotationFilter) ([]Quotation, error)

	// FindExpirable finds quotations past their validity deadline that
	// are still in an expirable status
	FindExpirable(ctx context.Context, asOf time.Time, limit int) ([]Quotation, error)

	// Count counts quotations matching the filter
	Count(ctx context.Context, filter QuotationFilter) (int64, error)

	// CountByStatus counts quotations grouped by status
	CountByStatus(ctx context.Context) (map[QuotationStatus]int64, error)

	// Delete removes a quotation (drafts only, enforced by the service)
	Delete(ctx context.Context, id uuid.UUID) error
}

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.BaseFilter
	LeadID        *uuid.UUID       // Filter by lead
	QuotationID   *uuid.UUID       // Filter by originating quotation
	Status        *InvoiceStatus   // Filter by status
	PaymentStatus *PaymentStatus   // Filter by payment status
	FromDate      *time.Time       // Filter by creation date range start
	ToDate        *time.Time       // Filter by creation date range end
	DueFrom       *time.Time       // Filter by due date range start
	DueTo         *time.Time       // Filter by due date range end
	Overdue       *bool            // Filter only overdue invoices
	MinAmount     *decimal.Decimal // Filter by minimum total amount
	MaxAmount     *decimal.Decimal // Filter by maximum total amount
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// Save persists an invoice (create or update)
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock persists with optimistic concurrency control on Version
	SaveWithLock(ctx context.Context, invoice *Invoice, expectedVersion int) error

	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByNumber finds an invoice by its document number
	FindByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindByQuotation finds the invoice created from a quotation
	FindByQuotation(ctx context.Context, quotationID uuid.UUID) (*Invoice, error)

	// FindByLead finds all invoices for a lead
	FindByLead(ctx context.Context, leadID uuid.UUID) ([]Invoice, error)

	// FindAll finds invoices with filtering and pagination
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// FindDueForOverdue finds sent invoices past their due date that the
	// sweep should flag as overdue
	FindDueForOverdue(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)

	// Count counts invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// CountByStatus counts invoices grouped by status
	CountByStatus(ctx context.Context) (map[InvoiceStatus]int64, error)

	// SumOutstanding sums the outstanding amount across open invoices
	SumOutstanding(ctx context.Context) (decimal.Decimal, error)

	// SumCollected sums the paid amount across invoices in a date range
	SumCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// PaymentReceiptFilter defines filtering options for receipt queries
type PaymentReceiptFilter struct {
	shared.BaseFilter
	InvoiceID  *uuid.UUID     // Filter by invoice
	LeadID     *uuid.UUID     // Filter by lead
	Status     *ReceiptStatus // Filter by status
	Method     *PaymentMethod // Filter by payment method
	Verified   *bool          // Filter by verification flag
	Reconciled *bool          // Filter by reconciliation flag
	FromDate   *time.Time     // Filter by payment date range start
	ToDate     *time.Time     // Filter by payment date range end
}

// PaymentReceiptRepository defines the interface for receipt persistence
type PaymentReceiptRepository interface {
	// Save persists a payment receipt (create or update)
	Save(ctx context.Context, receipt *PaymentReceipt) error

	// FindByID finds a receipt by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentReceipt, error)

	// FindByNumber finds a receipt by its document number
	FindByNumber(ctx context.Context, receiptNumber string) (*PaymentReceipt, error)

	// FindByInvoice finds all receipts recorded against an invoice
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]PaymentReceipt, error)

	// FindAll finds receipts with filtering and pagination
	FindAll(ctx context.Context, filter PaymentReceiptFilter) ([]PaymentReceipt, error)

	// FindUnreconciled finds verified receipts awaiting reconciliation
	FindUnreconciled(ctx context.Context, limit int) ([]PaymentReceipt, error)

	// Count counts receipts matching the filter
	Count(ctx context.Context, filter PaymentReceiptFilter) (int64, error)

	// SumByMethod sums active receipt amounts grouped by payment method
	// within a date range
	SumByMethod(ctx context.Context, from, to time.Time) (map[PaymentMethod]decimal.Decimal, error)
}

// CreditNoteFilter defines filtering options for credit note queries
type CreditNoteFilter struct {
	shared.BaseFilter
	InvoiceID    *uuid.UUID        // Filter by invoice
	LeadID       *uuid.UUID        // Filter by lead
	Status       *CreditNoteStatus // Filter by status
	RefundStatus *RefundStatus     // Filter by refund leg status
	Reason       *CreditReason     // Filter by credit reason
	FromDate     *time.Time        // Filter by creation date range start
	ToDate       *time.Time        // Filter by creation date range end
}

// CreditNoteRepository defines the interface for credit note persistence
type CreditNoteRepository interface {
	// Save persists a credit note (create or update)
	Save(ctx context.Context, creditNote *CreditNote) error

	// SaveWithLock persists with optimistic concurrency control on Version
	SaveWithLock(ctx context.Context, creditNote *CreditNote, expectedVersion int) error

	// FindByID finds a credit note by ID
	FindByID(ctx context.Context, id uuid.UUID) (*CreditNote, error)

	// FindByNumber finds a credit note by its document number
	FindByNumber(ctx context.Context, creditNoteNumber string) (*CreditNote, error)

	// FindByInvoice finds all credit notes raised against an invoice
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]CreditNote, error)

	// FindByVoucherCode finds the credit note carrying a voucher code
	FindByVoucherCode(ctx context.Context, code string) (*CreditNote, error)

	// FindAll finds credit notes with filtering and pagination
	FindAll(ctx context.Context, filter CreditNoteFilter) ([]CreditNote, error)

	// Count counts credit notes matching the filter
	Count(ctx context.Context, filter CreditNoteFilter) (int64, error)

	// SumCredited sums issued or settled credit amounts in a date range
	SumCredited(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// DocumentSequenceRepository manages per-period document sequences. Next
// must be atomic so that concurrent callers never observe the same value.
type DocumentSequenceRepository interface {
	// Next atomically increments and returns the sequence value for the
	// document type and period
	Next(ctx context.Context, docType DocumentType, period string) (int64, error)
}
