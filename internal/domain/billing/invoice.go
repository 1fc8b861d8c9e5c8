package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusViewed    InvoiceStatus = "VIEWED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPaid, InvoiceStatusPartial, InvoiceStatusOverdue,
		InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// PaymentStatus represents the settlement state of an invoice. It is a
// pure function of paid amount vs total amount, never set by callers.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusOverpaid PaymentStatus = "OVERPAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsValid checks if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid,
		PaymentStatusOverpaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsSettled returns true once no further payments can be applied
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusOverpaid || s == PaymentStatusRefunded
}

// DerivePaymentStatus computes the payment status from the invoice totals
// alone. The persisted payment_status column is only a cached projection of
// this function.
func DerivePaymentStatus(totalAmount, paidAmount decimal.Decimal) PaymentStatus {
	switch {
	case paidAmount.LessThanOrEqual(decimal.Zero):
		return PaymentStatusUnpaid
	case paidAmount.LessThan(totalAmount):
		return PaymentStatusPartial
	case paidAmount.Equal(totalAmount):
		return PaymentStatusPaid
	default:
		return PaymentStatusOverpaid
	}
}

// DeriveInvoiceStatus recomputes the cached invoice status from the
// settlement state, the due date and the explicit terminal flags. Order of
// precedence: terminal flags, fully paid, partially paid, overdue.
func DeriveInvoiceStatus(previous InvoiceStatus, paymentStatus PaymentStatus, dueDate *time.Time, now time.Time) InvoiceStatus {
	if previous == InvoiceStatusCancelled || previous == InvoiceStatusRefunded {
		return previous
	}
	switch {
	case paymentStatus == PaymentStatusPaid || paymentStatus == PaymentStatusOverpaid:
		return InvoiceStatusPaid
	case paymentStatus == PaymentStatusPartial:
		return InvoiceStatusPartial
	case dueDate != nil && now.After(*dueDate):
		return InvoiceStatusOverdue
	default:
		return previous
	}
}

// LedgerEntryKind identifies what produced a ledger entry on an invoice
type LedgerEntryKind string

const (
	LedgerEntryKindReceipt    LedgerEntryKind = "PAYMENT_RECEIPT"
	LedgerEntryKindCreditNote LedgerEntryKind = "CREDIT_NOTE"
)

// IsValid checks if the ledger entry kind is valid
func (k LedgerEntryKind) IsValid() bool {
	return k == LedgerEntryKindReceipt || k == LedgerEntryKindCreditNote
}

// LedgerEntryStatus represents the status of a ledger entry
type LedgerEntryStatus string

const (
	LedgerEntryStatusActive   LedgerEntryStatus = "ACTIVE"
	LedgerEntryStatusReversed LedgerEntryStatus = "REVERSED"
)

// LedgerEntry records one balance mutation applied to the invoice. Both
// payment receipts and applied credit notes produce entries through the
// same path, so the paid amount is always the sum of active entries.
type LedgerEntry struct {
	ID             uuid.UUID         `json:"id"`
	Kind           LedgerEntryKind   `json:"kind"`
	ReferenceID    uuid.UUID         `json:"reference_id"`
	Amount         decimal.Decimal   `json:"amount"`
	AppliedAt      time.Time         `json:"applied_at"`
	Remark         string            `json:"remark,omitempty"`
	Status         LedgerEntryStatus `json:"status"`
	ReversedAt     *time.Time        `json:"reversed_at,omitempty"`
	ReversalReason string            `json:"reversal_reason,omitempty"`
}

// IsActive returns true if the entry still counts toward the paid amount
func (e *LedgerEntry) IsActive() bool {
	return e.Status == LedgerEntryStatusActive
}

// LedgerEntries is a slice of LedgerEntry that implements GORM Scanner/Valuer for JSONB storage
type LedgerEntries []LedgerEntry

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l LedgerEntries) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *LedgerEntries) Scan(value interface{}) error {
	if value == nil {
		*l = LedgerEntries{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan LedgerEntries: unsupported type")
	}

	if len(bytes) == 0 {
		*l = LedgerEntries{}
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// ActiveTotal sums the amounts of all active entries
func (l LedgerEntries) ActiveTotal() decimal.Decimal {
	sum := decimal.Zero
	for i := range l {
		if l[i].IsActive() {
			sum = sum.Add(l[i].Amount)
		}
	}
	return sum
}

// Invoice represents a billable demand for payment. It is the aggregate
// holding the shared mutable balance; all balance mutations go through
// ApplyLedgerEntry/ReverseLedgerEntry and are persisted with optimistic
// locking.
type Invoice struct {
	shared.AuditedAggregateRoot
	InvoiceNumber       string           `json:"invoice_number"`
	LeadID              uuid.UUID        `json:"lead_id"`
	QuotationID         *uuid.UUID       `json:"quotation_id,omitempty"`
	BookingRef          string           `json:"booking_ref,omitempty"`
	Customer            CustomerSnapshot `json:"customer"`
	Items               LineItems        `json:"items"`
	Pricing             PricingParams    `json:"pricing"`
	Subtotal            decimal.Decimal  `json:"subtotal"`
	DiscountAmount      decimal.Decimal  `json:"discount_amount"`
	ServiceChargeAmount decimal.Decimal  `json:"service_charge_amount"`
	TaxAmount           decimal.Decimal  `json:"tax_amount"`
	TotalAmount         decimal.Decimal  `json:"total_amount"`
	PaidAmount          decimal.Decimal  `json:"paid_amount"`
	OutstandingAmount   decimal.Decimal  `json:"outstanding_amount"`
	Status              InvoiceStatus    `json:"status"`
	PaymentStatus       PaymentStatus    `json:"payment_status"`
	DueDate             *time.Time       `json:"due_date,omitempty"`
	Ledger              LedgerEntries    `json:"ledger"`
	Notes               string           `json:"notes,omitempty"`
	ReminderCount       int              `json:"reminder_count"`
	LastReminderAt      *time.Time       `json:"last_reminder_at,omitempty"`
	SentAt              *time.Time       `json:"sent_at,omitempty"`
	ViewedAt            *time.Time       `json:"viewed_at,omitempty"`
	PaidAt              *time.Time       `json:"paid_at,omitempty"`
	RefundedAt          *time.Time       `json:"refunded_at,omitempty"`
	CancelledAt         *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason        string           `json:"cancel_reason,omitempty"`
}

// NewInvoice creates a new invoice in DRAFT with derived financials
func NewInvoice(
	invoiceNumber string,
	leadID uuid.UUID,
	customer CustomerSnapshot,
	items LineItems,
	pricing PricingParams,
	dueDate *time.Time,
	quotationID *uuid.UUID,
	bookingRef string,
	notes string,
	createdBy *uuid.UUID,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot be empty")
	}
	if leadID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Lead is required")
	}
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	if err := items.Validate(); err != nil {
		return nil, err
	}

	result, err := Calculate(items, pricing)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		AuditedAggregateRoot: shared.NewAuditedAggregateRoot(),
		InvoiceNumber:        invoiceNumber,
		LeadID:               leadID,
		QuotationID:          quotationID,
		BookingRef:           bookingRef,
		Customer:             customer,
		Items:                items,
		Pricing:              pricing,
		Subtotal:             result.Subtotal,
		DiscountAmount:       result.DiscountAmount,
		ServiceChargeAmount:  result.ServiceChargeAmount,
		TaxAmount:            result.TaxAmount,
		TotalAmount:          result.TotalAmount,
		PaidAmount:           decimal.Zero,
		OutstandingAmount:    result.TotalAmount,
		Status:               InvoiceStatusDraft,
		PaymentStatus:        PaymentStatusUnpaid,
		DueDate:              dueDate,
		Ledger:               LedgerEntries{},
		Notes:                notes,
	}
	if createdBy != nil {
		inv.SetCreatedBy(*createdBy)
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// refreshDerived recomputes outstanding amount, payment status and the
// cached status from the current totals. Called after every mutation.
func (inv *Invoice) refreshDerived(now time.Time) {
	inv.OutstandingAmount = inv.TotalAmount.Sub(inv.PaidAmount)
	inv.PaymentStatus = DerivePaymentStatus(inv.TotalAmount, inv.PaidAmount)
	inv.Status = DeriveInvoiceStatus(inv.Status, inv.PaymentStatus, inv.DueDate, now)
}

// RefreshStatus recomputes the cached status fields, used by the overdue
// sweep. Returns true if the status changed.
func (inv *Invoice) RefreshStatus(now time.Time) bool {
	previous := inv.Status
	inv.refreshDerived(now)
	if inv.Status != previous {
		inv.UpdatedAt = now
		inv.IncrementVersion()
		if inv.Status == InvoiceStatusOverdue {
			inv.AddDomainEvent(NewInvoiceOverdueEvent(inv))
		}
		return true
	}
	return false
}

// CanAcceptPayment returns true if ledger entries may be applied
func (inv *Invoice) CanAcceptPayment() bool {
	return inv.Status != InvoiceStatusCancelled && !inv.PaymentStatus.IsSettled()
}

// ApplyLedgerEntry appends a balance mutation to the invoice. This is the
// single shared path for payment receipts and applied credit notes.
// Guards run before any mutation; on failure the invoice is unchanged.
func (inv *Invoice) ApplyLedgerEntry(kind LedgerEntryKind, referenceID uuid.UUID, amount valueobject.Money, remark string) (*LedgerEntry, error) {
	if inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot apply payment to a cancelled invoice")
	}
	if inv.PaymentStatus.IsSettled() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Invoice is already %s", inv.PaymentStatus))
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Ledger entry kind is not valid")
	}
	if referenceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Ledger entry reference cannot be empty")
	}
	for i := range inv.Ledger {
		if inv.Ledger[i].ReferenceID == referenceID && inv.Ledger[i].IsActive() {
			return nil, shared.NewDomainError("ALREADY_PROCESSED",
				fmt.Sprintf("Reference %s already has an active ledger entry", referenceID))
		}
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.Amount().GreaterThan(inv.OutstandingAmount) {
		return nil, shared.NewDomainError("EXCEEDS_OUTSTANDING",
			fmt.Sprintf("Payment amount %s exceeds outstanding amount %s",
				amount.StringFixed(), inv.OutstandingAmount.StringFixed(2)))
	}

	now := time.Now()
	entry := LedgerEntry{
		ID:          uuid.New(),
		Kind:        kind,
		ReferenceID: referenceID,
		Amount:      amount.Amount(),
		AppliedAt:   now,
		Remark:      remark,
		Status:      LedgerEntryStatusActive,
	}
	inv.Ledger = append(inv.Ledger, entry)
	inv.PaidAmount = inv.PaidAmount.Add(amount.Amount())
	inv.refreshDerived(now)

	if inv.PaymentStatus == PaymentStatusPaid || inv.PaymentStatus == PaymentStatusOverpaid {
		inv.PaidAt = &now
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	} else {
		inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv, amount.Amount()))
	}

	inv.UpdatedAt = now
	inv.IncrementVersion()

	return &inv.Ledger[len(inv.Ledger)-1], nil
}

// ReverseLedgerEntry reverses the active entry referencing the given
// document (receipt cancellation). Returns the reversed amount.
func (inv *Invoice) ReverseLedgerEntry(referenceID uuid.UUID, reason string) (decimal.Decimal, error) {
	if reason == "" {
		return decimal.Zero, shared.NewDomainError("VALIDATION_ERROR", "Reversal reason is required")
	}

	var entry *LedgerEntry
	for i := range inv.Ledger {
		if inv.Ledger[i].ReferenceID == referenceID && inv.Ledger[i].IsActive() {
			entry = &inv.Ledger[i]
			break
		}
	}
	if entry == nil {
		return decimal.Zero, shared.NewDomainError("NOT_FOUND", "No active ledger entry for this reference")
	}

	now := time.Now()
	entry.Status = LedgerEntryStatusReversed
	entry.ReversedAt = &now
	entry.ReversalReason = reason

	inv.PaidAmount = inv.PaidAmount.Sub(entry.Amount)
	if inv.PaymentStatus.IsSettled() {
		// A reversal reopens a settled invoice
		inv.PaidAt = nil
	}
	inv.refreshDerived(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoicePaymentReversedEvent(inv, entry.Amount, referenceID))

	return entry.Amount, nil
}

// UpdateDetails modifies the invoice content. Editing is allowed even for
// paid invoices, but the derived balance fields are always recomputed from
// the existing paid amount so payment history is never silently erased.
func (inv *Invoice) UpdateDetails(items LineItems, pricing PricingParams, dueDate *time.Time, bookingRef, notes string) error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("FORBIDDEN", "Cannot edit a cancelled invoice")
	}
	if err := items.Validate(); err != nil {
		return err
	}

	result, err := Calculate(items, pricing)
	if err != nil {
		return err
	}

	inv.Items = items
	inv.Pricing = pricing
	inv.Subtotal = result.Subtotal
	inv.DiscountAmount = result.DiscountAmount
	inv.ServiceChargeAmount = result.ServiceChargeAmount
	inv.TaxAmount = result.TaxAmount
	inv.TotalAmount = result.TotalAmount
	inv.DueDate = dueDate
	inv.BookingRef = bookingRef
	inv.Notes = notes

	now := time.Now()
	inv.refreshDerived(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// Cancel cancels the invoice. A paid invoice cannot be cancelled; issue a
// credit note instead.
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("FORBIDDEN", "Invoice is already cancelled")
	}
	if inv.PaymentStatus == PaymentStatusPaid || inv.PaymentStatus == PaymentStatusOverpaid {
		return shared.NewDomainError("FORBIDDEN", "Cannot cancel a paid invoice; issue a credit note instead")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))

	return nil
}

// MarkRefunded flags the invoice as refunded after a credit note refund
// completes
func (inv *Invoice) MarkRefunded() error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot refund a cancelled invoice")
	}
	if inv.Status == InvoiceStatusRefunded {
		return shared.NewDomainError("ALREADY_PROCESSED", "Invoice is already refunded")
	}

	now := time.Now()
	inv.Status = InvoiceStatusRefunded
	inv.PaymentStatus = PaymentStatusRefunded
	inv.RefundedAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// Send marks the invoice as sent to the customer
func (inv *Invoice) Send() error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot send a cancelled invoice")
	}

	now := time.Now()
	if inv.Status == InvoiceStatusDraft {
		inv.Status = InvoiceStatusSent
	}
	inv.SentAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// MarkViewed records that the customer opened the invoice
func (inv *Invoice) MarkViewed() error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot mark a cancelled invoice viewed")
	}

	now := time.Now()
	if inv.Status == InvoiceStatusSent {
		inv.Status = InvoiceStatusViewed
	}
	inv.ViewedAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// RecordReminder increments the reminder counter. Sending a reminder never
// changes the document status.
func (inv *Invoice) RecordReminder() error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot remind on a cancelled invoice")
	}
	if inv.PaymentStatus.IsSettled() {
		return shared.NewDomainError("INVALID_STATE", "Invoice is already settled")
	}

	now := time.Now()
	inv.ReminderCount++
	inv.LastReminderAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}
