package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
)

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer,
		PaymentMethodCheque, PaymentMethodOnline:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentType distinguishes an advance payment from a final settlement
type PaymentType string

const (
	PaymentTypeAdvance PaymentType = "ADVANCE"
	PaymentTypeFinal   PaymentType = "FINAL"
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	return t == PaymentTypeAdvance || t == PaymentTypeFinal
}

// ReceiptStatus represents the status of a payment receipt. It is derived
// once, at creation, from the invoice balance that resulted from the
// payment; it is never recomputed afterwards.
type ReceiptStatus string

const (
	ReceiptStatusPaidInAdvance  ReceiptStatus = "PAID_IN_ADVANCE"
	ReceiptStatusPaidInFull     ReceiptStatus = "PAID_IN_FULL"
	ReceiptStatusPartialPayment ReceiptStatus = "PARTIAL_PAYMENT"
	ReceiptStatusRefunded       ReceiptStatus = "REFUNDED"
	ReceiptStatusCancelled      ReceiptStatus = "CANCELLED"
)

// IsValid checks if the receipt status is valid
func (s ReceiptStatus) IsValid() bool {
	switch s {
	case ReceiptStatusPaidInAdvance, ReceiptStatusPaidInFull,
		ReceiptStatusPartialPayment, ReceiptStatusRefunded, ReceiptStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of ReceiptStatus
func (s ReceiptStatus) String() string {
	return string(s)
}

// PaymentDetails holds method-specific payment fields, stored as JSONB
type PaymentDetails struct {
	CardLast4     string     `json:"card_last4,omitempty"`
	CardHolder    string     `json:"card_holder,omitempty"`
	BankName      string     `json:"bank_name,omitempty"`
	TransferRef   string     `json:"transfer_ref,omitempty"`
	ChequeNumber  string     `json:"cheque_number,omitempty"`
	ChequeDate    *time.Time `json:"cheque_date,omitempty"`
	Gateway       string     `json:"gateway,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
}

// Validate checks that the fields required by the payment method are present
func (d PaymentDetails) Validate(method PaymentMethod) error {
	switch method {
	case PaymentMethodCard:
		if d.CardLast4 == "" {
			return shared.NewDomainError("VALIDATION_ERROR", "Card payments require the last four digits")
		}
	case PaymentMethodBankTransfer:
		if d.TransferRef == "" {
			return shared.NewDomainError("VALIDATION_ERROR", "Bank transfers require a transfer reference")
		}
	case PaymentMethodCheque:
		if d.ChequeNumber == "" {
			return shared.NewDomainError("VALIDATION_ERROR", "Cheque payments require a cheque number")
		}
	case PaymentMethodOnline:
		if d.TransactionID == "" {
			return shared.NewDomainError("VALIDATION_ERROR", "Online payments require a transaction ID")
		}
	}
	return nil
}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (d PaymentDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (d *PaymentDetails) Scan(value interface{}) error {
	if value == nil {
		*d = PaymentDetails{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentDetails: unsupported type")
	}

	if len(bytes) == 0 {
		*d = PaymentDetails{}
		return nil
	}

	return json.Unmarshal(bytes, d)
}

// PaymentReceipt is an append-only ledger document recording money
// received against an invoice. Once created it is never financially
// mutated; it can only be annotated (verified, reconciled) or
// soft-cancelled, which reverses its effect on the invoice.
type PaymentReceipt struct {
	shared.AuditedAggregateRoot
	ReceiptNumber string          `json:"receipt_number"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	LeadID        uuid.UUID       `json:"lead_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaymentType   PaymentType     `json:"payment_type"`
	Details       PaymentDetails  `json:"details"`
	Status        ReceiptStatus   `json:"status"`
	PaymentDate   time.Time       `json:"payment_date"`
	Verified      bool            `json:"verified"`
	VerifiedBy    *uuid.UUID      `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	Reconciled    bool            `json:"reconciled"`
	ReconciledBy  *uuid.UUID      `json:"reconciled_by,omitempty"`
	ReconciledAt  *time.Time      `json:"reconciled_at,omitempty"`
	CancelledBy   *uuid.UUID      `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	Remark        string          `json:"remark,omitempty"`
}

// NewPaymentReceipt creates a receipt for a payment that has already been
// applied to the invoice. The receipt status is derived once from the
// invoice's resulting balance.
func NewPaymentReceipt(
	receiptNumber string,
	invoice *Invoice,
	amount valueobject.Money,
	method PaymentMethod,
	paymentType PaymentType,
	details PaymentDetails,
	remark string,
	createdBy *uuid.UUID,
) (*PaymentReceipt, error) {
	if receiptNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Receipt number cannot be empty")
	}
	if invoice == nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice is required")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Receipt amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment method is not valid")
	}
	if !paymentType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment type is not valid")
	}
	if err := details.Validate(method); err != nil {
		return nil, err
	}

	var status ReceiptStatus
	switch {
	case invoice.PaymentStatus == PaymentStatusPaid || invoice.PaymentStatus == PaymentStatusOverpaid:
		status = ReceiptStatusPaidInFull
	case paymentType == PaymentTypeAdvance:
		status = ReceiptStatusPaidInAdvance
	default:
		status = ReceiptStatusPartialPayment
	}

	r := &PaymentReceipt{
		AuditedAggregateRoot: shared.NewAuditedAggregateRoot(),
		ReceiptNumber:        receiptNumber,
		InvoiceID:            invoice.ID,
		LeadID:               invoice.LeadID,
		Amount:               amount.Amount(),
		Method:               method,
		PaymentType:          paymentType,
		Details:              details,
		Status:               status,
		PaymentDate:          time.Now(),
		Remark:               remark,
	}
	if createdBy != nil {
		r.SetCreatedBy(*createdBy)
	}

	r.AddDomainEvent(NewPaymentReceiptCreatedEvent(r))

	return r, nil
}

// IsCancelled returns true if the receipt was soft-cancelled
func (r *PaymentReceipt) IsCancelled() bool {
	return r.Status == ReceiptStatusCancelled
}

// Verify marks the receipt as verified by the given user. One-way.
func (r *PaymentReceipt) Verify(userID uuid.UUID) error {
	if r.IsCancelled() {
		return shared.NewDomainError("INVALID_STATE", "Cannot verify a cancelled receipt")
	}
	if r.Verified {
		return shared.NewDomainError("ALREADY_PROCESSED", "Receipt is already verified")
	}
	if userID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Verifying user is required")
	}

	now := time.Now()
	r.Verified = true
	r.VerifiedBy = &userID
	r.VerifiedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	return nil
}

// Reconcile marks the receipt as reconciled against the bank statement.
// Requires prior verification. One-way; reconciled receipts are immutable.
func (r *PaymentReceipt) Reconcile(userID uuid.UUID) error {
	if r.IsCancelled() {
		return shared.NewDomainError("INVALID_STATE", "Cannot reconcile a cancelled receipt")
	}
	if !r.Verified {
		return shared.NewDomainError("INVALID_STATE", "Receipt must be verified before reconciliation")
	}
	if r.Reconciled {
		return shared.NewDomainError("ALREADY_PROCESSED", "Receipt is already reconciled")
	}
	if userID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Reconciling user is required")
	}

	now := time.Now()
	r.Reconciled = true
	r.ReconciledBy = &userID
	r.ReconciledAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	return nil
}

// Cancel soft-cancels the receipt. Reconciled receipts are immutable; the
// caller is responsible for reversing the invoice effect through the same
// atomic path that recorded it.
func (r *PaymentReceipt) Cancel(reason string, userID uuid.UUID) error {
	if r.Reconciled {
		return shared.NewDomainError("FORBIDDEN", "Cannot cancel a reconciled receipt")
	}
	if r.IsCancelled() {
		return shared.NewDomainError("ALREADY_PROCESSED", "Receipt is already cancelled")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Cancel reason is required")
	}

	now := time.Now()
	r.Status = ReceiptStatusCancelled
	r.CancelledAt = &now
	r.CancelReason = reason
	if userID != uuid.Nil {
		r.CancelledBy = &userID
	}
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewPaymentReceiptCancelledEvent(r))

	return nil
}

// GetAmountMoney returns the receipt amount as a Money value object
func (r *PaymentReceipt) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(r.Amount)
}

// PaymentReceiptCreatedEvent is raised when a payment is recorded
type PaymentReceiptCreatedEvent struct {
	shared.BaseDomainEvent
	ReceiptID     uuid.UUID       `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	LeadID        uuid.UUID       `json:"lead_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
}

// EventType returns the event type name
func (e *PaymentReceiptCreatedEvent) EventType() string {
	return "PaymentReceiptCreated"
}

// NewPaymentReceiptCreatedEvent creates a new PaymentReceiptCreatedEvent
func NewPaymentReceiptCreatedEvent(r *PaymentReceipt) *PaymentReceiptCreatedEvent {
	return &PaymentReceiptCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentReceiptCreated", "PaymentReceipt", r.ID),
		ReceiptID:       r.ID,
		ReceiptNumber:   r.ReceiptNumber,
		InvoiceID:       r.InvoiceID,
		LeadID:          r.LeadID,
		Amount:          r.Amount,
		Method:          r.Method,
	}
}

// PaymentReceiptCancelledEvent is raised when a receipt is soft-cancelled
type PaymentReceiptCancelledEvent struct {
	shared.BaseDomainEvent
	ReceiptID     uuid.UUID       `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

// EventType returns the event type name
func (e *PaymentReceiptCancelledEvent) EventType() string {
	return "PaymentReceiptCancelled"
}

// NewPaymentReceiptCancelledEvent creates a new PaymentReceiptCancelledEvent
func NewPaymentReceiptCancelledEvent(r *PaymentReceipt) *PaymentReceiptCancelledEvent {
	return &PaymentReceiptCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentReceiptCancelled", "PaymentReceipt", r.ID),
		ReceiptID:       r.ID,
		ReceiptNumber:   r.ReceiptNumber,
		InvoiceID:       r.InvoiceID,
		Amount:          r.Amount,
		Reason:          r.CancelReason,
	}
}