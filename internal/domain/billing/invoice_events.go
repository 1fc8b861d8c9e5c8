package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	LeadID        uuid.UUID       `json:"lead_id"`
	QuotationID   *uuid.UUID      `json:"quotation_id,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return "InvoiceCreated"
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		LeadID:          inv.LeadID,
		QuotationID:     inv.QuotationID,
		TotalAmount:     inv.TotalAmount,
		DueDate:         inv.DueDate,
	}
}

// InvoicePaidEvent is raised when an invoice becomes fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	LeadID        uuid.UUID       `json:"lead_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return "InvoicePaid"
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		LeadID:          inv.LeadID,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
	}
}

// InvoicePartiallyPaidEvent is raised when a payment leaves a balance open
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	LeadID            uuid.UUID       `json:"lead_id"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// EventType returns the event type name
func (e *InvoicePartiallyPaidEvent) EventType() string {
	return "InvoicePartiallyPaid"
}

// NewInvoicePartiallyPaidEvent creates a new InvoicePartiallyPaidEvent
func NewInvoicePartiallyPaidEvent(inv *Invoice, paymentAmount decimal.Decimal) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("InvoicePartiallyPaid", "Invoice", inv.ID),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		LeadID:            inv.LeadID,
		PaymentAmount:     paymentAmount,
		PaidAmount:        inv.PaidAmount,
		OutstandingAmount: inv.OutstandingAmount,
	}
}

// InvoicePaymentReversedEvent is raised when a receipt cancellation
// reverses a ledger entry
type InvoicePaymentReversedEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	ReferenceID       uuid.UUID       `json:"reference_id"`
	ReversedAmount    decimal.Decimal `json:"reversed_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// EventType returns the event type name
func (e *InvoicePaymentReversedEvent) EventType() string {
	return "InvoicePaymentReversed"
}

// NewInvoicePaymentReversedEvent creates a new InvoicePaymentReversedEvent
func NewInvoicePaymentReversedEvent(inv *Invoice, amount decimal.Decimal, referenceID uuid.UUID) *InvoicePaymentReversedEvent {
	return &InvoicePaymentReversedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("InvoicePaymentReversed", "Invoice", inv.ID),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		ReferenceID:       referenceID,
		ReversedAmount:    amount,
		OutstandingAmount: inv.OutstandingAmount,
	}
}

// InvoiceCancelledEvent is raised when an invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	LeadID        uuid.UUID `json:"lead_id"`
	Reason        string    `json:"reason"`
}

// EventType returns the event type name
func (e *InvoiceCancelledEvent) EventType() string {
	return "InvoiceCancelled"
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCancelled", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		LeadID:          inv.LeadID,
		Reason:          inv.CancelReason,
	}
}

// InvoiceOverdueEvent is raised when the overdue sweep flags an invoice
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	LeadID            uuid.UUID       `json:"lead_id"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceOverdueEvent) EventType() string {
	return "InvoiceOverdue"
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("InvoiceOverdue", "Invoice", inv.ID),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		LeadID:            inv.LeadID,
		OutstandingAmount: inv.OutstandingAmount,
		DueDate:           inv.DueDate,
	}
}
