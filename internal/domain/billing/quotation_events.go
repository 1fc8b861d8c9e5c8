package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// QuotationCreatedEvent is raised when a new quotation is created
type QuotationCreatedEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID       `json:"quotation_id"`
	QuotationNumber string          `json:"quotation_number"`
	LeadID          uuid.UUID       `json:"lead_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ValidUntil      time.Time       `json:"valid_until"`
}

// EventType returns the event type name
func (e *QuotationCreatedEvent) EventType() string {
	return "QuotationCreated"
}

// NewQuotationCreatedEvent creates a new QuotationCreatedEvent
func NewQuotationCreatedEvent(q *Quotation) *QuotationCreatedEvent {
	return &QuotationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationCreated", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		TotalAmount:     q.TotalAmount,
		ValidUntil:      q.ValidUntil,
	}
}

// QuotationSentEvent is raised when a quotation is sent to the customer
type QuotationSentEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID `json:"quotation_id"`
	QuotationNumber string    `json:"quotation_number"`
	LeadID          uuid.UUID `json:"lead_id"`
	CustomerEmail   string    `json:"customer_email"`
}

// EventType returns the event type name
func (e *QuotationSentEvent) EventType() string {
	return "QuotationSent"
}

// NewQuotationSentEvent creates a new QuotationSentEvent
func NewQuotationSentEvent(q *Quotation) *QuotationSentEvent {
	return &QuotationSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationSent", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		CustomerEmail:   q.Customer.Email,
	}
}

// QuotationAcceptedEvent is raised when the customer accepts a quotation
type QuotationAcceptedEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID       `json:"quotation_id"`
	QuotationNumber string          `json:"quotation_number"`
	LeadID          uuid.UUID       `json:"lead_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *QuotationAcceptedEvent) EventType() string {
	return "QuotationAccepted"
}

// NewQuotationAcceptedEvent creates a new QuotationAcceptedEvent
func NewQuotationAcceptedEvent(q *Quotation) *QuotationAcceptedEvent {
	return &QuotationAcceptedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationAccepted", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		TotalAmount:     q.TotalAmount,
	}
}

// QuotationRejectedEvent is raised when the customer rejects a quotation
type QuotationRejectedEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID `json:"quotation_id"`
	QuotationNumber string    `json:"quotation_number"`
	LeadID          uuid.UUID `json:"lead_id"`
	Reason          string    `json:"reason"`
}

// EventType returns the event type name
func (e *QuotationRejectedEvent) EventType() string {
	return "QuotationRejected"
}

// NewQuotationRejectedEvent creates a new QuotationRejectedEvent
func NewQuotationRejectedEvent(q *Quotation) *QuotationRejectedEvent {
	return &QuotationRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationRejected", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		Reason:          q.RejectionReason,
	}
}

// QuotationExpiredEvent is raised when a quotation passes its validity deadline
type QuotationExpiredEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID `json:"quotation_id"`
	QuotationNumber string    `json:"quotation_number"`
	LeadID          uuid.UUID `json:"lead_id"`
	ValidUntil      time.Time `json:"valid_until"`
}

// EventType returns the event type name
func (e *QuotationExpiredEvent) EventType() string {
	return "QuotationExpired"
}

// NewQuotationExpiredEvent creates a new QuotationExpiredEvent
func NewQuotationExpiredEvent(q *Quotation) *QuotationExpiredEvent {
	return &QuotationExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationExpired", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		ValidUntil:      q.ValidUntil,
	}
}

// QuotationConvertedEvent is raised when a quotation is converted to an invoice
type QuotationConvertedEvent struct {
	shared.BaseDomainEvent
	QuotationID     uuid.UUID       `json:"quotation_id"`
	QuotationNumber string          `json:"quotation_number"`
	LeadID          uuid.UUID       `json:"lead_id"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *QuotationConvertedEvent) EventType() string {
	return "QuotationConverted"
}

// NewQuotationConvertedEvent creates a new QuotationConvertedEvent
func NewQuotationConvertedEvent(q *Quotation, invoiceID uuid.UUID) *QuotationConvertedEvent {
	return &QuotationConvertedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("QuotationConverted", "Quotation", q.ID),
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		LeadID:          q.LeadID,
		InvoiceID:       invoiceID,
		TotalAmount:     q.TotalAmount,
	}
}
