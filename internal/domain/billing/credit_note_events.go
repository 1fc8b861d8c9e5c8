package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// CreditNoteCreatedEvent is raised when a draft credit note is created
type CreditNoteCreatedEvent struct {
	shared.BaseDomainEvent
	CreditNoteID     uuid.UUID       `json:"credit_note_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	LeadID           uuid.UUID       `json:"lead_id"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           CreditReason    `json:"reason"`
}

// EventType returns the event type name
func (e *CreditNoteCreatedEvent) EventType() string {
	return "CreditNoteCreated"
}

// NewCreditNoteCreatedEvent creates a new CreditNoteCreatedEvent
func NewCreditNoteCreatedEvent(cn *CreditNote) *CreditNoteCreatedEvent {
	return &CreditNoteCreatedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("CreditNoteCreated", "CreditNote", cn.ID),
		CreditNoteID:     cn.ID,
		CreditNoteNumber: cn.CreditNoteNumber,
		InvoiceID:        cn.InvoiceID,
		LeadID:           cn.LeadID,
		Amount:           cn.Amount,
		Reason:           cn.Reason,
	}
}

// CreditNoteIssuedEvent is raised when a credit note is issued
type CreditNoteIssuedEvent struct {
	shared.BaseDomainEvent
	CreditNoteID     uuid.UUID       `json:"credit_note_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	Amount           decimal.Decimal `json:"amount"`
	SettlementMode   SettlementMode  `json:"settlement_mode"`
}

// EventType returns the event type name
func (e *CreditNoteIssuedEvent) EventType() string {
	return "CreditNoteIssued"
}

// NewCreditNoteIssuedEvent creates a new CreditNoteIssuedEvent
func NewCreditNoteIssuedEvent(cn *CreditNote) *CreditNoteIssuedEvent {
	return &CreditNoteIssuedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("CreditNoteIssued", "CreditNote", cn.ID),
		CreditNoteID:     cn.ID,
		CreditNoteNumber: cn.CreditNoteNumber,
		InvoiceID:        cn.InvoiceID,
		Amount:           cn.Amount,
		SettlementMode:   cn.SettlementMode,
	}
}

// CreditNoteSettledEvent is raised when a credit note reaches a settled
// status through application, refund, or voucher generation
type CreditNoteSettledEvent struct {
	shared.BaseDomainEvent
	CreditNoteID     uuid.UUID        `json:"credit_note_id"`
	CreditNoteNumber string           `json:"credit_note_number"`
	InvoiceID        uuid.UUID        `json:"invoice_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Status           CreditNoteStatus `json:"status"`
	SettlementMode   SettlementMode   `json:"settlement_mode"`
	VoucherCode      string           `json:"voucher_code,omitempty"`
}

// EventType returns the event type name
func (e *CreditNoteSettledEvent) EventType() string {
	return "CreditNoteSettled"
}

// NewCreditNoteSettledEvent creates a new CreditNoteSettledEvent
func NewCreditNoteSettledEvent(cn *CreditNote) *CreditNoteSettledEvent {
	return &CreditNoteSettledEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("CreditNoteSettled", "CreditNote", cn.ID),
		CreditNoteID:     cn.ID,
		CreditNoteNumber: cn.CreditNoteNumber,
		InvoiceID:        cn.InvoiceID,
		Amount:           cn.Amount,
		Status:           cn.Status,
		SettlementMode:   cn.SettlementMode,
		VoucherCode:      cn.StoreVoucher.Code,
	}
}

// CreditNoteCancelledEvent is raised when a credit note is cancelled or
// its approval is rejected
type CreditNoteCancelledEvent struct {
	shared.BaseDomainEvent
	CreditNoteID     uuid.UUID       `json:"credit_note_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason"`
}

// EventType returns the event type name
func (e *CreditNoteCancelledEvent) EventType() string {
	return "CreditNoteCancelled"
}

// NewCreditNoteCancelledEvent creates a new CreditNoteCancelledEvent
func NewCreditNoteCancelledEvent(cn *CreditNote) *CreditNoteCancelledEvent {
	return &CreditNoteCancelledEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("CreditNoteCancelled", "CreditNote", cn.ID),
		CreditNoteID:     cn.ID,
		CreditNoteNumber: cn.CreditNoteNumber,
		InvoiceID:        cn.InvoiceID,
		Amount:           cn.Amount,
		Reason:           cn.CancelReason,
	}
}
