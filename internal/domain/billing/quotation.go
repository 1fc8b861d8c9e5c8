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
)

// QuotationStatus represents the status of a quotation
type QuotationStatus string

const (
	QuotationStatusDraft     QuotationStatus = "DRAFT"
	QuotationStatusSent      QuotationStatus = "SENT"
	QuotationStatusViewed    QuotationStatus = "VIEWED"
	QuotationStatusAccepted  QuotationStatus = "ACCEPTED"
	QuotationStatusRejected  QuotationStatus = "REJECTED"
	QuotationStatusExpired   QuotationStatus = "EXPIRED"
	QuotationStatusConverted QuotationStatus = "CONVERTED"
)

// IsValid checks if the status is a valid QuotationStatus
func (s QuotationStatus) IsValid() bool {
	switch s {
	case QuotationStatusDraft, QuotationStatusSent, QuotationStatusViewed,
		QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired,
		QuotationStatusConverted:
		return true
	}
	return false
}

// String returns the string representation of QuotationStatus
func (s QuotationStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the quotation is in a terminal state
func (s QuotationStatus) IsTerminal() bool {
	return s == QuotationStatusConverted || s == QuotationStatusRejected || s == QuotationStatusExpired
}

// IsEditable returns true if the quotation content can still be modified
func (s QuotationStatus) IsEditable() bool {
	return s == QuotationStatusDraft || s == QuotationStatusSent || s == QuotationStatusViewed
}

// CanExpire returns true if the status participates in automatic expiry
func (s QuotationStatus) CanExpire() bool {
	return s == QuotationStatusSent || s == QuotationStatusViewed || s == QuotationStatusAccepted
}

// RevisionEntry records an edit made to a quotation after it was sent
type RevisionEntry struct {
	Version  int        `json:"version"`
	EditedAt time.Time  `json:"edited_at"`
	EditedBy *uuid.UUID `json:"edited_by,omitempty"`
	Note     string     `json:"note,omitempty"`
}

// RevisionHistory is a slice of RevisionEntry that implements GORM Scanner/Valuer for JSONB storage
type RevisionHistory []RevisionEntry

// Value implements driver.Valuer interface for GORM to store as JSONB
func (r RevisionHistory) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (r *RevisionHistory) Scan(value interface{}) error {
	if value == nil {
		*r = RevisionHistory{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan RevisionHistory: unsupported type")
	}

	if len(bytes) == 0 {
		*r = RevisionHistory{}
		return nil
	}

	return json.Unmarshal(bytes, r)
}

// DefaultQuotationValidity is how long a quotation stays open when no
// explicit deadline is given
const DefaultQuotationValidity = 30 * 24 * time.Hour

// Quotation represents a priced, time-bounded offer sent to a lead.
// It is an aggregate root; line items and the customer snapshot are value
// objects owned exclusively by the quotation.
type Quotation struct {
	shared.AuditedAggregateRoot
	QuotationNumber      string           `json:"quotation_number"`
	LeadID               uuid.UUID        `json:"lead_id"`
	Customer             CustomerSnapshot `json:"customer"`
	Items                LineItems        `json:"items"`
	Pricing              PricingParams    `json:"pricing"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	DiscountAmount       decimal.Decimal  `json:"discount_amount"`
	ServiceChargeAmount  decimal.Decimal  `json:"service_charge_amount"`
	TaxAmount            decimal.Decimal  `json:"tax_amount"`
	TotalAmount          decimal.Decimal  `json:"total_amount"`
	Status               QuotationStatus  `json:"status"`
	ValidUntil           time.Time        `json:"valid_until"`
	ConvertedToInvoiceID *uuid.UUID       `json:"converted_to_invoice_id,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	RejectionReason      string           `json:"rejection_reason,omitempty"`
	RevisionHistory      RevisionHistory  `json:"revision_history"`
	SentAt               *time.Time       `json:"sent_at,omitempty"`
	ViewedAt             *time.Time       `json:"viewed_at,omitempty"`
	AcceptedAt           *time.Time       `json:"accepted_at,omitempty"`
	RejectedAt           *time.Time       `json:"rejected_at,omitempty"`
	ExpiredAt            *time.Time       `json:"expired_at,omitempty"`
	ConvertedAt          *time.Time       `json:"converted_at,omitempty"`
}

// NewQuotation creates a new quotation in DRAFT with the customer snapshot
// copied from the lead and all financial fields derived by Calculate
func NewQuotation(
	quotationNumber string,
	lead *Lead,
	items LineItems,
	pricing PricingParams,
	validUntil *time.Time,
	notes string,
	createdBy *uuid.UUID,
) (*Quotation, error) {
	if quotationNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Quotation number cannot be empty")
	}
	if lead == nil || lead.ID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Lead is required")
	}
	customer := lead.Snapshot()
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

	deadline := time.Now().Add(DefaultQuotationValidity)
	if validUntil != nil {
		deadline = *validUntil
	}

	q := &Quotation{
		AuditedAggregateRoot: shared.NewAuditedAggregateRoot(),
		QuotationNumber:      quotationNumber,
		LeadID:               lead.ID,
		Customer:             customer,
		Items:                items,
		Pricing:              pricing,
		Subtotal:             result.Subtotal,
		DiscountAmount:       result.DiscountAmount,
		ServiceChargeAmount:  result.ServiceChargeAmount,
		TaxAmount:            result.TaxAmount,
		TotalAmount:          result.TotalAmount,
		Status:               QuotationStatusDraft,
		ValidUntil:           deadline,
		Notes:                notes,
		RevisionHistory:      RevisionHistory{},
	}
	if createdBy != nil {
		q.SetCreatedBy(*createdBy)
	}

	q.AddDomainEvent(NewQuotationCreatedEvent(q))

	return q, nil
}

// recalculate re-derives the financial fields from items and pricing.
// Called on every mutating operation; derived fields are never trusted
// from caller input.
func (q *Quotation) recalculate() error {
	result, err := Calculate(q.Items, q.Pricing)
	if err != nil {
		return err
	}
	q.Subtotal = result.Subtotal
	q.DiscountAmount = result.DiscountAmount
	q.ServiceChargeAmount = result.ServiceChargeAmount
	q.TaxAmount = result.TaxAmount
	q.TotalAmount = result.TotalAmount
	return nil
}

// IsExpiredByTime returns true if the validity deadline has passed,
// regardless of whether the cached status has caught up yet
func (q *Quotation) IsExpiredByTime(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// UpdateDetails modifies the quotation content. Only DRAFT, SENT and
// VIEWED quotations are editable; edits after DRAFT append a revision
// entry so the offer the customer saw stays auditable.
func (q *Quotation) UpdateDetails(items LineItems, pricing PricingParams, validUntil *time.Time, notes string, editedBy *uuid.UUID, revisionNote string) error {
	if !q.Status.IsEditable() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot edit quotation in %s status", q.Status))
	}
	if err := items.Validate(); err != nil {
		return err
	}

	previousItems := q.Items
	previousPricing := q.Pricing
	q.Items = items
	q.Pricing = pricing
	if err := q.recalculate(); err != nil {
		q.Items = previousItems
		q.Pricing = previousPricing
		return err
	}

	if validUntil != nil {
		q.ValidUntil = *validUntil
	}
	q.Notes = notes

	if q.Status != QuotationStatusDraft {
		q.RevisionHistory = append(q.RevisionHistory, RevisionEntry{
			Version:  q.Version + 1,
			EditedAt: time.Now(),
			EditedBy: editedBy,
			Note:     revisionNote,
		})
	}

	q.UpdatedAt = time.Now()
	q.IncrementVersion()

	return nil
}

// Send transitions the quotation from DRAFT to SENT
func (q *Quotation) Send() error {
	if q.Status != QuotationStatusDraft {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot send quotation in %s status", q.Status))
	}

	now := time.Now()
	q.Status = QuotationStatusSent
	q.SentAt = &now
	q.UpdatedAt = now
	q.IncrementVersion()

	q.AddDomainEvent(NewQuotationSentEvent(q))

	return nil
}

// MarkViewed records that the customer opened the quotation. Repeat views
// are a no-op.
func (q *Quotation) MarkViewed() error {
	if q.Status == QuotationStatusViewed {
		return nil
	}
	if q.Status != QuotationStatusSent {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot mark quotation viewed in %s status", q.Status))
	}

	now := time.Now()
	q.Status = QuotationStatusViewed
	q.ViewedAt = &now
	q.UpdatedAt = now
	q.IncrementVersion()

	return nil
}

// Accept transitions the quotation to ACCEPTED. Fails if the quotation is
// terminal or its validity deadline has passed.
func (q *Quotation) Accept(now time.Time) error {
	if q.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot accept quotation in %s status", q.Status))
	}
	if q.Status != QuotationStatusSent && q.Status != QuotationStatusViewed {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot accept quotation in %s status", q.Status))
	}
	if q.IsExpiredByTime(now) {
		return shared.NewDomainError("INVALID_TRANSITION", "Cannot accept an expired quotation")
	}

	q.Status = QuotationStatusAccepted
	acceptedAt := now
	q.AcceptedAt = &acceptedAt
	q.UpdatedAt = now
	q.IncrementVersion()

	q.AddDomainEvent(NewQuotationAcceptedEvent(q))

	return nil
}

// Reject transitions the quotation to REJECTED with a reason
func (q *Quotation) Reject(now time.Time, reason string) error {
	if q.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot reject quotation in %s status", q.Status))
	}
	if q.Status != QuotationStatusSent && q.Status != QuotationStatusViewed {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot reject quotation in %s status", q.Status))
	}
	if q.IsExpiredByTime(now) {
		return shared.NewDomainError("INVALID_TRANSITION", "Cannot reject an expired quotation")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Rejection reason is required")
	}

	q.Status = QuotationStatusRejected
	rejectedAt := now
	q.RejectedAt = &rejectedAt
	q.RejectionReason = reason
	q.UpdatedAt = now
	q.IncrementVersion()

	q.AddDomainEvent(NewQuotationRejectedEvent(q))

	return nil
}

// ExpireIfDue moves the quotation to EXPIRED when the validity deadline
// has passed. Returns true if the status changed.
func (q *Quotation) ExpireIfDue(now time.Time) bool {
	if !q.Status.CanExpire() || !q.IsExpiredByTime(now) {
		return false
	}

	q.Status = QuotationStatusExpired
	expiredAt := now
	q.ExpiredAt = &expiredAt
	q.UpdatedAt = now
	q.IncrementVersion()

	q.AddDomainEvent(NewQuotationExpiredEvent(q))

	return true
}

// MarkConverted records the one-way conversion into an invoice. The
// converted-to reference is the idempotency key: a quotation converts at
// most once, and retries surface ALREADY_CONVERTED so callers can return
// the existing invoice.
func (q *Quotation) MarkConverted(now time.Time, invoiceID uuid.UUID) error {
	if q.Status == QuotationStatusConverted {
		return shared.NewDomainError("ALREADY_CONVERTED", "Quotation has already been converted to an invoice")
	}
	if q.Status == QuotationStatusRejected {
		return shared.NewDomainError("INVALID_STATE", "Cannot convert a rejected quotation")
	}
	if q.Status == QuotationStatusExpired || q.IsExpiredByTime(now) {
		return shared.NewDomainError("INVALID_STATE", "Cannot convert an expired quotation")
	}
	if invoiceID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Invoice ID cannot be empty")
	}

	q.Status = QuotationStatusConverted
	q.ConvertedToInvoiceID = &invoiceID
	convertedAt := now
	q.ConvertedAt = &convertedAt
	q.UpdatedAt = now
	q.IncrementVersion()

	q.AddDomainEvent(NewQuotationConvertedEvent(q, invoiceID))

	return nil
}
