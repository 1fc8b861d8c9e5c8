package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
)

// CreditNoteStatus represents the status of a credit note
type CreditNoteStatus string

const (
	CreditNoteStatusDraft     CreditNoteStatus = "DRAFT"
	CreditNoteStatusIssued    CreditNoteStatus = "ISSUED"
	CreditNoteStatusApplied   CreditNoteStatus = "APPLIED"
	CreditNoteStatusRefunded  CreditNoteStatus = "REFUNDED"
	CreditNoteStatusCancelled CreditNoteStatus = "CANCELLED"
)

// IsValid checks if the credit note status is valid
func (s CreditNoteStatus) IsValid() bool {
	switch s {
	case CreditNoteStatusDraft, CreditNoteStatusIssued, CreditNoteStatusApplied,
		CreditNoteStatusRefunded, CreditNoteStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of CreditNoteStatus
func (s CreditNoteStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses that allow no further settlement
func (s CreditNoteStatus) IsTerminal() bool {
	return s == CreditNoteStatusApplied || s == CreditNoteStatusRefunded ||
		s == CreditNoteStatusCancelled
}

// RefundStatus tracks the cash refund leg of a credit note
type RefundStatus string

const (
	RefundStatusNotApplicable RefundStatus = "NOT_APPLICABLE"
	RefundStatusPending       RefundStatus = "PENDING"
	RefundStatusProcessing    RefundStatus = "PROCESSING"
	RefundStatusCompleted     RefundStatus = "COMPLETED"
	RefundStatusFailed        RefundStatus = "FAILED"
)

// IsValid checks if the refund status is valid
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusNotApplicable, RefundStatusPending, RefundStatusProcessing,
		RefundStatusCompleted, RefundStatusFailed:
		return true
	}
	return false
}

// CreditReason classifies why the credit was granted
type CreditReason string

const (
	CreditReasonCancellation   CreditReason = "CANCELLATION"
	CreditReasonServiceFailure CreditReason = "SERVICE_FAILURE"
	CreditReasonPriceAdjust    CreditReason = "PRICE_ADJUSTMENT"
	CreditReasonGoodwill       CreditReason = "GOODWILL"
	CreditReasonDuplicate      CreditReason = "DUPLICATE_CHARGE"
	CreditReasonOther          CreditReason = "OTHER"
)

// IsValid checks if the credit reason is valid
func (r CreditReason) IsValid() bool {
	switch r {
	case CreditReasonCancellation, CreditReasonServiceFailure, CreditReasonPriceAdjust,
		CreditReasonGoodwill, CreditReasonDuplicate, CreditReasonOther:
		return true
	}
	return false
}

// SettlementMode determines how an issued credit note is settled
type SettlementMode string

const (
	SettlementModeApply   SettlementMode = "APPLY_TO_INVOICE"
	SettlementModeRefund  SettlementMode = "CASH_REFUND"
	SettlementModeVoucher SettlementMode = "VOUCHER"
)

// IsValid checks if the settlement mode is valid
func (m SettlementMode) IsValid() bool {
	return m == SettlementModeApply || m == SettlementModeRefund || m == SettlementModeVoucher
}

// CreditLineItem references an invoice line item and the portion of it
// being credited. The credit amount can never exceed the original.
type CreditLineItem struct {
	LineItemID     uuid.UUID       `json:"line_item_id"`
	Description    string          `json:"description"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
	Reason         string          `json:"reason,omitempty"`
}

// Validate checks the credit line item constraints
func (c CreditLineItem) Validate() error {
	if c.LineItemID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Credit line item must reference an invoice line item")
	}
	if c.CreditAmount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if c.CreditAmount.GreaterThan(c.OriginalAmount) {
		return shared.NewDomainError("INVALID_AMOUNT",
			fmt.Sprintf("Credit amount %s exceeds the original line amount %s",
				c.CreditAmount.StringFixed(2), c.OriginalAmount.StringFixed(2)))
	}
	return nil
}

// CreditLineItems is a collection stored as JSONB
type CreditLineItems []CreditLineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (c CreditLineItems) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (c *CreditLineItems) Scan(value interface{}) error {
	if value == nil {
		*c = CreditLineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan CreditLineItems: unsupported type")
	}

	if len(bytes) == 0 {
		*c = CreditLineItems{}
		return nil
	}

	return json.Unmarshal(bytes, c)
}

// Validate checks every credit line item
func (c CreditLineItems) Validate() error {
	if len(c) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Credit note must have at least one line item")
	}
	for i, item := range c {
		if err := item.Validate(); err != nil {
			return shared.NewDomainError("VALIDATION_ERROR",
				fmt.Sprintf("Credit line item %d: %s", i+1, err.Error()))
		}
	}
	return nil
}

// Total sums the credit amounts
func (c CreditLineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.CreditAmount)
	}
	return total
}

// VoucherValidity is how long a settlement voucher stays redeemable
const VoucherValidity = 365 * 24 * time.Hour

// Voucher is the store-credit instrument generated when a credit note is
// settled as a voucher instead of an invoice application or cash refund.
// Stored as JSONB on the credit note; generation is idempotent.
type Voucher struct {
	Code      string          `json:"code"`
	Amount    decimal.Decimal `json:"amount"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (v Voucher) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (v *Voucher) Scan(value interface{}) error {
	if value == nil {
		*v = Voucher{}
		return nil
	}

	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		return errors.New("failed to scan Voucher: unsupported type")
	}

	if len(bytes) == 0 {
		*v = Voucher{}
		return nil
	}

	return json.Unmarshal(bytes, v)
}

// IsZero reports whether no voucher has been generated yet
func (v Voucher) IsZero() bool {
	return v.Code == ""
}

// MinorApprovalThreshold is the credit amount below which issuance does
// not require an explicit approval.
var MinorApprovalThreshold = decimal.NewFromInt(100)

// CreditNote is the aggregate root for customer credits against an
// invoice. It moves DRAFT -> ISSUED -> (APPLIED | REFUNDED) and can be
// cancelled while still unsettled.
type CreditNote struct {
	shared.AuditedAggregateRoot
	CreditNoteNumber string           `json:"credit_note_number" gorm:"uniqueIndex"`
	InvoiceID        uuid.UUID        `json:"invoice_id" gorm:"type:uuid;index"`
	LeadID           uuid.UUID        `json:"lead_id" gorm:"type:uuid;index"`
	Customer         CustomerSnapshot `json:"customer" gorm:"type:jsonb"`
	Items            CreditLineItems  `json:"items" gorm:"type:jsonb"`
	Amount           decimal.Decimal  `json:"amount" gorm:"type:decimal(15,2)"`
	Reason           CreditReason     `json:"reason"`
	ReasonDetail     string           `json:"reason_detail,omitempty"`
	Status           CreditNoteStatus `json:"status" gorm:"index"`
	SettlementMode   SettlementMode   `json:"settlement_mode"`
	RefundStatus     RefundStatus     `json:"refund_status"`
	RefundReference  string           `json:"refund_reference,omitempty"`
	RefundFailure    string           `json:"refund_failure,omitempty"`
	StoreVoucher     Voucher          `json:"voucher,omitempty" gorm:"type:jsonb"`
	ApprovedBy       *uuid.UUID       `json:"approved_by,omitempty" gorm:"type:uuid"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	RejectedBy       *uuid.UUID       `json:"rejected_by,omitempty" gorm:"type:uuid"`
	RejectedAt       *time.Time       `json:"rejected_at,omitempty"`
	IssuedAt         *time.Time       `json:"issued_at,omitempty"`
	AppliedAt        *time.Time       `json:"applied_at,omitempty"`
	RefundedAt       *time.Time       `json:"refunded_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason     string           `json:"cancel_reason,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

// NewCreditNote creates a draft credit note against an invoice. The total
// credit must not exceed the invoice total; how much can actually be
// applied is capped at apply time by the outstanding balance.
func NewCreditNote(
	creditNoteNumber string,
	invoice *Invoice,
	items CreditLineItems,
	reason CreditReason,
	reasonDetail string,
	settlementMode SettlementMode,
	createdBy *uuid.UUID,
) (*CreditNote, error) {
	if creditNoteNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Credit note number cannot be empty")
	}
	if invoice == nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice is required")
	}
	if invoice.Status == InvoiceStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot credit a cancelled invoice")
	}
	if err := items.Validate(); err != nil {
		return nil, err
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Credit reason is not valid")
	}
	if !settlementMode.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Settlement mode is not valid")
	}

	total := items.Total()
	if total.GreaterThan(invoice.TotalAmount) {
		return nil, shared.NewDomainError("INVALID_AMOUNT",
			fmt.Sprintf("Credit total %s exceeds the total amount %s of invoice %s",
				total.StringFixed(2), invoice.TotalAmount.StringFixed(2), invoice.InvoiceNumber))
	}

	cn := &CreditNote{
		AuditedAggregateRoot: shared.NewAuditedAggregateRoot(),
		CreditNoteNumber:     creditNoteNumber,
		InvoiceID:            invoice.ID,
		LeadID:               invoice.LeadID,
		Customer:             invoice.Customer,
		Items:                items,
		Amount:               total.Round(valueobject.MoneyPrecision),
		Reason:               reason,
		ReasonDetail:         reasonDetail,
		Status:               CreditNoteStatusDraft,
		SettlementMode:       settlementMode,
		RefundStatus:         RefundStatusNotApplicable,
	}
	if settlementMode == SettlementModeRefund {
		cn.RefundStatus = RefundStatusPending
	}
	if createdBy != nil {
		cn.SetCreatedBy(*createdBy)
	}

	cn.AddDomainEvent(NewCreditNoteCreatedEvent(cn))

	return cn, nil
}

// RequiresApproval reports whether issuance needs an explicit approval
func (cn *CreditNote) RequiresApproval() bool {
	return cn.Amount.GreaterThanOrEqual(MinorApprovalThreshold)
}

// IsApproved reports whether the credit note carries an approval
func (cn *CreditNote) IsApproved() bool {
	return cn.ApprovedBy != nil
}

// Approve records an approval on a draft credit note
func (cn *CreditNote) Approve(userID uuid.UUID) error {
	if cn.Status != CreditNoteStatusDraft {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Only draft credit notes can be approved, current status is %s", cn.Status))
	}
	if cn.IsApproved() {
		return shared.NewDomainError("ALREADY_PROCESSED", "Credit note is already approved")
	}
	if userID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Approving user is required")
	}

	now := time.Now()
	cn.ApprovedBy = &userID
	cn.ApprovedAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	return nil
}

// RejectApproval cancels a draft credit note that was put up for approval
func (cn *CreditNote) RejectApproval(userID uuid.UUID, reason string) error {
	if cn.Status != CreditNoteStatusDraft {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Only draft credit notes can be rejected, current status is %s", cn.Status))
	}
	if userID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Rejecting user is required")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Rejection reason is required")
	}

	now := time.Now()
	cn.Status = CreditNoteStatusCancelled
	cn.RejectedBy = &userID
	cn.RejectedAt = &now
	cn.CancelledAt = &now
	cn.CancelReason = reason
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteCancelledEvent(cn))

	return nil
}

// Issue transitions a draft credit note to ISSUED. Credit notes at or
// above the approval threshold must carry an approval first.
func (cn *CreditNote) Issue() error {
	if cn.Status != CreditNoteStatusDraft {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot issue a credit note in status %s", cn.Status))
	}
	if cn.RequiresApproval() && !cn.IsApproved() {
		return shared.NewDomainError("APPROVAL_REQUIRED",
			fmt.Sprintf("Credit notes of %s or more require approval before issue",
				MinorApprovalThreshold.StringFixed(2)))
	}

	now := time.Now()
	cn.Status = CreditNoteStatusIssued
	cn.IssuedAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteIssuedEvent(cn))

	return nil
}

// MarkApplied records that the credit was applied to the invoice balance.
// The actual balance change goes through the invoice ledger; this only
// settles the note.
func (cn *CreditNote) MarkApplied() error {
	if cn.Status != CreditNoteStatusIssued {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot apply a credit note in status %s", cn.Status))
	}
	if cn.SettlementMode != SettlementModeApply {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Credit note settlement mode is %s, not %s", cn.SettlementMode, SettlementModeApply))
	}

	now := time.Now()
	cn.Status = CreditNoteStatusApplied
	cn.AppliedAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteSettledEvent(cn))

	return nil
}

// GenerateVoucher creates the store-credit voucher for an issued credit
// note. Idempotent: repeated calls return the existing voucher.
func (cn *CreditNote) GenerateVoucher(now time.Time) (Voucher, error) {
	if !cn.StoreVoucher.IsZero() {
		return cn.StoreVoucher, nil
	}
	if cn.Status != CreditNoteStatusIssued {
		return Voucher{}, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot generate a voucher for a credit note in status %s", cn.Status))
	}
	if cn.SettlementMode != SettlementModeVoucher {
		return Voucher{}, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Credit note settlement mode is %s, not %s", cn.SettlementMode, SettlementModeVoucher))
	}

	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	cn.StoreVoucher = Voucher{
		Code:      fmt.Sprintf("%s-%s", cn.CreditNoteNumber, suffix),
		Amount:    cn.Amount,
		IssuedAt:  now,
		ExpiresAt: now.Add(VoucherValidity),
	}

	cn.Status = CreditNoteStatusApplied
	cn.AppliedAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteSettledEvent(cn))

	return cn.StoreVoucher, nil
}

// StartRefund moves the cash refund leg to PROCESSING. The leg is open
// from ISSUED and from APPLIED, so a credit already applied on paper can
// still be paid out in cash.
func (cn *CreditNote) StartRefund(reference string) error {
	if cn.Status != CreditNoteStatusIssued && cn.Status != CreditNoteStatusApplied {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot refund a credit note in status %s", cn.Status))
	}
	if cn.RefundStatus == RefundStatusProcessing || cn.RefundStatus == RefundStatusCompleted {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot start a refund from status %s", cn.RefundStatus))
	}

	cn.RefundStatus = RefundStatusProcessing
	cn.RefundReference = reference
	cn.RefundFailure = ""
	cn.UpdatedAt = time.Now()
	cn.IncrementVersion()

	return nil
}

// CompleteRefund settles the credit note after a successful cash refund
func (cn *CreditNote) CompleteRefund() error {
	if cn.RefundStatus != RefundStatusProcessing {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot complete a refund from status %s", cn.RefundStatus))
	}

	now := time.Now()
	cn.RefundStatus = RefundStatusCompleted
	cn.Status = CreditNoteStatusRefunded
	cn.RefundedAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteSettledEvent(cn))

	return nil
}

// FailRefund records a failed refund attempt; the note stays ISSUED and
// the refund can be retried.
func (cn *CreditNote) FailRefund(failure string) error {
	if cn.RefundStatus != RefundStatusProcessing {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot fail a refund from status %s", cn.RefundStatus))
	}

	cn.RefundStatus = RefundStatusFailed
	cn.RefundFailure = failure
	cn.UpdatedAt = time.Now()
	cn.IncrementVersion()

	return nil
}

// Cancel cancels an unsettled credit note
func (cn *CreditNote) Cancel(reason string) error {
	if cn.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel a credit note in status %s", cn.Status))
	}
	if cn.RefundStatus == RefundStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel a credit note while a refund is processing")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Cancel reason is required")
	}

	now := time.Now()
	cn.Status = CreditNoteStatusCancelled
	cn.CancelledAt = &now
	cn.CancelReason = reason
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteCancelledEvent(cn))

	return nil
}

// GetAmountMoney returns the credit amount as a Money value object
func (cn *CreditNote) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(cn.Amount)
}
