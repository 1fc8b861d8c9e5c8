package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
)

// QuotationModel is the persistence model for the Quotation aggregate root.
type QuotationModel struct {
	AuditedAggregateModel
	QuotationNumber      string                   `gorm:"type:varchar(50);not null;uniqueIndex"`
	LeadID               uuid.UUID                `gorm:"type:uuid;not null;index"`
	Customer             billing.CustomerSnapshot `gorm:"type:jsonb;not null"`
	Items                billing.LineItems        `gorm:"type:jsonb;not null;default:'[]'"`
	Pricing              billing.PricingParams    `gorm:"type:jsonb;not null"`
	Subtotal             decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	DiscountAmount       decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	ServiceChargeAmount  decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	TaxAmount            decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	TotalAmount          decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	Status               billing.QuotationStatus  `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	ValidUntil           time.Time                `gorm:"not null;index"`
	ConvertedToInvoiceID *uuid.UUID               `gorm:"type:uuid"`
	Notes                string                   `gorm:"type:text"`
	RejectionReason      string                   `gorm:"type:varchar(500)"`
	RevisionHistory      billing.RevisionHistory  `gorm:"type:jsonb;default:'[]'"`
	SentAt               *time.Time
	ViewedAt             *time.Time
	AcceptedAt           *time.Time
	RejectedAt           *time.Time
	ExpiredAt            *time.Time
	ConvertedAt          *time.Time
}

// TableName returns the table name for GORM
func (QuotationModel) TableName() string {
	return "quotations"
}

// ToDomain converts the persistence model to a domain Quotation entity.
func (m *QuotationModel) ToDomain() *billing.Quotation {
	q := &billing.Quotation{
		QuotationNumber:      m.QuotationNumber,
		LeadID:               m.LeadID,
		Customer:             m.Customer,
		Items:                m.Items,
		Pricing:              m.Pricing,
		Subtotal:             m.Subtotal,
		DiscountAmount:       m.DiscountAmount,
		ServiceChargeAmount:  m.ServiceChargeAmount,
		TaxAmount:            m.TaxAmount,
		TotalAmount:          m.TotalAmount,
		Status:               m.Status,
		ValidUntil:           m.ValidUntil,
		ConvertedToInvoiceID: m.ConvertedToInvoiceID,
		Notes:                m.Notes,
		RejectionReason:      m.RejectionReason,
		RevisionHistory:      m.RevisionHistory,
		SentAt:               m.SentAt,
		ViewedAt:             m.ViewedAt,
		AcceptedAt:           m.AcceptedAt,
		RejectedAt:           m.RejectedAt,
		ExpiredAt:            m.ExpiredAt,
		ConvertedAt:          m.ConvertedAt,
	}
	m.PopulateAuditedAggregateRoot(&q.AuditedAggregateRoot)
	return q
}

// FromDomain populates the persistence model from a domain Quotation entity.
func (m *QuotationModel) FromDomain(q *billing.Quotation) {
	m.FromDomainAuditedAggregateRoot(q.AuditedAggregateRoot)
	m.QuotationNumber = q.QuotationNumber
	m.LeadID = q.LeadID
	m.Customer = q.Customer
	m.Items = q.Items
	m.Pricing = q.Pricing
	m.Subtotal = q.Subtotal
	m.DiscountAmount = q.DiscountAmount
	m.ServiceChargeAmount = q.ServiceChargeAmount
	m.TaxAmount = q.TaxAmount
	m.TotalAmount = q.TotalAmount
	m.Status = q.Status
	m.ValidUntil = q.ValidUntil
	m.ConvertedToInvoiceID = q.ConvertedToInvoiceID
	m.Notes = q.Notes
	m.RejectionReason = q.RejectionReason
	m.RevisionHistory = q.RevisionHistory
	m.SentAt = q.SentAt
	m.ViewedAt = q.ViewedAt
	m.AcceptedAt = q.AcceptedAt
	m.RejectedAt = q.RejectedAt
	m.ExpiredAt = q.ExpiredAt
	m.ConvertedAt = q.ConvertedAt
}

// QuotationModelFromDomain creates a new persistence model from a domain Quotation.
func QuotationModelFromDomain(q *billing.Quotation) *QuotationModel {
	m := &QuotationModel{}
	m.FromDomain(q)
	return m
}

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	AuditedAggregateModel
	InvoiceNumber       string                   `gorm:"type:varchar(50);not null;uniqueIndex"`
	LeadID              uuid.UUID                `gorm:"type:uuid;not null;index"`
	QuotationID         *uuid.UUID               `gorm:"type:uuid;uniqueIndex"`
	BookingRef          string                   `gorm:"type:varchar(100)"`
	Customer            billing.CustomerSnapshot `gorm:"type:jsonb;not null"`
	Items               billing.LineItems        `gorm:"type:jsonb;not null;default:'[]'"`
	Pricing             billing.PricingParams    `gorm:"type:jsonb;not null"`
	Subtotal            decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	DiscountAmount      decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	ServiceChargeAmount decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	TaxAmount           decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	TotalAmount         decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	PaidAmount          decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	OutstandingAmount   decimal.Decimal          `gorm:"type:decimal(15,2);not null;index"`
	Status              billing.InvoiceStatus    `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	PaymentStatus       billing.PaymentStatus    `gorm:"type:varchar(20);not null;default:'UNPAID';index"`
	DueDate             *time.Time               `gorm:"index"`
	Ledger              billing.LedgerEntries    `gorm:"type:jsonb;default:'[]'"`
	Notes               string                   `gorm:"type:text"`
	ReminderCount       int                      `gorm:"not null;default:0"`
	LastReminderAt      *time.Time
	SentAt              *time.Time
	ViewedAt            *time.Time
	PaidAt              *time.Time
	RefundedAt          *time.Time
	CancelledAt         *time.Time
	CancelReason        string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		InvoiceNumber:       m.InvoiceNumber,
		LeadID:              m.LeadID,
		QuotationID:         m.QuotationID,
		BookingRef:          m.BookingRef,
		Customer:            m.Customer,
		Items:               m.Items,
		Pricing:             m.Pricing,
		Subtotal:            m.Subtotal,
		DiscountAmount:      m.DiscountAmount,
		ServiceChargeAmount: m.ServiceChargeAmount,
		TaxAmount:           m.TaxAmount,
		TotalAmount:         m.TotalAmount,
		PaidAmount:          m.PaidAmount,
		OutstandingAmount:   m.OutstandingAmount,
		Status:              m.Status,
		PaymentStatus:       m.PaymentStatus,
		DueDate:             m.DueDate,
		Ledger:              m.Ledger,
		Notes:               m.Notes,
		ReminderCount:       m.ReminderCount,
		LastReminderAt:      m.LastReminderAt,
		SentAt:              m.SentAt,
		ViewedAt:            m.ViewedAt,
		PaidAt:              m.PaidAt,
		RefundedAt:          m.RefundedAt,
		CancelledAt:         m.CancelledAt,
		CancelReason:        m.CancelReason,
	}
	m.PopulateAuditedAggregateRoot(&inv.AuditedAggregateRoot)
	return inv
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAuditedAggregateRoot(inv.AuditedAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.LeadID = inv.LeadID
	m.QuotationID = inv.QuotationID
	m.BookingRef = inv.BookingRef
	m.Customer = inv.Customer
	m.Items = inv.Items
	m.Pricing = inv.Pricing
	m.Subtotal = inv.Subtotal
	m.DiscountAmount = inv.DiscountAmount
	m.ServiceChargeAmount = inv.ServiceChargeAmount
	m.TaxAmount = inv.TaxAmount
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.OutstandingAmount = inv.OutstandingAmount
	m.Status = inv.Status
	m.PaymentStatus = inv.PaymentStatus
	m.DueDate = inv.DueDate
	m.Ledger = inv.Ledger
	m.Notes = inv.Notes
	m.ReminderCount = inv.ReminderCount
	m.LastReminderAt = inv.LastReminderAt
	m.SentAt = inv.SentAt
	m.ViewedAt = inv.ViewedAt
	m.PaidAt = inv.PaidAt
	m.RefundedAt = inv.RefundedAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentReceiptModel is the persistence model for the PaymentReceipt aggregate root.
type PaymentReceiptModel struct {
	AuditedAggregateModel
	ReceiptNumber string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	InvoiceID     uuid.UUID              `gorm:"type:uuid;not null;index"`
	LeadID        uuid.UUID              `gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal        `gorm:"type:decimal(15,2);not null"`
	Method        billing.PaymentMethod  `gorm:"type:varchar(20);not null;index"`
	PaymentType   billing.PaymentType    `gorm:"type:varchar(20);not null"`
	Details       billing.PaymentDetails `gorm:"type:jsonb;default:'{}'"`
	Status        billing.ReceiptStatus  `gorm:"type:varchar(20);not null;index"`
	PaymentDate   time.Time              `gorm:"not null;index"`
	Verified      bool                   `gorm:"not null;default:false"`
	VerifiedBy    *uuid.UUID             `gorm:"type:uuid"`
	VerifiedAt    *time.Time
	Reconciled    bool       `gorm:"not null;default:false;index"`
	ReconciledBy  *uuid.UUID `gorm:"type:uuid"`
	ReconciledAt  *time.Time
	CancelledBy   *uuid.UUID `gorm:"type:uuid"`
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
	Remark        string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentReceiptModel) TableName() string {
	return "payment_receipts"
}

// ToDomain converts the persistence model to a domain PaymentReceipt entity.
func (m *PaymentReceiptModel) ToDomain() *billing.PaymentReceipt {
	r := &billing.PaymentReceipt{
		ReceiptNumber: m.ReceiptNumber,
		InvoiceID:     m.InvoiceID,
		LeadID:        m.LeadID,
		Amount:        m.Amount,
		Method:        m.Method,
		PaymentType:   m.PaymentType,
		Details:       m.Details,
		Status:        m.Status,
		PaymentDate:   m.PaymentDate,
		Verified:      m.Verified,
		VerifiedBy:    m.VerifiedBy,
		VerifiedAt:    m.VerifiedAt,
		Reconciled:    m.Reconciled,
		ReconciledBy:  m.ReconciledBy,
		ReconciledAt:  m.ReconciledAt,
		CancelledBy:   m.CancelledBy,
		CancelledAt:   m.CancelledAt,
		CancelReason:  m.CancelReason,
		Remark:        m.Remark,
	}
	m.PopulateAuditedAggregateRoot(&r.AuditedAggregateRoot)
	return r
}

// FromDomain populates the persistence model from a domain PaymentReceipt entity.
func (m *PaymentReceiptModel) FromDomain(r *billing.PaymentReceipt) {
	m.FromDomainAuditedAggregateRoot(r.AuditedAggregateRoot)
	m.ReceiptNumber = r.ReceiptNumber
	m.InvoiceID = r.InvoiceID
	m.LeadID = r.LeadID
	m.Amount = r.Amount
	m.Method = r.Method
	m.PaymentType = r.PaymentType
	m.Details = r.Details
	m.Status = r.Status
	m.PaymentDate = r.PaymentDate
	m.Verified = r.Verified
	m.VerifiedBy = r.VerifiedBy
	m.VerifiedAt = r.VerifiedAt
	m.Reconciled = r.Reconciled
	m.ReconciledBy = r.ReconciledBy
	m.ReconciledAt = r.ReconciledAt
	m.CancelledBy = r.CancelledBy
	m.CancelledAt = r.CancelledAt
	m.CancelReason = r.CancelReason
	m.Remark = r.Remark
}

// PaymentReceiptModelFromDomain creates a new persistence model from a domain PaymentReceipt.
func PaymentReceiptModelFromDomain(r *billing.PaymentReceipt) *PaymentReceiptModel {
	m := &PaymentReceiptModel{}
	m.FromDomain(r)
	return m
}

// CreditNoteModel is the persistence model for the CreditNote aggregate root.
type CreditNoteModel struct {
	AuditedAggregateModel
	CreditNoteNumber string                   `gorm:"type:varchar(50);not null;uniqueIndex"`
	InvoiceID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	LeadID           uuid.UUID                `gorm:"type:uuid;not null;index"`
	Customer         billing.CustomerSnapshot `gorm:"type:jsonb;not null"`
	Items            billing.CreditLineItems  `gorm:"type:jsonb;not null;default:'[]'"`
	Amount           decimal.Decimal          `gorm:"type:decimal(15,2);not null"`
	Reason           billing.CreditReason     `gorm:"type:varchar(30);not null"`
	ReasonDetail     string                   `gorm:"type:text"`
	Status           billing.CreditNoteStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	SettlementMode   billing.SettlementMode   `gorm:"type:varchar(20);not null"`
	RefundStatus     billing.RefundStatus     `gorm:"type:varchar(20);not null;default:'NOT_APPLICABLE'"`
	RefundReference  string                   `gorm:"type:varchar(100)"`
	RefundFailure    string                   `gorm:"type:varchar(500)"`
	StoreVoucher     billing.Voucher          `gorm:"type:jsonb;default:'{}'"`
	VoucherCode      string                   `gorm:"type:varchar(80);index"`
	ApprovedBy       *uuid.UUID               `gorm:"type:uuid"`
	ApprovedAt       *time.Time
	RejectedBy       *uuid.UUID               `gorm:"type:uuid"`
	RejectedAt       *time.Time
	IssuedAt         *time.Time
	AppliedAt        *time.Time
	RefundedAt       *time.Time
	CancelledAt      *time.Time
	CancelReason     string `gorm:"type:varchar(500)"`
	Notes            string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (CreditNoteModel) TableName() string {
	return "credit_notes"
}

// ToDomain converts the persistence model to a domain CreditNote entity.
func (m *CreditNoteModel) ToDomain() *billing.CreditNote {
	cn := &billing.CreditNote{
		CreditNoteNumber: m.CreditNoteNumber,
		InvoiceID:        m.InvoiceID,
		LeadID:           m.LeadID,
		Customer:         m.Customer,
		Items:            m.Items,
		Amount:           m.Amount,
		Reason:           m.Reason,
		ReasonDetail:     m.ReasonDetail,
		Status:           m.Status,
		SettlementMode:   m.SettlementMode,
		RefundStatus:     m.RefundStatus,
		RefundReference:  m.RefundReference,
		RefundFailure:    m.RefundFailure,
		StoreVoucher:     m.StoreVoucher,
		ApprovedBy:       m.ApprovedBy,
		ApprovedAt:       m.ApprovedAt,
		RejectedBy:       m.RejectedBy,
		RejectedAt:       m.RejectedAt,
		IssuedAt:         m.IssuedAt,
		AppliedAt:        m.AppliedAt,
		RefundedAt:       m.RefundedAt,
		CancelledAt:      m.CancelledAt,
		CancelReason:     m.CancelReason,
		Notes:            m.Notes,
	}
	m.PopulateAuditedAggregateRoot(&cn.AuditedAggregateRoot)
	return cn
}

// FromDomain populates the persistence model from a domain CreditNote entity.
// The voucher code is denormalized into its own column so redemption lookups
// do not scan the JSONB payload.
func (m *CreditNoteModel) FromDomain(cn *billing.CreditNote) {
	m.FromDomainAuditedAggregateRoot(cn.AuditedAggregateRoot)
	m.CreditNoteNumber = cn.CreditNoteNumber
	m.InvoiceID = cn.InvoiceID
	m.LeadID = cn.LeadID
	m.Customer = cn.Customer
	m.Items = cn.Items
	m.Amount = cn.Amount
	m.Reason = cn.Reason
	m.ReasonDetail = cn.ReasonDetail
	m.Status = cn.Status
	m.SettlementMode = cn.SettlementMode
	m.RefundStatus = cn.RefundStatus
	m.RefundReference = cn.RefundReference
	m.RefundFailure = cn.RefundFailure
	m.StoreVoucher = cn.StoreVoucher
	m.VoucherCode = cn.StoreVoucher.Code
	m.ApprovedBy = cn.ApprovedBy
	m.ApprovedAt = cn.ApprovedAt
	m.RejectedBy = cn.RejectedBy
	m.RejectedAt = cn.RejectedAt
	m.IssuedAt = cn.IssuedAt
	m.AppliedAt = cn.AppliedAt
	m.RefundedAt = cn.RefundedAt
	m.CancelledAt = cn.CancelledAt
	m.CancelReason = cn.CancelReason
	m.Notes = cn.Notes
}

// CreditNoteModelFromDomain creates a new persistence model from a domain CreditNote.
func CreditNoteModelFromDomain(cn *billing.CreditNote) *CreditNoteModel {
	m := &CreditNoteModel{}
	m.FromDomain(cn)
	return m
}

// DocumentSequenceModel backs the per-period document number sequences.
// One row per document type and period; NextValue is advanced atomically.
type DocumentSequenceModel struct {
	DocType   billing.DocumentType `gorm:"type:varchar(20);primaryKey"`
	Period    string               `gorm:"type:varchar(10);primaryKey"`
	NextValue int64                `gorm:"not null;default:0"`
	UpdatedAt time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentSequenceModel) TableName() string {
	return "document_sequences"
}
