package billing

import (
	"context"
	"fmt"
	"time"
)

// DocumentType identifies the billing document series a number belongs to
type DocumentType string

const (
	DocumentTypeQuotation  DocumentType = "QUOTATION"
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeReceipt    DocumentType = "RECEIPT"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
)

// IsValid checks if the document type is valid
func (d DocumentType) IsValid() bool {
	switch d {
	case DocumentTypeQuotation, DocumentTypeInvoice, DocumentTypeReceipt, DocumentTypeCreditNote:
		return true
	}
	return false
}

// Prefix returns the human-readable number prefix for the document type
func (d DocumentType) Prefix() string {
	switch d {
	case DocumentTypeQuotation:
		return "QT"
	case DocumentTypeInvoice:
		return "INV"
	case DocumentTypeReceipt:
		return "REC"
	case DocumentTypeCreditNote:
		return "CN"
	}
	return "DOC"
}

// NumberPeriod returns the calendar-month period key for document numbering
func NumberPeriod(t time.Time) string {
	return t.Format("200601")
}

// FormatDocumentNumber renders a document number as {PREFIX}-{YYYYMM}-{NNNNN}
func FormatDocumentNumber(docType DocumentType, period string, sequence int64) string {
	return fmt.Sprintf("%s-%s-%05d", docType.Prefix(), period, sequence)
}

// DocumentNumberService hands out unique, monotonically increasing document
// numbers per document type per calendar month. Numbers are never reused,
// even when the owning document is later cancelled. Implementations must be
// safe under concurrent creation.
type DocumentNumberService interface {
	Next(ctx context.Context, docType DocumentType) (string, error)
}
