package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockQuotationRepository is a mock implementation of QuotationRepository
type MockQuotationRepository struct {
	mock.Mock
}

func (m *MockQuotationRepository) Save(ctx context.Context, quotation *billing.Quotation) error {
	args := m.Called(ctx, quotation)
	return args.Error(0)
}

func (m *MockQuotationRepository) SaveWithLock(ctx context.Context, quotation *billing.Quotation, expectedVersion int) error {
	args := m.Called(ctx, quotation, expectedVersion)
	return args.Error(0)
}

func (m *MockQuotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Quotation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Quotation), args.Error(1)
}

func (m *MockQuotationRepository) FindByNumber(ctx context.Context, quotationNumber string) (*billing.Quotation, error) {
	args := m.Called(ctx, quotationNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Quotation), args.Error(1)
}

func (m *MockQuotationRepository) FindByLead(ctx context.Context, leadID uuid.UUID) ([]billing.Quotation, error) {
	args := m.Called(ctx, leadID)
	return args.Get(0).([]billing.Quotation), args.Error(1)
}

func (m *MockQuotationRepository) FindAll(ctx context.Context, filter billing.QuotationFilter) ([]billing.Quotation, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.Quotation), args.Error(1)
}

func (m *MockQuotationRepository) FindExpirable(ctx context.Context, asOf time.Time, limit int) ([]billing.Quotation, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]billing.Quotation), args.Error(1)
}

func (m *MockQuotationRepository) Count(ctx context.Context, filter billing.QuotationFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuotationRepository) CountByStatus(ctx context.Context) (map[billing.QuotationStatus]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[billing.QuotationStatus]int64), args.Error(1)
}

func (m *MockQuotationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockInvoiceRepository is a mock implementation of InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice, expectedVersion int) error {
	args := m.Called(ctx, invoice, expectedVersion)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByQuotation(ctx context.Context, quotationID uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, quotationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByLead(ctx context.Context, leadID uuid.UUID) ([]billing.Invoice, error) {
	args := m.Called(ctx, leadID)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindDueForOverdue(ctx context.Context, asOf time.Time, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) CountByStatus(ctx context.Context) (map[billing.InvoiceStatus]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[billing.InvoiceStatus]int64), args.Error(1)
}

func (m *MockInvoiceRepository) SumOutstanding(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockInvoiceRepository) SumCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockReceiptRepository is a mock implementation of PaymentReceiptRepository
type MockReceiptRepository struct {
	mock.Mock
}

func (m *MockReceiptRepository) Save(ctx context.Context, receipt *billing.PaymentReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentReceipt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentReceipt), args.Error(1)
}

func (m *MockReceiptRepository) FindByNumber(ctx context.Context, receiptNumber string) (*billing.PaymentReceipt, error) {
	args := m.Called(ctx, receiptNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentReceipt), args.Error(1)
}

func (m *MockReceiptRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.PaymentReceipt, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]billing.PaymentReceipt), args.Error(1)
}

func (m *MockReceiptRepository) FindAll(ctx context.Context, filter billing.PaymentReceiptFilter) ([]billing.PaymentReceipt, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.PaymentReceipt), args.Error(1)
}

func (m *MockReceiptRepository) FindUnreconciled(ctx context.Context, limit int) ([]billing.PaymentReceipt, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]billing.PaymentReceipt), args.Error(1)
}

func (m *MockReceiptRepository) Count(ctx context.Context, filter billing.PaymentReceiptFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReceiptRepository) SumByMethod(ctx context.Context, from, to time.Time) (map[billing.PaymentMethod]decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(map[billing.PaymentMethod]decimal.Decimal), args.Error(1)
}

// MockCreditNoteRepository is a mock implementation of CreditNoteRepository
type MockCreditNoteRepository struct {
	mock.Mock
}

func (m *MockCreditNoteRepository) Save(ctx context.Context, creditNote *billing.CreditNote) error {
	args := m.Called(ctx, creditNote)
	return args.Error(0)
}

func (m *MockCreditNoteRepository) SaveWithLock(ctx context.Context, creditNote *billing.CreditNote, expectedVersion int) error {
	args := m.Called(ctx, creditNote, expectedVersion)
	return args.Error(0)
}

func (m *MockCreditNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.CreditNote, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CreditNote), args.Error(1)
}

func (m *MockCreditNoteRepository) FindByNumber(ctx context.Context, creditNoteNumber string) (*billing.CreditNote, error) {
	args := m.Called(ctx, creditNoteNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CreditNote), args.Error(1)
}

func (m *MockCreditNoteRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.CreditNote, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]billing.CreditNote), args.Error(1)
}

func (m *MockCreditNoteRepository) FindByVoucherCode(ctx context.Context, code string) (*billing.CreditNote, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CreditNote), args.Error(1)
}

func (m *MockCreditNoteRepository) FindAll(ctx context.Context, filter billing.CreditNoteFilter) ([]billing.CreditNote, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.CreditNote), args.Error(1)
}

func (m *MockCreditNoteRepository) Count(ctx context.Context, filter billing.CreditNoteFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditNoteRepository) SumCredited(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// =============================================================================
// Mock Gateways and Infrastructure
// =============================================================================

// MockLeadGateway is a mock implementation of LeadGateway
type MockLeadGateway struct {
	mock.Mock
}

func (m *MockLeadGateway) FindByID(ctx context.Context, id uuid.UUID) (*billing.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Lead), args.Error(1)
}

func (m *MockLeadGateway) MarkQuoted(ctx context.Context, id uuid.UUID, quotationNumber string, amount decimal.Decimal) error {
	args := m.Called(ctx, id, quotationNumber, amount)
	return args.Error(0)
}

func (m *MockLeadGateway) MarkConverted(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockNumberService is a mock implementation of DocumentNumberService
type MockNumberService struct {
	mock.Mock
}

func (m *MockNumberService) Next(ctx context.Context, docType billing.DocumentType) (string, error) {
	args := m.Called(ctx, docType)
	return args.String(0), args.Error(1)
}

// MockEventBus is a mock implementation of EventPublisher
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}
