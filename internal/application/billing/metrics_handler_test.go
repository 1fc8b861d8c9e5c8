package billing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripdesk/backend/internal/domain/billing"
)

type recordedMetric struct {
	kind   string
	label  string
	status string
	amount float64
}

type fakeMetricsRecorder struct {
	records []recordedMetric
}

func (f *fakeMetricsRecorder) RecordDocumentIssued(_ context.Context, documentType string, amount float64) {
	f.records = append(f.records, recordedMetric{kind: "document", label: documentType, amount: amount})
}

func (f *fakeMetricsRecorder) RecordPayment(_ context.Context, method string, status string, amount float64) {
	f.records = append(f.records, recordedMetric{kind: "payment", label: method, status: status, amount: amount})
}

func (f *fakeMetricsRecorder) RecordCreditNote(_ context.Context, reason string) {
	f.records = append(f.records, recordedMetric{kind: "credit_note", label: reason})
}

func TestMetricsEventHandler_QuotationCreated(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	handler := NewMetricsEventHandler(recorder, nil)

	quotation := serviceTestQuotation(t, serviceTestLead())
	err := handler.Handle(context.Background(), billing.NewQuotationCreatedEvent(quotation))
	require.NoError(t, err)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "document", recorder.records[0].kind)
	assert.Equal(t, "quotation", recorder.records[0].label)
	assert.Equal(t, quotation.TotalAmount.InexactFloat64(), recorder.records[0].amount)
}

func TestMetricsEventHandler_PaymentRecorded(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	handler := NewMetricsEventHandler(recorder, nil)

	receipt := &billing.PaymentReceipt{
		ReceiptNumber: "REC-202608-00007",
		Amount:        decimal.NewFromInt(12500),
		Method:        billing.PaymentMethodCard,
	}
	err := handler.Handle(context.Background(), billing.NewPaymentReceiptCreatedEvent(receipt))
	require.NoError(t, err)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "payment", recorder.records[0].kind)
	assert.Equal(t, "CARD", recorder.records[0].label)
	assert.Equal(t, "recorded", recorder.records[0].status)
	assert.InDelta(t, 12500, recorder.records[0].amount, 0.001)
}

func TestMetricsEventHandler_CreditNoteCreated(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	handler := NewMetricsEventHandler(recorder, nil)

	creditNote := &billing.CreditNote{
		CreditNoteNumber: "CN-202608-00003",
		Amount:           decimal.NewFromInt(4000),
		Reason:           billing.CreditReasonGoodwill,
	}
	err := handler.Handle(context.Background(), billing.NewCreditNoteCreatedEvent(creditNote))
	require.NoError(t, err)

	require.Len(t, recorder.records, 2)
	assert.Equal(t, "document", recorder.records[0].kind)
	assert.Equal(t, "credit_note", recorder.records[0].label)
	assert.Equal(t, "credit_note", recorder.records[1].kind)
	assert.Equal(t, "GOODWILL", recorder.records[1].label)
}

func TestMetricsEventHandler_EventTypes(t *testing.T) {
	handler := NewMetricsEventHandler(&fakeMetricsRecorder{}, nil)
	assert.Contains(t, handler.EventTypes(), "InvoiceCreated")
	assert.Contains(t, handler.EventTypes(), "PaymentReceiptCreated")
}
