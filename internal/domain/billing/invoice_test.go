package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
)

// Test helpers
func createTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	lead := testLead()
	inv, err := NewInvoice(
		"INV-202608-00001",
		lead.ID,
		lead.Snapshot(),
		twoNightsPackage(t),
		DefaultPricingParams(),
		nil,
		nil,
		"",
		"",
		nil,
	)
	require.NoError(t, err)
	return inv
}

func createTestInvoiceWithDueDate(t *testing.T, daysFromNow int) *Invoice {
	t.Helper()
	inv := createTestInvoice(t)
	dueDate := time.Now().AddDate(0, 0, daysFromNow)
	inv.DueDate = &dueDate
	return inv
}

// ============================================
// DerivePaymentStatus Tests
// ============================================

func TestDerivePaymentStatus(t *testing.T) {
	total := decimal.NewFromInt(1000)

	tests := []struct {
		name string
		paid decimal.Decimal
		want PaymentStatus
	}{
		{"nothing paid", decimal.Zero, PaymentStatusUnpaid},
		{"negative paid", decimal.NewFromInt(-10), PaymentStatusUnpaid},
		{"partially paid", decimal.NewFromInt(400), PaymentStatusPartial},
		{"exactly paid", decimal.NewFromInt(1000), PaymentStatusPaid},
		{"overpaid", decimal.NewFromInt(1001), PaymentStatusOverpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePaymentStatus(total, tt.paid))
		})
	}
}

// ============================================
// DeriveInvoiceStatus Tests
// ============================================

func TestDeriveInvoiceStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name     string
		previous InvoiceStatus
		payment  PaymentStatus
		dueDate  *time.Time
		want     InvoiceStatus
	}{
		{"cancelled stays cancelled", InvoiceStatusCancelled, PaymentStatusPaid, nil, InvoiceStatusCancelled},
		{"refunded stays refunded", InvoiceStatusRefunded, PaymentStatusUnpaid, &past, InvoiceStatusRefunded},
		{"paid wins", InvoiceStatusOverdue, PaymentStatusPaid, &past, InvoiceStatusPaid},
		{"overpaid maps to paid", InvoiceStatusSent, PaymentStatusOverpaid, nil, InvoiceStatusPaid},
		{"partial", InvoiceStatusSent, PaymentStatusPartial, &future, InvoiceStatusPartial},
		{"partial beats overdue", InvoiceStatusSent, PaymentStatusPartial, &past, InvoiceStatusPartial},
		{"past due unpaid", InvoiceStatusSent, PaymentStatusUnpaid, &past, InvoiceStatusOverdue},
		{"not yet due keeps previous", InvoiceStatusSent, PaymentStatusUnpaid, &future, InvoiceStatusSent},
		{"no due date keeps previous", InvoiceStatusViewed, PaymentStatusUnpaid, nil, InvoiceStatusViewed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveInvoiceStatus(tt.previous, tt.payment, tt.dueDate, now))
		})
	}
}

// ============================================
// ApplyLedgerEntry Tests
// ============================================

func TestInvoice_ApplyLedgerEntry_PartialPayment(t *testing.T) {
	inv := createTestInvoice(t)

	entry, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(400), "deposit")
	require.NoError(t, err)

	assert.Equal(t, LedgerEntryStatusActive, entry.Status)
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(400)))
	assert.True(t, inv.OutstandingAmount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, PaymentStatusPartial, inv.PaymentStatus)
	assert.Equal(t, InvoiceStatusPartial, inv.Status)
	assert.Nil(t, inv.PaidAt)
}

func TestInvoice_ApplyLedgerEntry_FullSettlement(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.OutstandingAmount.IsZero())
	assert.NotNil(t, inv.PaidAt)
}

func TestInvoice_ApplyLedgerEntry_TwoPartsSettle(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(600), "")
	require.NoError(t, err)
	_, err = inv.ApplyLedgerEntry(LedgerEntryKindCreditNote, uuid.New(), valueobject.NewMoneyUSDFromFloat(400), "goodwill")
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
	assert.Len(t, inv.Ledger, 2)
	assert.True(t, inv.Ledger.ActiveTotal().Equal(decimal.NewFromInt(1000)))
}

func TestInvoice_ApplyLedgerEntry_ExceedsOutstanding(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000.01), "")
	assertDomainCode(t, err, "EXCEEDS_OUTSTANDING")
	assert.True(t, inv.PaidAmount.IsZero(), "failed guard must not mutate")
	assert.Empty(t, inv.Ledger)
}

func TestInvoice_ApplyLedgerEntry_NonPositiveAmount(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.ZeroUSD(), "")
	assertDomainCode(t, err, "INVALID_AMOUNT")
}

func TestInvoice_ApplyLedgerEntry_CancelledInvoice(t *testing.T) {
	inv := createTestInvoice(t)
	require.NoError(t, inv.Cancel("booking fell through"))

	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(100), "")
	assertDomainCode(t, err, "INVALID_STATE")
}

func TestInvoice_ApplyLedgerEntry_DuplicateReference(t *testing.T) {
	inv := createTestInvoice(t)
	receiptID := uuid.New()
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)

	_, err = inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	assertDomainCode(t, err, "ALREADY_PROCESSED")
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(400)))
	assert.Len(t, inv.Ledger, 1)
}

func TestInvoice_ApplyLedgerEntry_ReversedReferenceCanReapply(t *testing.T) {
	inv := createTestInvoice(t)
	receiptID := uuid.New()
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)
	_, err = inv.ReverseLedgerEntry(receiptID, "save failed")
	require.NoError(t, err)

	_, err = inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(400)))
}

func TestInvoice_ApplyLedgerEntry_SettledInvoice(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	_, err = inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1), "")
	assertDomainCode(t, err, "INVALID_STATE")
}

// ============================================
// ReverseLedgerEntry Tests
// ============================================

func TestInvoice_ReverseLedgerEntry(t *testing.T) {
	inv := createTestInvoice(t)
	receiptID := uuid.New()
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)

	amount, err := inv.ReverseLedgerEntry(receiptID, "duplicate entry")
	require.NoError(t, err)

	assert.True(t, amount.Equal(decimal.NewFromInt(400)))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.Equal(t, PaymentStatusUnpaid, inv.PaymentStatus)
	assert.Equal(t, LedgerEntryStatusReversed, inv.Ledger[0].Status)
	assert.Equal(t, "duplicate entry", inv.Ledger[0].ReversalReason)
}

func TestInvoice_ReverseLedgerEntry_ReopensSettledInvoice(t *testing.T) {
	inv := createTestInvoice(t)
	receiptID := uuid.New()
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)
	require.NotNil(t, inv.PaidAt)

	_, err = inv.ReverseLedgerEntry(receiptID, "bounced cheque")
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusUnpaid, inv.PaymentStatus)
	assert.Nil(t, inv.PaidAt)
	assert.True(t, inv.CanAcceptPayment())
}

func TestInvoice_ReverseLedgerEntry_UnknownReference(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.ReverseLedgerEntry(uuid.New(), "typo")
	assertDomainCode(t, err, "NOT_FOUND")
}

func TestInvoice_ReverseLedgerEntry_TwiceFails(t *testing.T) {
	inv := createTestInvoice(t)
	receiptID := uuid.New()
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, receiptID, valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)

	_, err = inv.ReverseLedgerEntry(receiptID, "first")
	require.NoError(t, err)
	_, err = inv.ReverseLedgerEntry(receiptID, "second")
	assertDomainCode(t, err, "NOT_FOUND")
}

// ============================================
// Cancel / Refund Tests
// ============================================

func TestInvoice_Cancel(t *testing.T) {
	inv := createTestInvoice(t)

	require.NoError(t, inv.Cancel("customer withdrew"))
	assert.Equal(t, InvoiceStatusCancelled, inv.Status)
	assert.Equal(t, "customer withdrew", inv.CancelReason)
}

func TestInvoice_CancelPaidInvoiceForbidden(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	assertDomainCode(t, inv.Cancel("too late"), "FORBIDDEN")
}

func TestInvoice_CancelPartiallyPaidAllowed(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(200), "")
	require.NoError(t, err)

	require.NoError(t, inv.Cancel("trip cancelled, deposit to be credited"))
	assert.Equal(t, InvoiceStatusCancelled, inv.Status)
}

func TestInvoice_MarkRefunded(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	require.NoError(t, inv.MarkRefunded())
	assert.Equal(t, InvoiceStatusRefunded, inv.Status)
	assert.Equal(t, PaymentStatusRefunded, inv.PaymentStatus)

	assertDomainCode(t, inv.MarkRefunded(), "ALREADY_PROCESSED")
}

// ============================================
// Overdue Sweep Tests
// ============================================

func TestInvoice_RefreshStatus_MarksOverdue(t *testing.T) {
	inv := createTestInvoiceWithDueDate(t, -3)
	require.NoError(t, inv.Send())
	inv.ClearDomainEvents()

	changed := inv.RefreshStatus(time.Now())

	assert.True(t, changed)
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
	require.Len(t, inv.GetDomainEvents(), 1)
	assert.Equal(t, "InvoiceOverdue", inv.GetDomainEvents()[0].EventType())
}

func TestInvoice_RefreshStatus_NoChangeBeforeDue(t *testing.T) {
	inv := createTestInvoiceWithDueDate(t, 3)
	require.NoError(t, inv.Send())

	assert.False(t, inv.RefreshStatus(time.Now()))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
}

func TestInvoice_RefreshStatus_PaidNeverOverdue(t *testing.T) {
	inv := createTestInvoiceWithDueDate(t, -3)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	inv.RefreshStatus(time.Now())
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

// ============================================
// UpdateDetails Tests
// ============================================

func TestInvoice_UpdateDetails_RecalculatesKeepingPayments(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(400), "")
	require.NoError(t, err)

	item, err := NewLineItem("Whale watching", ItemCategoryActivity, 2, decimal.NewFromInt(150), decimal.Zero, "")
	require.NoError(t, err)
	items := append(twoNightsPackage(t), item)

	require.NoError(t, inv.UpdateDetails(items, DefaultPricingParams(), nil, "BK-1042", ""))

	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(1300)))
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(400)), "payment history survives edits")
	assert.True(t, inv.OutstandingAmount.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, "BK-1042", inv.BookingRef)
}

func TestInvoice_UpdateDetails_CancelledForbidden(t *testing.T) {
	inv := createTestInvoice(t)
	require.NoError(t, inv.Cancel("void"))

	err := inv.UpdateDetails(twoNightsPackage(t), DefaultPricingParams(), nil, "", "")
	assertDomainCode(t, err, "FORBIDDEN")
}

// ============================================
// Reminder Tests
// ============================================

func TestInvoice_RecordReminder(t *testing.T) {
	inv := createTestInvoice(t)
	require.NoError(t, inv.Send())
	before := inv.Status

	require.NoError(t, inv.RecordReminder())
	require.NoError(t, inv.RecordReminder())

	assert.Equal(t, 2, inv.ReminderCount)
	assert.NotNil(t, inv.LastReminderAt)
	assert.Equal(t, before, inv.Status, "reminders never change status")
}

func TestInvoice_RecordReminder_SettledFails(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.ApplyLedgerEntry(LedgerEntryKindReceipt, uuid.New(), valueobject.NewMoneyUSDFromFloat(1000), "")
	require.NoError(t, err)

	assertDomainCode(t, inv.RecordReminder(), "INVALID_STATE")
}
