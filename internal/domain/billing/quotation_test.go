package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// Test helpers
func testLead() *Lead {
	return &Lead{
		ID:      uuid.New(),
		Name:    "Nimal Perera",
		Email:   "nimal@example.com",
		Phone:   "+94 77 123 4567",
		Address: "12 Galle Road, Colombo",
		Status:  "QUALIFIED",
	}
}

func createTestQuotation(t *testing.T) *Quotation {
	t.Helper()
	q, err := NewQuotation(
		"QT-202608-00001",
		testLead(),
		twoNightsPackage(t),
		DefaultPricingParams(),
		nil,
		"",
		nil,
	)
	require.NoError(t, err)
	return q
}

func sentTestQuotation(t *testing.T) *Quotation {
	t.Helper()
	q := createTestQuotation(t)
	require.NoError(t, q.Send())
	return q
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

// ============================================
// QuotationStatus Tests
// ============================================

func TestQuotationStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  QuotationStatus
		isValid bool
	}{
		{QuotationStatusDraft, true},
		{QuotationStatusSent, true},
		{QuotationStatusViewed, true},
		{QuotationStatusAccepted, true},
		{QuotationStatusRejected, true},
		{QuotationStatusExpired, true},
		{QuotationStatusConverted, true},
		{QuotationStatus("INVALID"), false},
		{QuotationStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestQuotationStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     QuotationStatus
		isTerminal bool
	}{
		{QuotationStatusDraft, false},
		{QuotationStatusSent, false},
		{QuotationStatusViewed, false},
		{QuotationStatusAccepted, false},
		{QuotationStatusRejected, true},
		{QuotationStatusExpired, true},
		{QuotationStatusConverted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isTerminal, tt.status.IsTerminal())
		})
	}
}

// ============================================
// NewQuotation Tests
// ============================================

func TestNewQuotation_Success(t *testing.T) {
	lead := testLead()
	q, err := NewQuotation("QT-202608-00001", lead, twoNightsPackage(t), DefaultPricingParams(), nil, "honeymoon trip", nil)
	require.NoError(t, err)

	assert.Equal(t, QuotationStatusDraft, q.Status)
	assert.Equal(t, lead.ID, q.LeadID)
	assert.Equal(t, lead.Name, q.Customer.Name)
	assert.True(t, q.TotalAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, q.ValidUntil.After(time.Now().Add(29*24*time.Hour)))
	assert.Equal(t, 1, q.Version)
	assert.Len(t, q.GetDomainEvents(), 1)
}

func TestNewQuotation_ExplicitValidity(t *testing.T) {
	deadline := time.Now().Add(7 * 24 * time.Hour)
	q, err := NewQuotation("QT-202608-00002", testLead(), twoNightsPackage(t), DefaultPricingParams(), &deadline, "", nil)
	require.NoError(t, err)
	assert.True(t, q.ValidUntil.Equal(deadline))
}

func TestNewQuotation_RequiresItems(t *testing.T) {
	_, err := NewQuotation("QT-202608-00003", testLead(), LineItems{}, DefaultPricingParams(), nil, "", nil)
	assertDomainCode(t, err, "VALIDATION_ERROR")
}

func TestNewQuotation_RequiresNumber(t *testing.T) {
	_, err := NewQuotation("", testLead(), twoNightsPackage(t), DefaultPricingParams(), nil, "", nil)
	assertDomainCode(t, err, "VALIDATION_ERROR")
}

func TestNewQuotation_RejectsOversizedDiscount(t *testing.T) {
	params := DefaultPricingParams()
	params.DiscountType = DiscountTypeFixed
	params.DiscountValue = decimal.NewFromInt(5000)

	_, err := NewQuotation("QT-202608-00004", testLead(), twoNightsPackage(t), params, nil, "", nil)
	assertDomainCode(t, err, "DISCOUNT_EXCEEDS_SUBTOTAL")
}

// ============================================
// Lifecycle Tests
// ============================================

func TestQuotation_SendFromDraft(t *testing.T) {
	q := createTestQuotation(t)

	require.NoError(t, q.Send())
	assert.Equal(t, QuotationStatusSent, q.Status)
	assert.NotNil(t, q.SentAt)
	assert.Equal(t, 2, q.Version)
}

func TestQuotation_SendTwiceFails(t *testing.T) {
	q := sentTestQuotation(t)
	assertDomainCode(t, q.Send(), "INVALID_TRANSITION")
}

func TestQuotation_MarkViewed(t *testing.T) {
	q := sentTestQuotation(t)

	require.NoError(t, q.MarkViewed())
	assert.Equal(t, QuotationStatusViewed, q.Status)
	assert.NotNil(t, q.ViewedAt)

	// repeat views are a no-op
	version := q.Version
	require.NoError(t, q.MarkViewed())
	assert.Equal(t, version, q.Version)
}

func TestQuotation_MarkViewedFromDraftFails(t *testing.T) {
	q := createTestQuotation(t)
	assertDomainCode(t, q.MarkViewed(), "INVALID_TRANSITION")
}

func TestQuotation_Accept(t *testing.T) {
	q := sentTestQuotation(t)

	require.NoError(t, q.Accept(time.Now()))
	assert.Equal(t, QuotationStatusAccepted, q.Status)
	assert.NotNil(t, q.AcceptedAt)
}

func TestQuotation_AcceptAfterDeadlineFails(t *testing.T) {
	q := sentTestQuotation(t)
	q.ValidUntil = time.Now().Add(-time.Hour)

	assertDomainCode(t, q.Accept(time.Now()), "INVALID_TRANSITION")
}

func TestQuotation_AcceptFromDraftFails(t *testing.T) {
	q := createTestQuotation(t)
	assertDomainCode(t, q.Accept(time.Now()), "INVALID_TRANSITION")
}

func TestQuotation_Reject(t *testing.T) {
	q := sentTestQuotation(t)

	require.NoError(t, q.Reject(time.Now(), "found a better price"))
	assert.Equal(t, QuotationStatusRejected, q.Status)
	assert.Equal(t, "found a better price", q.RejectionReason)
}

func TestQuotation_RejectRequiresReason(t *testing.T) {
	q := sentTestQuotation(t)
	assertDomainCode(t, q.Reject(time.Now(), ""), "VALIDATION_ERROR")
}

func TestQuotation_RejectTerminalFails(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Reject(time.Now(), "too expensive"))
	assertDomainCode(t, q.Reject(time.Now(), "again"), "INVALID_TRANSITION")
}

// ============================================
// Expiry Tests
// ============================================

func TestQuotation_ExpireIfDue(t *testing.T) {
	q := sentTestQuotation(t)
	q.ValidUntil = time.Now().Add(-time.Hour)

	assert.True(t, q.ExpireIfDue(time.Now()))
	assert.Equal(t, QuotationStatusExpired, q.Status)
	assert.NotNil(t, q.ExpiredAt)
}

func TestQuotation_ExpireIfDue_NotYetDue(t *testing.T) {
	q := sentTestQuotation(t)
	assert.False(t, q.ExpireIfDue(time.Now()))
	assert.Equal(t, QuotationStatusSent, q.Status)
}

func TestQuotation_ExpireIfDue_DraftNeverExpires(t *testing.T) {
	q := createTestQuotation(t)
	q.ValidUntil = time.Now().Add(-time.Hour)

	assert.False(t, q.ExpireIfDue(time.Now()))
	assert.Equal(t, QuotationStatusDraft, q.Status)
}

func TestQuotation_AcceptedCanStillExpire(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Accept(time.Now()))
	q.ValidUntil = time.Now().Add(-time.Minute)

	assert.True(t, q.ExpireIfDue(time.Now()))
	assert.Equal(t, QuotationStatusExpired, q.Status)
}

// ============================================
// UpdateDetails Tests
// ============================================

func TestQuotation_UpdateDetails_Draft(t *testing.T) {
	q := createTestQuotation(t)

	item, err := NewLineItem("Airport transfer", ItemCategoryTransport, 1, decimal.NewFromInt(80), decimal.Zero, "")
	require.NoError(t, err)
	items := append(twoNightsPackage(t), item)

	require.NoError(t, q.UpdateDetails(items, DefaultPricingParams(), nil, "updated", nil, ""))
	assert.True(t, q.TotalAmount.Equal(decimal.NewFromInt(1080)))
	assert.Empty(t, q.RevisionHistory, "draft edits are not revisions")
}

func TestQuotation_UpdateDetails_AfterSendRecordsRevision(t *testing.T) {
	q := sentTestQuotation(t)
	editor := uuid.New()

	require.NoError(t, q.UpdateDetails(twoNightsPackage(t), DefaultPricingParams(), nil, "", &editor, "price match"))
	require.Len(t, q.RevisionHistory, 1)
	assert.Equal(t, "price match", q.RevisionHistory[0].Note)
	assert.Equal(t, &editor, q.RevisionHistory[0].EditedBy)
}

func TestQuotation_UpdateDetails_TerminalFails(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Reject(time.Now(), "no thanks"))

	err := q.UpdateDetails(twoNightsPackage(t), DefaultPricingParams(), nil, "", nil, "")
	assertDomainCode(t, err, "INVALID_STATE")
}

func TestQuotation_UpdateDetails_BadPricingRollsBack(t *testing.T) {
	q := createTestQuotation(t)
	before := q.TotalAmount

	params := DefaultPricingParams()
	params.DiscountType = DiscountTypeFixed
	params.DiscountValue = decimal.NewFromInt(9999)

	err := q.UpdateDetails(twoNightsPackage(t), params, nil, "", nil, "")
	assertDomainCode(t, err, "DISCOUNT_EXCEEDS_SUBTOTAL")
	assert.True(t, q.TotalAmount.Equal(before))
	assert.Equal(t, DiscountTypeNone, q.Pricing.DiscountType)
}

// ============================================
// Conversion Tests
// ============================================

func TestQuotation_MarkConverted(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Accept(time.Now()))

	invoiceID := uuid.New()
	require.NoError(t, q.MarkConverted(time.Now(), invoiceID))

	assert.Equal(t, QuotationStatusConverted, q.Status)
	require.NotNil(t, q.ConvertedToInvoiceID)
	assert.Equal(t, invoiceID, *q.ConvertedToInvoiceID)
}

func TestQuotation_MarkConvertedTwiceReturnsAlreadyConverted(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Accept(time.Now()))
	require.NoError(t, q.MarkConverted(time.Now(), uuid.New()))

	assertDomainCode(t, q.MarkConverted(time.Now(), uuid.New()), "ALREADY_CONVERTED")
}

func TestQuotation_MarkConvertedRejectedFails(t *testing.T) {
	q := sentTestQuotation(t)
	require.NoError(t, q.Reject(time.Now(), "changed plans"))

	assertDomainCode(t, q.MarkConverted(time.Now(), uuid.New()), "INVALID_STATE")
}

func TestQuotation_MarkConvertedExpiredFails(t *testing.T) {
	q := sentTestQuotation(t)
	q.ValidUntil = time.Now().Add(-time.Hour)

	assertDomainCode(t, q.MarkConverted(time.Now(), uuid.New()), "INVALID_STATE")
}
