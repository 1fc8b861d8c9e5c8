package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabels_DropsHighCardinalityKeys(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"controller": "invoices",
		"invoice_id": "9ae3f1c2",
		"request_id": "abc-123",
	})

	assert.Equal(t, []string{"controller", "invoices"}, pairs)
}

func TestSanitizeLabels_SortedAndTruncated(t *testing.T) {
	long := strings.Repeat("x", MaxLabelValueLength+40)
	pairs := sanitizeLabels(map[string]string{
		"route":  "/api/v1/billing/invoices/:id/payments",
		"method": "POST",
		"note":   long,
	})

	assert.Equal(t, 6, len(pairs))
	assert.Equal(t, "method", pairs[0])
	assert.Equal(t, "note", pairs[2])
	assert.Len(t, pairs[3], MaxLabelValueLength)
	assert.Equal(t, "route", pairs[4])
}

func TestSanitizeLabels_EmptyAndInvalid(t *testing.T) {
	assert.Nil(t, sanitizeLabels(nil))
	assert.Empty(t, sanitizeLabels(map[string]string{"": "x", "key": ""}))
}

func TestSanitizeLabelKey(t *testing.T) {
	assert.Equal(t, "credit_note_status", sanitizeLabelKey("Credit Note-Status"))
	assert.Equal(t, "doctype", sanitizeLabelKey("doc@type!"))
}

func TestWithProfilingLabels_RunsWithoutLabels(t *testing.T) {
	called := false
	WithProfilingLabels(context.Background(), nil, func(ctx context.Context) {
		called = true
	})
	assert.True(t, called)

	called = false
	WithProfilingLabels(context.Background(), map[string]string{"controller": "payments"}, func(ctx context.Context) {
		called = true
	})
	assert.True(t, called)
}
