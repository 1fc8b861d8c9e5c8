package billing

import (
	"context"

	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MetricsRecorder receives billing measurements. The telemetry package
// implements this on top of OpenTelemetry instruments.
type MetricsRecorder interface {
	RecordDocumentIssued(ctx context.Context, documentType string, amount float64)
	RecordPayment(ctx context.Context, method string, status string, amount float64)
	RecordCreditNote(ctx context.Context, reason string)
}

// MetricsEventHandler feeds billing metrics from domain events so the
// services stay free of instrumentation calls.
type MetricsEventHandler struct {
	recorder MetricsRecorder
	logger   *zap.Logger
}

// NewMetricsEventHandler creates a new MetricsEventHandler
func NewMetricsEventHandler(recorder MetricsRecorder, logger *zap.Logger) *MetricsEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsEventHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler subscribes to
func (h *MetricsEventHandler) EventTypes() []string {
	return []string{
		"QuotationCreated",
		"InvoiceCreated",
		"PaymentReceiptCreated",
		"PaymentReceiptCancelled",
		"CreditNoteCreated",
	}
}

// Handle records the measurement for a single domain event
func (h *MetricsEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.QuotationCreatedEvent:
		h.recorder.RecordDocumentIssued(ctx, "quotation", e.TotalAmount.InexactFloat64())
	case *billing.InvoiceCreatedEvent:
		h.recorder.RecordDocumentIssued(ctx, "invoice", e.TotalAmount.InexactFloat64())
	case *billing.PaymentReceiptCreatedEvent:
		h.recorder.RecordPayment(ctx, e.Method.String(), "recorded", e.Amount.InexactFloat64())
	case *billing.PaymentReceiptCancelledEvent:
		h.recorder.RecordPayment(ctx, "", "cancelled", e.Amount.InexactFloat64())
	case *billing.CreditNoteCreatedEvent:
		h.recorder.RecordDocumentIssued(ctx, "credit_note", e.Amount.InexactFloat64())
		h.recorder.RecordCreditNote(ctx, string(e.Reason))
	default:
		h.logger.Debug("unhandled event type", zap.String("event_type", event.EventType()))
	}
	return nil
}

var _ shared.EventHandler = (*MetricsEventHandler)(nil)
