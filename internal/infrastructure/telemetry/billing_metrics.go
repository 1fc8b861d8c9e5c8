// Package telemetry provides business metrics for the billing domain.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a nil meter is passed to NewBillingMetrics.
var ErrMeterNil = errors.New("meter cannot be nil")

// MetricsError wraps metric creation failures with the metric name for context.
type MetricsError struct {
	MetricName string
	Err        error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("failed to create metric %s: %v", e.MetricName, e.Err)
}

func (e *MetricsError) Unwrap() error {
	return e.Err
}

// ReceivablesProvider supplies point-in-time receivables figures for the
// periodic gauge collection loop. The persistence layer implements this
// on top of the invoice store.
type ReceivablesProvider interface {
	// OutstandingTotal returns the sum of unpaid balances across all
	// issued, partially paid and overdue invoices, in the major currency unit.
	OutstandingTotal(ctx context.Context) (float64, error)

	// InvoiceCountsByStatus returns the number of invoices per lifecycle status.
	InvoiceCountsByStatus(ctx context.Context) (map[string]int64, error)
}

// BillingMetrics records billing lifecycle metrics: documents issued,
// payments applied, credit notes raised, and outstanding receivables.
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counters
	documentIssuedTotal *Counter
	documentAmountTotal *Histogram
	paymentTotal        *Counter
	paymentAmountTotal  *Histogram
	creditNoteTotal     *Counter

	// Gauges updated by the periodic collection loop
	outstandingBalance *FloatGauge
	invoiceCount       *Gauge

	provider ReceivablesProvider

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// BillingMetricsOption configures a BillingMetrics instance.
type BillingMetricsOption func(*BillingMetrics)

// WithReceivablesProvider wires the provider used by StartPeriodicCollection.
// Without a provider the gauges are never recorded.
func WithReceivablesProvider(p ReceivablesProvider) BillingMetricsOption {
	return func(bm *BillingMetrics) {
		bm.provider = p
	}
}

// NewBillingMetrics creates the billing metric instruments on the given meter.
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger, opts ...BillingMetricsOption) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:  meter,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(bm)
	}

	var err error

	bm.documentIssuedTotal, err = NewCounter(meter,
		"tripdesk_document_issued_total",
		"Total number of billing documents issued",
		"{document}",
	)
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_document_issued_total", Err: err}
	}

	bm.documentAmountTotal, err = NewHistogram(meter, HistogramOpts{
		Name:        "tripdesk_document_amount",
		Description: "Distribution of issued document totals",
		Unit:        "1",
	})
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_document_amount", Err: err}
	}

	bm.paymentTotal, err = NewCounter(meter,
		"tripdesk_payment_total",
		"Total number of payments recorded against invoices",
		"{payment}",
	)
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_payment_total", Err: err}
	}

	bm.paymentAmountTotal, err = NewHistogram(meter, HistogramOpts{
		Name:        "tripdesk_payment_amount",
		Description: "Distribution of recorded payment amounts",
		Unit:        "1",
	})
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_payment_amount", Err: err}
	}

	bm.creditNoteTotal, err = NewCounter(meter,
		"tripdesk_credit_note_total",
		"Total number of credit notes issued",
		"{credit_note}",
	)
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_credit_note_total", Err: err}
	}

	bm.outstandingBalance, err = NewFloatGauge(meter,
		"tripdesk_outstanding_balance",
		"Sum of unpaid balances across open invoices",
		"1",
	)
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_outstanding_balance", Err: err}
	}

	bm.invoiceCount, err = NewGauge(meter,
		"tripdesk_invoice_count",
		"Number of invoices per lifecycle status",
		"{invoice}",
	)
	if err != nil {
		return nil, &MetricsError{MetricName: "tripdesk_invoice_count", Err: err}
	}

	return bm, nil
}

// RecordDocumentIssued records the issuance of a numbered document
// (quotation, invoice or credit note).
func (bm *BillingMetrics) RecordDocumentIssued(ctx context.Context, documentType string, amount float64) {
	attrs := []attribute.KeyValue{
		AttrDocumentType.String(documentType),
	}
	bm.documentIssuedTotal.Inc(ctx, attrs...)
	bm.documentAmountTotal.Record(ctx, amount, attrs...)
}

// RecordPayment records a payment applied to an invoice.
func (bm *BillingMetrics) RecordPayment(ctx context.Context, method string, status string, amount float64) {
	attrs := []attribute.KeyValue{
		AttrPaymentMethod.String(method),
		AttrPaymentStatus.String(status),
	}
	bm.paymentTotal.Inc(ctx, attrs...)
	bm.paymentAmountTotal.Record(ctx, amount, AttrPaymentMethod.String(method))
}

// RecordCreditNote records a credit note issued against an invoice.
func (bm *BillingMetrics) RecordCreditNote(ctx context.Context, reason string) {
	bm.creditNoteTotal.Inc(ctx, AttrCreditReason.String(reason))
}

// StartPeriodicCollection starts a background loop that refreshes the
// receivables gauges at the given interval. It is a no-op when no
// ReceivablesProvider is configured. Call Stop to terminate the loop.
func (bm *BillingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if bm.provider == nil {
		bm.logger.Debug("No receivables provider configured, skipping periodic metric collection")
		return
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}

	bm.wg.Add(1)
	go bm.runPeriodicCollection(ctx, interval)

	bm.logger.Info("Started periodic billing metric collection",
		zap.Duration("interval", interval),
	)
}

func (bm *BillingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	defer bm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately so gauges are populated on startup.
	bm.collectReceivables(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-bm.stopCh:
			return
		case <-ticker.C:
			bm.collectReceivables(ctx)
		}
	}
}

func (bm *BillingMetrics) collectReceivables(ctx context.Context) {
	collectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	outstanding, err := bm.provider.OutstandingTotal(collectCtx)
	if err != nil {
		bm.logger.Warn("Failed to collect outstanding balance", zap.Error(err))
	} else {
		bm.outstandingBalance.Record(collectCtx, outstanding)
	}

	counts, err := bm.provider.InvoiceCountsByStatus(collectCtx)
	if err != nil {
		bm.logger.Warn("Failed to collect invoice counts", zap.Error(err))
		return
	}
	for status, count := range counts {
		bm.invoiceCount.Record(collectCtx, count, AttrInvoiceStatus.String(status))
	}
}

// Stop terminates the periodic collection loop and waits for it to exit.
// Safe to call multiple times.
func (bm *BillingMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopCh)
	})
	bm.wg.Wait()
}
