package persistence

import (
	"context"

	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
)

// ReceivablesProvider adapts the invoice repository to the telemetry
// collection loop, which works in plain floats and string labels.
type ReceivablesProvider struct {
	invoices billing.InvoiceRepository
}

// NewReceivablesProvider creates a new ReceivablesProvider
func NewReceivablesProvider(invoices billing.InvoiceRepository) *ReceivablesProvider {
	return &ReceivablesProvider{invoices: invoices}
}

// OutstandingTotal returns the sum of unpaid balances across open invoices
func (p *ReceivablesProvider) OutstandingTotal(ctx context.Context) (float64, error) {
	total, err := p.invoices.SumOutstanding(ctx)
	if err != nil {
		return 0, err
	}
	return total.InexactFloat64(), nil
}

// InvoiceCountsByStatus returns the number of invoices per lifecycle status
func (p *ReceivablesProvider) InvoiceCountsByStatus(ctx context.Context) (map[string]int64, error) {
	counts, err := p.invoices.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(counts))
	for status, count := range counts {
		result[status.String()] = count
	}
	return result, nil
}

var _ telemetry.ReceivablesProvider = (*ReceivablesProvider)(nil)
