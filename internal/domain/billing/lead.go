package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lead is the read model of a prospective customer owned by the
// out-of-scope lead subsystem. The billing engine only reads contact
// fields and writes back coarse status transitions.
type Lead struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Phone      string
	Address    string
	AssignedTo *uuid.UUID
	Status     string
}

// Snapshot copies the lead's contact fields into a customer snapshot
func (l *Lead) Snapshot() CustomerSnapshot {
	return CustomerSnapshot{
		Name:    l.Name,
		Email:   l.Email,
		Phone:   l.Phone,
		Address: l.Address,
	}
}

// LeadGateway is the boundary to the lead subsystem
type LeadGateway interface {
	// FindByID loads a lead; returns shared.ErrNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Lead, error)
	// MarkQuoted records that a quotation was sent for the lead
	MarkQuoted(ctx context.Context, id uuid.UUID, quotationNumber string, amount decimal.Decimal) error
	// MarkConverted records that the lead's quotation became an invoice
	MarkConverted(ctx context.Context, id uuid.UUID) error
}
