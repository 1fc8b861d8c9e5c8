package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// Lead statuses the billing engine writes back to the projection table.
const (
	leadStatusQuoted    = "QUOTED"
	leadStatusConverted = "CONVERTED"
)

// GormLeadGateway implements LeadGateway against the local lead projection
// table. Unlike the repositories, FindByID returns shared.ErrNotFound
// directly because callers treat a missing lead as a hard failure.
type GormLeadGateway struct {
	db *gorm.DB
}

// NewGormLeadGateway creates a new GormLeadGateway
func NewGormLeadGateway(db *gorm.DB) *GormLeadGateway {
	return &GormLeadGateway{db: db}
}

// FindByID loads a lead by its ID
func (g *GormLeadGateway) FindByID(ctx context.Context, id uuid.UUID) (*billing.Lead, error) {
	var model models.LeadModel
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MarkQuoted records that a quotation was sent for the lead
func (g *GormLeadGateway) MarkQuoted(ctx context.Context, id uuid.UUID, quotationNumber string, amount decimal.Decimal) error {
	now := time.Now()
	result := g.db.WithContext(ctx).
		Model(&models.LeadModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        leadStatusQuoted,
			"quoted_number": quotationNumber,
			"quoted_amount": amount,
			"quoted_at":     now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkConverted records that the lead's quotation became an invoice
func (g *GormLeadGateway) MarkConverted(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result := g.db.WithContext(ctx).
		Model(&models.LeadModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       leadStatusConverted,
			"converted_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormLeadGateway implements LeadGateway
var _ billing.LeadGateway = (*GormLeadGateway)(nil)
