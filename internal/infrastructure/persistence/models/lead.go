package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
)

// LeadModel is the billing-side projection of a lead. The lead subsystem
// owns the full record; this table carries the contact fields plus the
// coarse status the billing engine writes back.
type LeadModel struct {
	ID           uuid.UUID        `gorm:"type:uuid;primary_key"`
	Name         string           `gorm:"type:varchar(255);not null"`
	Email        string           `gorm:"type:varchar(255)"`
	Phone        string           `gorm:"type:varchar(50)"`
	Address      string           `gorm:"type:text"`
	AssignedTo   *uuid.UUID       `gorm:"type:uuid;index"`
	Status       string           `gorm:"type:varchar(20);not null;default:'NEW';index"`
	QuotedNumber *string          `gorm:"type:varchar(50)"`
	QuotedAmount *decimal.Decimal `gorm:"type:decimal(15,2)"`
	QuotedAt     *time.Time
	ConvertedAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for LeadModel
func (LeadModel) TableName() string {
	return "leads"
}

// ToDomain converts LeadModel to the domain read model
func (m *LeadModel) ToDomain() *billing.Lead {
	return &billing.Lead{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Phone:      m.Phone,
		Address:    m.Address,
		AssignedTo: m.AssignedTo,
		Status:     m.Status,
	}
}
