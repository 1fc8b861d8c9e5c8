package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// AggregateModel provides common persistence fields for aggregate roots.
// It extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
}

// AuditedAggregateModel provides common persistence fields for aggregate
// roots that track their creator.
type AuditedAggregateModel struct {
	AggregateModel
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// FromDomainAuditedAggregateRoot populates AuditedAggregateModel from domain AuditedAggregateRoot
func (m *AuditedAggregateModel) FromDomainAuditedAggregateRoot(a shared.AuditedAggregateRoot) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.CreatedBy = a.CreatedBy
}

// PopulateAuditedAggregateRoot populates a domain AuditedAggregateRoot from persistence model
func (m *AuditedAggregateModel) PopulateAuditedAggregateRoot(a *shared.AuditedAggregateRoot) {
	a.BaseAggregateRoot.BaseEntity.ID = m.ID
	a.BaseAggregateRoot.BaseEntity.CreatedAt = m.CreatedAt
	a.BaseAggregateRoot.BaseEntity.UpdatedAt = m.UpdatedAt
	a.BaseAggregateRoot.Version = m.Version
	a.CreatedBy = m.CreatedBy
}
