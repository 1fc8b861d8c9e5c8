package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormQuotationRepository implements QuotationRepository using GORM.
// Lookups return (nil, nil) when the record does not exist; the service
// layer turns that into its domain NOT_FOUND error.
type GormQuotationRepository struct {
	db *gorm.DB
}

// NewGormQuotationRepository creates a new GormQuotationRepository
func NewGormQuotationRepository(db *gorm.DB) *GormQuotationRepository {
	return &GormQuotationRepository{db: db}
}

// Save creates or updates a quotation
func (r *GormQuotationRepository) Save(ctx context.Context, quotation *billing.Quotation) error {
	model := models.QuotationModelFromDomain(quotation)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking. The version predicate makes
// the write conditional: zero rows affected means another writer got there
// first.
func (r *GormQuotationRepository) SaveWithLock(ctx context.Context, quotation *billing.Quotation, expectedVersion int) error {
	model := models.QuotationModelFromDomain(quotation)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", quotation.ID, expectedVersion).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds a quotation by its ID
func (r *GormQuotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Quotation, error) {
	var model models.QuotationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a quotation by its document number
func (r *GormQuotationRepository) FindByNumber(ctx context.Context, quotationNumber string) (*billing.Quotation, error) {
	var model models.QuotationModel
	if err := r.db.WithContext(ctx).
		First(&model, "quotation_number = ?", quotationNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByLead finds all quotations for a lead
func (r *GormQuotationRepository) FindByLead(ctx context.Context, leadID uuid.UUID) ([]billing.Quotation, error) {
	var quotationModels []models.QuotationModel
	if err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Find(&quotationModels).Error; err != nil {
		return nil, err
	}
	quotations := make([]billing.Quotation, len(quotationModels))
	for i := range quotationModels {
		quotations[i] = *quotationModels[i].ToDomain()
	}
	return quotations, nil
}

// FindAll finds quotations with filtering and pagination
func (r *GormQuotationRepository) FindAll(ctx context.Context, filter billing.QuotationFilter) ([]billing.Quotation, error) {
	var quotationModels []models.QuotationModel
	query := r.db.WithContext(ctx).Model(&models.QuotationModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&quotationModels).Error; err != nil {
		return nil, err
	}
	quotations := make([]billing.Quotation, len(quotationModels))
	for i := range quotationModels {
		quotations[i] = *quotationModels[i].ToDomain()
	}
	return quotations, nil
}

// FindExpirable finds quotations past their validity deadline that can
// still transition to EXPIRED
func (r *GormQuotationRepository) FindExpirable(ctx context.Context, asOf time.Time, limit int) ([]billing.Quotation, error) {
	var quotationModels []models.QuotationModel
	if err := r.db.WithContext(ctx).
		Where("valid_until < ? AND status IN ?", asOf, []billing.QuotationStatus{
			billing.QuotationStatusSent,
			billing.QuotationStatusViewed,
			billing.QuotationStatusAccepted,
		}).
		Order("valid_until ASC").
		Limit(limit).
		Find(&quotationModels).Error; err != nil {
		return nil, err
	}
	quotations := make([]billing.Quotation, len(quotationModels))
	for i := range quotationModels {
		quotations[i] = *quotationModels[i].ToDomain()
	}
	return quotations, nil
}

// Count counts quotations matching the filter
func (r *GormQuotationRepository) Count(ctx context.Context, filter billing.QuotationFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.QuotationModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus counts quotations grouped by status
func (r *GormQuotationRepository) CountByStatus(ctx context.Context) (map[billing.QuotationStatus]int64, error) {
	var rows []struct {
		Status billing.QuotationStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.QuotationModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[billing.QuotationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Delete removes a quotation
func (r *GormQuotationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.QuotationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormQuotationRepository) applyFilter(query *gorm.DB, filter billing.QuotationFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	filter.Normalize()
	query = query.Offset(filter.Offset()).Limit(filter.PageSize)

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.EqualFold(filter.OrderDir, "desc") {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order("created_at DESC")
	}
	return query
}

func (r *GormQuotationRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.QuotationFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("quotation_number ILIKE ? OR customer->>'name' ILIKE ? OR customer->>'email' ILIKE ?",
			pattern, pattern, pattern)
	}
	if filter.LeadID != nil {
		query = query.Where("lead_id = ?", *filter.LeadID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}
	if filter.ValidAfter != nil {
		query = query.Where("valid_until >= ?", *filter.ValidAfter)
	}
	if filter.MinAmount != nil {
		query = query.Where("total_amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		query = query.Where("total_amount <= ?", *filter.MaxAmount)
	}
	return query
}

// Ensure GormQuotationRepository implements QuotationRepository
var _ billing.QuotationRepository = (*GormQuotationRepository)(nil)
