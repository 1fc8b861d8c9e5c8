package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Save creates or updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking on the version column
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice, expectedVersion int) error {
	model := models.InvoiceModelFromDomain(invoice)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", invoice.ID, expectedVersion).
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

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an invoice by its document number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		First(&model, "invoice_number = ?", invoiceNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByQuotation finds the invoice created from a quotation
func (r *GormInvoiceRepository) FindByQuotation(ctx context.Context, quotationID uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		First(&model, "quotation_id = ?", quotationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByLead finds all invoices for a lead
func (r *GormInvoiceRepository) FindByLead(ctx context.Context, leadID uuid.UUID) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toInvoices(invoiceModels), nil
}

// FindAll finds invoices with filtering and pagination
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toInvoices(invoiceModels), nil
}

// FindDueForOverdue finds open invoices past their due date whose cached
// status has not yet been flipped to OVERDUE
func (r *GormInvoiceRepository) FindDueForOverdue(ctx context.Context, asOf time.Time, limit int) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("due_date < ? AND status IN ?", asOf, []billing.InvoiceStatus{
			billing.InvoiceStatusSent,
			billing.InvoiceStatusViewed,
			billing.InvoiceStatusPartial,
		}).
		Order("due_date ASC").
		Limit(limit).
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toInvoices(invoiceModels), nil
}

// Count counts invoices matching the filter
func (r *GormInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus counts invoices grouped by status
func (r *GormInvoiceRepository) CountByStatus(ctx context.Context) (map[billing.InvoiceStatus]int64, error) {
	var rows []struct {
		Status billing.InvoiceStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[billing.InvoiceStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// SumOutstanding sums the outstanding amount across open invoices
func (r *GormInvoiceRepository) SumOutstanding(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(outstanding_amount), 0) as total").
		Where("status NOT IN ?", []billing.InvoiceStatus{
			billing.InvoiceStatusCancelled,
			billing.InvoiceStatusRefunded,
		}).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumCollected sums the paid amount across invoices in a date range
func (r *GormInvoiceRepository) SumCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(paid_amount), 0) as total").
		Where("updated_at >= ? AND updated_at <= ? AND status != ?", from, to, billing.InvoiceStatusCancelled).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func toInvoices(invoiceModels []models.InvoiceModel) []billing.Invoice {
	invoices := make([]billing.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices
}

func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
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

func (r *GormInvoiceRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("invoice_number ILIKE ? OR booking_ref ILIKE ? OR customer->>'name' ILIKE ?",
			pattern, pattern, pattern)
	}
	if filter.LeadID != nil {
		query = query.Where("lead_id = ?", *filter.LeadID)
	}
	if filter.QuotationID != nil {
		query = query.Where("quotation_id = ?", *filter.QuotationID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", *filter.DueTo)
	}
	if filter.Overdue != nil && *filter.Overdue {
		query = query.Where("due_date < ? AND status NOT IN ?", time.Now(), []billing.InvoiceStatus{
			billing.InvoiceStatusPaid,
			billing.InvoiceStatusCancelled,
			billing.InvoiceStatusRefunded,
		})
	}
	if filter.MinAmount != nil {
		query = query.Where("total_amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		query = query.Where("total_amount <= ?", *filter.MaxAmount)
	}
	return query
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
