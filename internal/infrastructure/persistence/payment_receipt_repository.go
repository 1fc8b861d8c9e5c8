package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentReceiptRepository implements PaymentReceiptRepository using GORM
type GormPaymentReceiptRepository struct {
	db *gorm.DB
}

// NewGormPaymentReceiptRepository creates a new GormPaymentReceiptRepository
func NewGormPaymentReceiptRepository(db *gorm.DB) *GormPaymentReceiptRepository {
	return &GormPaymentReceiptRepository{db: db}
}

// Save creates or updates a payment receipt
func (r *GormPaymentReceiptRepository) Save(ctx context.Context, receipt *billing.PaymentReceipt) error {
	model := models.PaymentReceiptModelFromDomain(receipt)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a receipt by its ID
func (r *GormPaymentReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentReceipt, error) {
	var model models.PaymentReceiptModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a receipt by its document number
func (r *GormPaymentReceiptRepository) FindByNumber(ctx context.Context, receiptNumber string) (*billing.PaymentReceipt, error) {
	var model models.PaymentReceiptModel
	if err := r.db.WithContext(ctx).
		First(&model, "receipt_number = ?", receiptNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds all receipts recorded against an invoice
func (r *GormPaymentReceiptRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.PaymentReceipt, error) {
	var receiptModels []models.PaymentReceiptModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC").
		Find(&receiptModels).Error; err != nil {
		return nil, err
	}
	return toReceipts(receiptModels), nil
}

// FindAll finds receipts with filtering and pagination
func (r *GormPaymentReceiptRepository) FindAll(ctx context.Context, filter billing.PaymentReceiptFilter) ([]billing.PaymentReceipt, error) {
	var receiptModels []models.PaymentReceiptModel
	query := r.db.WithContext(ctx).Model(&models.PaymentReceiptModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&receiptModels).Error; err != nil {
		return nil, err
	}
	return toReceipts(receiptModels), nil
}

// FindUnreconciled finds verified receipts awaiting reconciliation
func (r *GormPaymentReceiptRepository) FindUnreconciled(ctx context.Context, limit int) ([]billing.PaymentReceipt, error) {
	var receiptModels []models.PaymentReceiptModel
	if err := r.db.WithContext(ctx).
		Where("verified = ? AND reconciled = ? AND status != ?",
			true, false, billing.ReceiptStatusCancelled).
		Order("payment_date ASC").
		Limit(limit).
		Find(&receiptModels).Error; err != nil {
		return nil, err
	}
	return toReceipts(receiptModels), nil
}

// Count counts receipts matching the filter
func (r *GormPaymentReceiptRepository) Count(ctx context.Context, filter billing.PaymentReceiptFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.PaymentReceiptModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumByMethod sums active receipt amounts grouped by payment method within
// a date range. Cancelled receipts are excluded.
func (r *GormPaymentReceiptRepository) SumByMethod(ctx context.Context, from, to time.Time) (map[billing.PaymentMethod]decimal.Decimal, error) {
	var rows []struct {
		Method billing.PaymentMethod
		Total  decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentReceiptModel{}).
		Select("method, COALESCE(SUM(amount), 0) as total").
		Where("payment_date >= ? AND payment_date <= ? AND status != ?",
			from, to, billing.ReceiptStatusCancelled).
		Group("method").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	sums := make(map[billing.PaymentMethod]decimal.Decimal, len(rows))
	for _, row := range rows {
		sums[row.Method] = row.Total
	}
	return sums, nil
}

func toReceipts(receiptModels []models.PaymentReceiptModel) []billing.PaymentReceipt {
	receipts := make([]billing.PaymentReceipt, len(receiptModels))
	for i := range receiptModels {
		receipts[i] = *receiptModels[i].ToDomain()
	}
	return receipts
}

func (r *GormPaymentReceiptRepository) applyFilter(query *gorm.DB, filter billing.PaymentReceiptFilter) *gorm.DB {
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
		query = query.Order("payment_date DESC")
	}
	return query
}

func (r *GormPaymentReceiptRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.PaymentReceiptFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("receipt_number ILIKE ? OR remark ILIKE ?", pattern, pattern)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.LeadID != nil {
		query = query.Where("lead_id = ?", *filter.LeadID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}
	if filter.Verified != nil {
		query = query.Where("verified = ?", *filter.Verified)
	}
	if filter.Reconciled != nil {
		query = query.Where("reconciled = ?", *filter.Reconciled)
	}
	if filter.FromDate != nil {
		query = query.Where("payment_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("payment_date <= ?", *filter.ToDate)
	}
	return query
}

// Ensure GormPaymentReceiptRepository implements PaymentReceiptRepository
var _ billing.PaymentReceiptRepository = (*GormPaymentReceiptRepository)(nil)
