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

// GormCreditNoteRepository implements CreditNoteRepository using GORM
type GormCreditNoteRepository struct {
	db *gorm.DB
}

// NewGormCreditNoteRepository creates a new GormCreditNoteRepository
func NewGormCreditNoteRepository(db *gorm.DB) *GormCreditNoteRepository {
	return &GormCreditNoteRepository{db: db}
}

// Save creates or updates a credit note
func (r *GormCreditNoteRepository) Save(ctx context.Context, creditNote *billing.CreditNote) error {
	model := models.CreditNoteModelFromDomain(creditNote)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking on the version column
func (r *GormCreditNoteRepository) SaveWithLock(ctx context.Context, creditNote *billing.CreditNote, expectedVersion int) error {
	model := models.CreditNoteModelFromDomain(creditNote)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", creditNote.ID, expectedVersion).
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

// FindByID finds a credit note by its ID
func (r *GormCreditNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.CreditNote, error) {
	var model models.CreditNoteModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a credit note by its document number
func (r *GormCreditNoteRepository) FindByNumber(ctx context.Context, creditNoteNumber string) (*billing.CreditNote, error) {
	var model models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		First(&model, "credit_note_number = ?", creditNoteNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds all credit notes raised against an invoice
func (r *GormCreditNoteRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.CreditNote, error) {
	var creditNoteModels []models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		Find(&creditNoteModels).Error; err != nil {
		return nil, err
	}
	return toCreditNotes(creditNoteModels), nil
}

// FindByVoucherCode finds the credit note carrying a voucher code
func (r *GormCreditNoteRepository) FindByVoucherCode(ctx context.Context, code string) (*billing.CreditNote, error) {
	var model models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		First(&model, "voucher_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds credit notes with filtering and pagination
func (r *GormCreditNoteRepository) FindAll(ctx context.Context, filter billing.CreditNoteFilter) ([]billing.CreditNote, error) {
	var creditNoteModels []models.CreditNoteModel
	query := r.db.WithContext(ctx).Model(&models.CreditNoteModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&creditNoteModels).Error; err != nil {
		return nil, err
	}
	return toCreditNotes(creditNoteModels), nil
}

// Count counts credit notes matching the filter
func (r *GormCreditNoteRepository) Count(ctx context.Context, filter billing.CreditNoteFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.CreditNoteModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumCredited sums issued or settled credit amounts in a date range
func (r *GormCreditNoteRepository) SumCredited(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CreditNoteModel{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("issued_at >= ? AND issued_at <= ? AND status IN ?", from, to,
			[]billing.CreditNoteStatus{
				billing.CreditNoteStatusIssued,
				billing.CreditNoteStatusApplied,
				billing.CreditNoteStatusRefunded,
			}).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func toCreditNotes(creditNoteModels []models.CreditNoteModel) []billing.CreditNote {
	creditNotes := make([]billing.CreditNote, len(creditNoteModels))
	for i := range creditNoteModels {
		creditNotes[i] = *creditNoteModels[i].ToDomain()
	}
	return creditNotes
}

func (r *GormCreditNoteRepository) applyFilter(query *gorm.DB, filter billing.CreditNoteFilter) *gorm.DB {
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

func (r *GormCreditNoteRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.CreditNoteFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("credit_note_number ILIKE ? OR reason_detail ILIKE ? OR customer->>'name' ILIKE ?",
			pattern, pattern, pattern)
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
	if filter.RefundStatus != nil {
		query = query.Where("refund_status = ?", *filter.RefundStatus)
	}
	if filter.Reason != nil {
		query = query.Where("reason = ?", *filter.Reason)
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}
	return query
}

// Ensure GormCreditNoteRepository implements CreditNoteRepository
var _ billing.CreditNoteRepository = (*GormCreditNoteRepository)(nil)
