package persistence

import (
	"context"
	"time"

	"github.com/tripdesk/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormDocumentSequenceRepository implements DocumentSequenceRepository with
// a single atomic upsert. The RETURNING clause hands each caller its own
// value, so concurrent creations can never draw the same number.
type GormDocumentSequenceRepository struct {
	db *gorm.DB
}

// NewGormDocumentSequenceRepository creates a new GormDocumentSequenceRepository
func NewGormDocumentSequenceRepository(db *gorm.DB) *GormDocumentSequenceRepository {
	return &GormDocumentSequenceRepository{db: db}
}

// Next atomically increments and returns the sequence value for the
// document type and period
func (r *GormDocumentSequenceRepository) Next(ctx context.Context, docType billing.DocumentType, period string) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO document_sequences (doc_type, period, next_value, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET next_value = document_sequences.next_value + 1, updated_at = EXCLUDED.updated_at
		RETURNING next_value`,
		docType, period, time.Now()).
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Ensure GormDocumentSequenceRepository implements DocumentSequenceRepository
var _ billing.DocumentSequenceRepository = (*GormDocumentSequenceRepository)(nil)

// DocumentNumberService allocates formatted document numbers backed by the
// per-period sequences table
type DocumentNumberService struct {
	sequences billing.DocumentSequenceRepository
}

// NewDocumentNumberService creates a new DocumentNumberService
func NewDocumentNumberService(sequences billing.DocumentSequenceRepository) *DocumentNumberService {
	return &DocumentNumberService{sequences: sequences}
}

// Next returns the next document number for the type, e.g. INV-202608-00042
func (s *DocumentNumberService) Next(ctx context.Context, docType billing.DocumentType) (string, error) {
	period := billing.NumberPeriod(time.Now())
	seq, err := s.sequences.Next(ctx, docType, period)
	if err != nil {
		return "", err
	}
	return billing.FormatDocumentNumber(docType, period, seq), nil
}

// Ensure DocumentNumberService implements the domain interface
var _ billing.DocumentNumberService = (*DocumentNumberService)(nil)
