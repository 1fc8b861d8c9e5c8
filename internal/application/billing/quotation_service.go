package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
)

// QuotationService provides application-level quotation operations
type QuotationService struct {
	quotationRepo billing.QuotationRepository
	invoiceRepo   billing.InvoiceRepository
	leads         billing.LeadGateway
	numbers       billing.DocumentNumberService
	eventBus      shared.EventPublisher
}

// NewQuotationService creates a new QuotationService
func NewQuotationService(
	quotationRepo billing.QuotationRepository,
	invoiceRepo billing.InvoiceRepository,
	leads billing.LeadGateway,
	numbers billing.DocumentNumberService,
	eventBus shared.EventPublisher,
) *QuotationService {
	return &QuotationService{
		quotationRepo: quotationRepo,
		invoiceRepo:   invoiceRepo,
		leads:         leads,
		numbers:       numbers,
		eventBus:      eventBus,
	}
}

// publishEvents drains and publishes an aggregate's pending domain events.
// Event delivery is best-effort; the state change has already been
// persisted, so a publish failure must not fail the operation.
func publishEvents(ctx context.Context, bus shared.EventPublisher, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 || bus == nil {
		return
	}
	_ = bus.Publish(ctx, events...)
	agg.ClearDomainEvents()
}

// LineItemInput carries caller-provided line item fields
type LineItemInput struct {
	Description string          `json:"description" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Notes       string          `json:"notes"`
}

// PricingInput carries caller-provided pricing parameters
type PricingInput struct {
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
}

func buildLineItems(inputs []LineItemInput) (billing.LineItems, error) {
	items := make(billing.LineItems, 0, len(inputs))
	for _, in := range inputs {
		item, err := billing.NewLineItem(in.Description, billing.ItemCategory(in.Category),
			in.Quantity, in.UnitPrice, in.TaxRate, in.Notes)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func buildPricing(in *PricingInput) billing.PricingParams {
	if in == nil {
		return billing.DefaultPricingParams()
	}
	params := billing.PricingParams{
		DiscountType:      billing.DiscountType(in.DiscountType),
		DiscountValue:     in.DiscountValue,
		ServiceChargeRate: in.ServiceChargeRate,
		TaxRate:           in.TaxRate,
	}
	if params.DiscountType == "" {
		params.DiscountType = billing.DiscountTypeNone
	}
	return params
}

// CreateQuotationRequest is the input for creating a quotation
type CreateQuotationRequest struct {
	LeadID     uuid.UUID       `json:"lead_id" binding:"required"`
	Items      []LineItemInput `json:"items" binding:"required,min=1,dive"`
	Pricing    *PricingInput   `json:"pricing"`
	ValidUntil *time.Time      `json:"valid_until"`
	Notes      string          `json:"notes"`
}

// QuotationResponse represents a quotation in API responses
type QuotationResponse struct {
	ID                   uuid.UUID                `json:"id"`
	QuotationNumber      string                   `json:"quotation_number"`
	LeadID               uuid.UUID                `json:"lead_id"`
	Customer             billing.CustomerSnapshot `json:"customer"`
	Items                billing.LineItems        `json:"items"`
	Pricing              billing.PricingParams    `json:"pricing"`
	Subtotal             decimal.Decimal          `json:"subtotal"`
	DiscountAmount       decimal.Decimal          `json:"discount_amount"`
	ServiceChargeAmount  decimal.Decimal          `json:"service_charge_amount"`
	TaxAmount            decimal.Decimal          `json:"tax_amount"`
	TotalAmount          decimal.Decimal          `json:"total_amount"`
	Status               string                   `json:"status"`
	ValidUntil           time.Time                `json:"valid_until"`
	ConvertedToInvoiceID *uuid.UUID               `json:"converted_to_invoice_id,omitempty"`
	Notes                string                   `json:"notes,omitempty"`
	RejectionReason      string                   `json:"rejection_reason,omitempty"`
	RevisionHistory      billing.RevisionHistory  `json:"revision_history,omitempty"`
	SentAt               *time.Time               `json:"sent_at,omitempty"`
	ViewedAt             *time.Time               `json:"viewed_at,omitempty"`
	AcceptedAt           *time.Time               `json:"accepted_at,omitempty"`
	ExpiredAt            *time.Time               `json:"expired_at,omitempty"`
	ConvertedAt          *time.Time               `json:"converted_at,omitempty"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
	Version              int                      `json:"version"`
}

func toQuotationResponse(q *billing.Quotation) *QuotationResponse {
	return &QuotationResponse{
		ID:                   q.ID,
		QuotationNumber:      q.QuotationNumber,
		LeadID:               q.LeadID,
		Customer:             q.Customer,
		Items:                q.Items,
		Pricing:              q.Pricing,
		Subtotal:             q.Subtotal,
		DiscountAmount:       q.DiscountAmount,
		ServiceChargeAmount:  q.ServiceChargeAmount,
		TaxAmount:            q.TaxAmount,
		TotalAmount:          q.TotalAmount,
		Status:               q.Status.String(),
		ValidUntil:           q.ValidUntil,
		ConvertedToInvoiceID: q.ConvertedToInvoiceID,
		Notes:                q.Notes,
		RejectionReason:      q.RejectionReason,
		RevisionHistory:      q.RevisionHistory,
		SentAt:               q.SentAt,
		ViewedAt:             q.ViewedAt,
		AcceptedAt:           q.AcceptedAt,
		ExpiredAt:            q.ExpiredAt,
		ConvertedAt:          q.ConvertedAt,
		CreatedAt:            q.CreatedAt,
		UpdatedAt:            q.UpdatedAt,
		Version:              q.Version,
	}
}

// CreateQuotation creates a draft quotation for a lead. The customer
// snapshot is copied from the lead at creation time.
func (s *QuotationService) CreateQuotation(ctx context.Context, req CreateQuotationRequest, createdBy *uuid.UUID) (*QuotationResponse, error) {
	lead, err := s.leads.FindByID(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Lead not found")
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, billing.DocumentTypeQuotation)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate quotation number: %w", err)
	}

	quotation, err := billing.NewQuotation(number, lead, items, buildPricing(req.Pricing), req.ValidUntil, req.Notes, createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.quotationRepo.Save(ctx, quotation); err != nil {
		return nil, fmt.Errorf("failed to save quotation: %w", err)
	}

	publishEvents(ctx, s.eventBus, quotation)

	return toQuotationResponse(quotation), nil
}

// UpdateQuotationRequest is the input for editing a quotation
type UpdateQuotationRequest struct {
	Items        []LineItemInput `json:"items" binding:"required,min=1,dive"`
	Pricing      *PricingInput   `json:"pricing"`
	ValidUntil   *time.Time      `json:"valid_until"`
	Notes        string          `json:"notes"`
	RevisionNote string          `json:"revision_note"`
}

// UpdateQuotation edits quotation content, recording a revision entry for
// post-send edits
func (s *QuotationService) UpdateQuotation(ctx context.Context, id uuid.UUID, req UpdateQuotationRequest, editedBy *uuid.UUID) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.UpdateDetails(items, buildPricing(req.Pricing), req.ValidUntil, req.Notes, editedBy, req.RevisionNote); err != nil {
		return nil, err
	}

	if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
		return nil, err
	}

	return toQuotationResponse(quotation), nil
}

// SendQuotation marks the quotation sent and notifies the lead subsystem
func (s *QuotationService) SendQuotation(ctx context.Context, id uuid.UUID) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.Send(); err != nil {
		return nil, err
	}

	if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
		return nil, err
	}

	if err := s.leads.MarkQuoted(ctx, quotation.LeadID, quotation.QuotationNumber, quotation.TotalAmount); err != nil {
		// The lead status write-back is advisory; the quotation send has
		// already been committed.
		_ = err
	}

	publishEvents(ctx, s.eventBus, quotation)

	return toQuotationResponse(quotation), nil
}

// MarkQuotationViewed records that the customer opened the quotation
func (s *QuotationService) MarkQuotationViewed(ctx context.Context, id uuid.UUID) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.MarkViewed(); err != nil {
		return nil, err
	}
	if quotation.Version != expectedVersion {
		if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
			return nil, err
		}
	}

	return toQuotationResponse(quotation), nil
}

// AcceptQuotation records customer acceptance
func (s *QuotationService) AcceptQuotation(ctx context.Context, id uuid.UUID) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.Accept(time.Now()); err != nil {
		return nil, err
	}
	if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
		return nil, err
	}

	publishEvents(ctx, s.eventBus, quotation)

	return toQuotationResponse(quotation), nil
}

// RejectQuotation records customer rejection with a reason
func (s *QuotationService) RejectQuotation(ctx context.Context, id uuid.UUID, reason string) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.Reject(time.Now(), reason); err != nil {
		return nil, err
	}
	if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
		return nil, err
	}

	publishEvents(ctx, s.eventBus, quotation)

	return toQuotationResponse(quotation), nil
}

// DeleteDraftQuotation removes a quotation that was never sent
func (s *QuotationService) DeleteDraftQuotation(ctx context.Context, id uuid.UUID) error {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return err
	}
	if quotation.Status != billing.QuotationStatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Only draft quotations can be deleted")
	}
	return s.quotationRepo.Delete(ctx, id)
}

// GetQuotation gets a quotation by ID
func (s *QuotationService) GetQuotation(ctx context.Context, id uuid.UUID) (*QuotationResponse, error) {
	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		return nil, err
	}
	return toQuotationResponse(quotation), nil
}

// QuotationListFilter defines filtering options for quotation list queries
type QuotationListFilter struct {
	Search   string     `form:"search"`
	LeadID   *uuid.UUID `form:"lead_id"`
	Status   string     `form:"status"`
	FromDate *time.Time `form:"from_date"`
	ToDate   *time.Time `form:"to_date"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

// ListQuotations lists quotations with filtering
func (s *QuotationService) ListQuotations(ctx context.Context, filter QuotationListFilter) ([]QuotationResponse, int64, error) {
	domainFilter := billing.QuotationFilter{
		LeadID:   filter.LeadID,
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
	}
	domainFilter.Search = filter.Search
	domainFilter.Page = filter.Page
	domainFilter.PageSize = filter.PageSize

	if filter.Status != "" {
		status := billing.QuotationStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION_ERROR", "Unknown quotation status filter")
		}
		domainFilter.Status = &status
	}

	quotations, err := s.quotationRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.quotationRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]QuotationResponse, len(quotations))
	for i := range quotations {
		responses[i] = *toQuotationResponse(&quotations[i])
	}
	return responses, total, nil
}

// ConvertResult is returned by ConvertToInvoice. AlreadyConverted is true
// when the call was an idempotent retry and Invoice is the previously
// created document.
type ConvertResult struct {
	Invoice          *InvoiceResponse `json:"invoice"`
	AlreadyConverted bool             `json:"already_converted"`
}

// ConvertToInvoice converts a quotation into an invoice. The operation is
// idempotent: retrying after success returns the invoice created by the
// first call instead of a second invoice.
func (s *QuotationService) ConvertToInvoice(ctx context.Context, id uuid.UUID, dueDate *time.Time, bookingRef string, convertedBy *uuid.UUID) (*ConvertResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "quotation", "convert_to_invoice")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrQuotationID, id.String())

	quotation, err := s.getQuotation(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrLeadID, quotation.LeadID.String())

	if quotation.Status == billing.QuotationStatusConverted {
		return s.existingConversion(ctx, quotation)
	}

	number, err := s.numbers.Next(ctx, billing.DocumentTypeInvoice)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	invoice, err := billing.NewInvoice(
		number,
		quotation.LeadID,
		quotation.Customer,
		quotation.Items.Clone(),
		quotation.Pricing,
		dueDate,
		&quotation.ID,
		bookingRef,
		quotation.Notes,
		convertedBy,
	)
	if err != nil {
		return nil, err
	}

	expectedVersion := quotation.Version
	if err := quotation.MarkConverted(time.Now(), invoice.ID); err != nil {
		var domainErr *shared.DomainError
		if errorsAs(err, &domainErr) && domainErr.Code == "ALREADY_CONVERTED" {
			return s.existingConversion(ctx, quotation)
		}
		return nil, err
	}

	// The conversion marker persists first: if the invoice save fails the
	// lock conflict on retry re-reads the quotation and either retries or
	// returns the existing invoice, never a duplicate.
	if err := s.quotationRepo.SaveWithLock(ctx, quotation, expectedVersion); err != nil {
		if isConcurrencyConflict(err) {
			fresh, ferr := s.getQuotation(ctx, id)
			if ferr == nil && fresh.Status == billing.QuotationStatusConverted {
				return s.existingConversion(ctx, fresh)
			}
		}
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	if err := s.leads.MarkConverted(ctx, quotation.LeadID); err != nil {
		_ = err
	}

	publishEvents(ctx, s.eventBus, quotation)
	publishEvents(ctx, s.eventBus, invoice)

	telemetry.AddEvent(span, "quotation_converted",
		telemetry.SpanAttrDocumentNumber, invoice.InvoiceNumber,
	)

	return &ConvertResult{Invoice: toInvoiceResponse(invoice)}, nil
}

func (s *QuotationService) existingConversion(ctx context.Context, quotation *billing.Quotation) (*ConvertResult, error) {
	if quotation.ConvertedToInvoiceID == nil {
		return nil, shared.NewDomainError("INVALID_STATE", "Quotation is converted but carries no invoice reference")
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, *quotation.ConvertedToInvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Converted invoice not found")
	}
	return &ConvertResult{Invoice: toInvoiceResponse(invoice), AlreadyConverted: true}, nil
}

// ExpireDueQuotations moves quotations past their validity deadline to
// EXPIRED. Called by the scheduler sweep; returns the number expired.
func (s *QuotationService) ExpireDueQuotations(ctx context.Context, batchSize int) (int, error) {
	now := time.Now()
	quotations, err := s.quotationRepo.FindExpirable(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range quotations {
		q := &quotations[i]
		expectedVersion := q.Version
		if !q.ExpireIfDue(now) {
			continue
		}
		if err := s.quotationRepo.SaveWithLock(ctx, q, expectedVersion); err != nil {
			// Another writer won the race for this quotation; skip it and
			// let the next sweep pick it up if still relevant.
			continue
		}
		publishEvents(ctx, s.eventBus, q)
		expired++
	}
	return expired, nil
}

func (s *QuotationService) getQuotation(ctx context.Context, id uuid.UUID) (*billing.Quotation, error) {
	quotation, err := s.quotationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if quotation == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Quotation not found")
	}
	return quotation, nil
}
