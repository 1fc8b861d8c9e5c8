package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/domain/shared/valueobject"
)

// DiscountType represents how the discount value is interpreted
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "NONE"
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// IsValid checks if the discount type is valid
func (d DiscountType) IsValid() bool {
	switch d {
	case DiscountTypeNone, DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// String returns the string representation of DiscountType
func (d DiscountType) String() string {
	return string(d)
}

// PricingParams holds the document-level pricing parameters applied on
// top of the line items. Rates are percentages (e.g. 5 means 5%).
type PricingParams struct {
	DiscountType      DiscountType    `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
}

// DefaultPricingParams returns pricing parameters with no discount,
// service charge or tax
func DefaultPricingParams() PricingParams {
	return PricingParams{
		DiscountType:      DiscountTypeNone,
		DiscountValue:     decimal.Zero,
		ServiceChargeRate: decimal.Zero,
		TaxRate:           decimal.Zero,
	}
}

// Validate checks the pricing parameter invariants
func (p PricingParams) Validate() error {
	if !p.DiscountType.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", "Discount type is not valid")
	}
	if p.DiscountValue.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Discount value cannot be negative")
	}
	if p.ServiceChargeRate.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Service charge rate cannot be negative")
	}
	if p.TaxRate.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Tax rate cannot be negative")
	}
	return nil
}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PricingParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PricingParams) Scan(value interface{}) error {
	if value == nil {
		*p = DefaultPricingParams()
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PricingParams: unsupported type")
	}

	if len(bytes) == 0 {
		*p = DefaultPricingParams()
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// CalculationResult holds the derived financial values of a document.
// All amounts are rounded to two decimal places.
type CalculationResult struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	ServiceChargeAmount decimal.Decimal `json:"service_charge_amount"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
}

var hundred = decimal.NewFromInt(100)

// Calculate derives the financial totals from line items and pricing
// parameters. It is pure: no I/O, no clock, no mutation of its inputs.
//
//	subtotal      = sum of item total prices
//	discount      = subtotal * value/100 (percentage) or value (fixed)
//	serviceCharge = subtotal * serviceChargeRate/100
//	taxableBase   = subtotal - discount + serviceCharge
//	tax           = taxableBase * taxRate/100
//	total         = taxableBase + tax
//
// A discount exceeding the subtotal is rejected rather than clamped, so a
// misconfigured fixed discount surfaces as an error instead of producing a
// silently negative taxable base.
func Calculate(items LineItems, params PricingParams) (CalculationResult, error) {
	if err := params.Validate(); err != nil {
		return CalculationResult{}, err
	}

	subtotal := items.Subtotal()

	var discount decimal.Decimal
	switch params.DiscountType {
	case DiscountTypePercentage:
		discount = subtotal.Mul(params.DiscountValue).Div(hundred)
	case DiscountTypeFixed:
		discount = params.DiscountValue
	default:
		discount = decimal.Zero
	}
	discount = discount.Round(valueobject.MoneyPrecision)

	if discount.GreaterThan(subtotal) {
		return CalculationResult{}, shared.NewDomainError("DISCOUNT_EXCEEDS_SUBTOTAL",
			"Discount amount cannot exceed the subtotal")
	}

	serviceCharge := subtotal.Mul(params.ServiceChargeRate).Div(hundred).Round(valueobject.MoneyPrecision)
	taxableBase := subtotal.Sub(discount).Add(serviceCharge)
	tax := taxableBase.Mul(params.TaxRate).Div(hundred).Round(valueobject.MoneyPrecision)

	return CalculationResult{
		Subtotal:            subtotal.Round(valueobject.MoneyPrecision),
		DiscountAmount:      discount,
		ServiceChargeAmount: serviceCharge,
		TaxAmount:           tax,
		TotalAmount:         taxableBase.Add(tax).Round(valueobject.MoneyPrecision),
	}, nil
}
