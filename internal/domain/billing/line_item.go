package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripdesk/backend/internal/domain/shared"
)

// ItemCategory classifies a line item within a travel document
type ItemCategory string

const (
	ItemCategoryFlight    ItemCategory = "FLIGHT"
	ItemCategoryHotel     ItemCategory = "HOTEL"
	ItemCategoryTransport ItemCategory = "TRANSPORT"
	ItemCategoryActivity  ItemCategory = "ACTIVITY"
	ItemCategoryVisa      ItemCategory = "VISA"
	ItemCategoryInsurance ItemCategory = "INSURANCE"
	ItemCategoryPackage   ItemCategory = "PACKAGE"
	ItemCategoryOther     ItemCategory = "OTHER"
)

// IsValid checks if the category is a valid ItemCategory
func (c ItemCategory) IsValid() bool {
	switch c {
	case ItemCategoryFlight, ItemCategoryHotel, ItemCategoryTransport,
		ItemCategoryActivity, ItemCategoryVisa, ItemCategoryInsurance,
		ItemCategoryPackage, ItemCategoryOther:
		return true
	}
	return false
}

// String returns the string representation of ItemCategory
func (c ItemCategory) String() string {
	return string(c)
}

// LineItem is a value object embedded in quotations and invoices.
// TotalPrice is always Quantity * UnitPrice; it is recomputed on
// construction and never taken from caller input.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Category    ItemCategory    `json:"category"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Notes       string          `json:"notes,omitempty"`
}

// NewLineItem creates a validated line item with the total price derived
// from quantity and unit price
func NewLineItem(description string, category ItemCategory, quantity int, unitPrice decimal.Decimal, taxRate decimal.Decimal, notes string) (LineItem, error) {
	item := LineItem{
		ID:          uuid.New(),
		Description: description,
		Category:    category,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		TaxRate:     taxRate,
		Notes:       notes,
	}
	if err := item.Validate(); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// Validate checks the line item invariants
func (i LineItem) Validate() error {
	if i.Description == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item description cannot be empty")
	}
	if !i.Category.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item category is not valid")
	}
	if i.Quantity < 1 {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item quantity must be at least 1")
	}
	if i.UnitPrice.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item unit price cannot be negative")
	}
	if i.TaxRate.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item tax rate cannot be negative")
	}
	expected := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	if !i.TotalPrice.Equal(expected) {
		return shared.NewDomainError("VALIDATION_ERROR", "Line item total price does not match quantity * unit price")
	}
	return nil
}

// LineItems is a slice of LineItem that implements GORM Scanner/Valuer for JSONB storage
type LineItems []LineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan LineItems: unsupported type")
	}

	if len(bytes) == 0 {
		*l = LineItems{}
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// Validate checks every item in the collection
func (l LineItems) Validate() error {
	if len(l) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "At least one line item is required")
	}
	for _, item := range l {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Subtotal returns the sum of all item total prices
func (l LineItems) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range l {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}

// Clone returns a deep copy with fresh item IDs, used when copying items
// from a quotation onto the invoice it converts into
func (l LineItems) Clone() LineItems {
	cloned := make(LineItems, len(l))
	for i, item := range l {
		cloned[i] = item
		cloned[i].ID = uuid.New()
	}
	return cloned
}
