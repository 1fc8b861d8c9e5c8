package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tripdesk/backend/internal/domain/shared"
)

// CustomerSnapshot holds the customer contact fields copied from the Lead
// at document creation time. Later edits to the Lead do not retroactively
// change an issued document.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Validate checks the required customer fields
func (c CustomerSnapshot) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Customer name is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Customer email is required")
	}
	return nil
}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (c CustomerSnapshot) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (c *CustomerSnapshot) Scan(value interface{}) error {
	if value == nil {
		*c = CustomerSnapshot{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan CustomerSnapshot: unsupported type")
	}

	if len(bytes) == 0 {
		*c = CustomerSnapshot{}
		return nil
	}

	return json.Unmarshal(bytes, c)
}
