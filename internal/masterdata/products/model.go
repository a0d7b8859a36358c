package products

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Unit        string    `json:"unit"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompositionLine is one bill-of-materials entry: building one unit of the
// product consumes QuantityNeeded of the component.
type CompositionLine struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ComponentID    int64           `json:"component_id"`
	ComponentCode  string          `json:"component_code,omitempty"`
	ComponentName  string          `json:"component_name,omitempty"`
	QuantityNeeded decimal.Decimal `json:"quantity_needed"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

var (
	ErrProductInUse     = errors.New("product has work orders or instances")
	ErrDuplicateLine    = errors.New("component already present in composition")
	ErrInvalidQuantity  = errors.New("quantity needed must be positive")
	ErrCodeImmutable    = errors.New("product code cannot be changed")
	ErrUnknownComponent = errors.New("component does not exist")
)
