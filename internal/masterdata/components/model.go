package components

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Component represents a raw-material SKU.
type Component struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	MinStockLevel int64           `json:"min_stock_level"`
	StandardCost  decimal.Decimal `json:"standard_cost"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ErrComponentInUse indicates a delete attempt on a component still
// referenced by a BOM line, a purchase-order line or non-zero stock.
var ErrComponentInUse = errors.New("component is referenced and cannot be deleted")

// ErrCodeImmutable indicates an update attempted to change the code.
var ErrCodeImmutable = errors.New("component code is immutable")
