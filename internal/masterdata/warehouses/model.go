package warehouses

import (
	"errors"
	"time"
)

type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrWarehouseInUse is returned when a warehouse still holds stock or has
// open documents and cannot be deleted.
var ErrWarehouseInUse = errors.New("warehouse has stock or open documents")
