package inventory

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionImportProduction records one finished unit entering stock.
	TransactionImportProduction TransactionType = "IMPORT_PRODUCTION"
	// TransactionExportProduction records components issued to a work order.
	TransactionExportProduction TransactionType = "EXPORT_PRODUCTION"
	// TransactionImportPurchase records components received from a supplier.
	TransactionImportPurchase TransactionType = "IMPORT_PURCHASE"
	// TransactionExportSale records a finished unit shipped to a customer.
	TransactionExportSale TransactionType = "EXPORT_SALE"
	// TransactionAdjustment records a manual correction.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

// Transaction is one append-only ledger row. Rows are never updated or
// deleted; stock is maintained incrementally and the ledger is audit only.
type Transaction struct {
	ID                int64           `json:"id"`
	Type              TransactionType `json:"type"`
	WarehouseID       int64           `json:"warehouse_id"`
	ComponentID       *int64          `json:"component_id,omitempty"`
	ProductInstanceID *int64          `json:"product_instance_id,omitempty"`
	MaterialRequestID *int64          `json:"material_request_id,omitempty"`
	Quantity          int64           `json:"quantity"`
	ActorID           int64           `json:"actor_id"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ComponentStock is the on-hand quantity of one component in one warehouse.
// Quantity never goes below zero.
type ComponentStock struct {
	WarehouseID int64     `json:"warehouse_id"`
	ComponentID int64     `json:"component_id"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransactionFilter filters ledger listings.
type TransactionFilter struct {
	WarehouseID int64
	ComponentID int64
	Type        TransactionType
	From        time.Time
	To          time.Time
	Limit       int
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	WarehouseID int64
	ComponentID int64
	Delta       int64
	Note        string
	ActorID     int64
}

// ErrInsufficientStock is the sentinel for failed stock checks; the concrete
// error is InsufficientStockError carrying the shortfall detail.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrInvalidQuantity indicates a zero or negative quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrStockNotFound indicates a missing stock row.
var ErrStockNotFound = errors.New("inventory: stock row not found")

// InsufficientStockError reports which component could not be issued.
type InsufficientStockError struct {
	ComponentID int64
	Needed      int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for component %d: needed %d, available %d", e.ComponentID, e.Needed, e.Available)
}

// Is lets callers match the sentinel with errors.Is.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
