package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
)

var machine = statemachine.New(map[Status][]Status{
	StatusDraft:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusFulfilled, StatusCancelled},
}, StatusFulfilled, StatusCancelled)

// SalesOrder ships serialized finished goods to a customer. Fulfilling it
// picks the oldest in-stock instances per product and posts one export
// ledger row for each shipped unit.
type SalesOrder struct {
	ID           int64      `json:"id"`
	CustomerName string     `json:"customer_name"`
	Status       Status     `json:"status"`
	CreatedBy    int64      `json:"created_by"`
	FulfilledAt  *time.Time `json:"fulfilled_at,omitempty"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Lines        []Line     `json:"lines,omitempty"`
}

type Line struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Shipment lists the serial numbers shipped for one fulfilled order.
type Shipment struct {
	OrderID int64          `json:"order_id"`
	Units   []ShippedUnit  `json:"units"`
}

type ShippedUnit struct {
	ProductID    int64  `json:"product_id"`
	InstanceID   int64  `json:"instance_id"`
	SerialNumber string `json:"serial_number"`
}

type CreateInput struct {
	CustomerName string
	Note         string
	ActorID      int64
	Lines        []LineInput
}

type LineInput struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// InsufficientInstancesError reports a product that does not have enough
// in-stock serialized units to cover an order line.
type InsufficientInstancesError struct {
	ProductID int64
	Needed    int64
	Available int64
}

func (e *InsufficientInstancesError) Error() string {
	return fmt.Sprintf("product %d: need %d in-stock units, have %d", e.ProductID, e.Needed, e.Available)
}

var (
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrNoLines         = errors.New("sales order has no lines")
	ErrEmptyCustomer   = errors.New("customer name is required")
)
