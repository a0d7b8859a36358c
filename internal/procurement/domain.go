package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

var machine = statemachine.New(map[Status][]Status{
	StatusDraft:     {StatusSubmitted, StatusCancelled},
	StatusSubmitted: {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusReceived},
}, StatusReceived, StatusCancelled)

// PurchaseOrder restocks components from a supplier. Receiving it posts the
// import ledger rows and credits warehouse stock in one transaction.
type PurchaseOrder struct {
	ID          int64      `json:"id"`
	SupplierID  int64      `json:"supplier_id"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      Status     `json:"status"`
	CreatedBy   int64      `json:"created_by"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Lines       []Line     `json:"lines,omitempty"`
}

type Line struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ComponentID int64           `json:"component_id"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateInput struct {
	SupplierID  int64
	WarehouseID int64
	Note        string
	ActorID     int64
	Lines       []LineInput
}

type LineInput struct {
	ComponentID int64
	Quantity    int64
	UnitPrice   decimal.Decimal
}

var (
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrNoLines         = errors.New("purchase order has no lines")
	ErrNotEditable     = errors.New("purchase order is no longer a draft")
)
