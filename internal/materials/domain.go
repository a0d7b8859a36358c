package materials

import (
	"errors"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

var machine = statemachine.New(map[Status][]Status{
	StatusPending: {StatusApproved},
}, StatusApproved)

// MaterialRequest is the warehouse-issue ticket covering one work order's
// component needs. One request is created per work-order start.
type MaterialRequest struct {
	ID          int64      `json:"id"`
	WorkOrderID int64      `json:"work_order_id"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      Status     `json:"status"`
	RequesterID int64      `json:"requester_id"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Lines       []Line     `json:"lines,omitempty"`
}

// Line references one component and the whole-unit quantity the bill of
// materials requires for the planned production quantity.
type Line struct {
	ID            int64  `json:"id"`
	RequestID     int64  `json:"request_id"`
	ComponentID   int64  `json:"component_id"`
	ComponentCode string `json:"component_code,omitempty"`
	ComponentName string `json:"component_name,omitempty"`
	Quantity      int64  `json:"quantity"`
}

// DispatchSlip proves material actually left the warehouse. It only exists
// for approved requests.
type DispatchSlip struct {
	RequestID     int64      `json:"request_id"`
	WorkOrderCode string     `json:"work_order_code"`
	WarehouseID   int64      `json:"warehouse_id"`
	ApproverID    int64      `json:"approver_id"`
	ApprovedAt    time.Time  `json:"approved_at"`
	Lines         []SlipLine `json:"lines"`
}

type SlipLine struct {
	ComponentCode string `json:"component_code"`
	ComponentName string `json:"component_name"`
	Unit          string `json:"unit"`
	Quantity      int64  `json:"quantity"`
	QuantityText  string `json:"quantity_text"`
}

var (
	ErrNotApproved        = errors.New("material request is not approved")
	ErrNoLines            = errors.New("material request has no lines")
	ErrRequestExists      = errors.New("work order already has a material request")
	ErrWorkOrderCompleted = errors.New("work order is already completed")
)
