package workorders

import (
	"errors"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// machine: strictly forward, no skip, no backward transition.
var machine = statemachine.New(map[Status][]Status{
	StatusPlanned:    {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}, StatusCompleted)

// WorkOrder is the unit of production execution for a planned quantity of
// one product.
type WorkOrder struct {
	ID                  int64      `json:"id"`
	Code                string     `json:"code"`
	ProductID           int64      `json:"product_id"`
	ProductCode         string     `json:"product_code,omitempty"`
	ProductionRequestID int64      `json:"production_request_id"`
	Quantity            int64      `json:"quantity"`
	AssignedLine        string     `json:"assigned_line,omitempty"`
	Status              Status     `json:"status"`
	CreatedBy           int64      `json:"created_by"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ProductionBatch groups the units minted by one work-order completion.
// A batch belongs to exactly one work order for its whole life.
type ProductionBatch struct {
	ID             int64      `json:"id"`
	WorkOrderID    int64      `json:"work_order_id"`
	Code           string     `json:"code"`
	ProductionDate time.Time  `json:"production_date"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

type InstanceStatus string

const (
	InstanceInStock InstanceStatus = "IN_STOCK"
	InstanceShipped InstanceStatus = "SHIPPED"
)

// ProductInstance is one physical serialized unit of finished goods.
type ProductInstance struct {
	ID           int64          `json:"id"`
	ProductID    int64          `json:"product_id"`
	BatchID      int64          `json:"batch_id"`
	SerialNumber string         `json:"serial_number"`
	Status       InstanceStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

type CreateInput struct {
	ProductionRequestID int64
	ProductID           int64
	Quantity            int64
	AssignedLine        string
	ActorID             int64
}

type CompleteInput struct {
	QuantityProduced  int64
	ActorID           int64
	BatchCodeOverride string
	ExpiryDate        *time.Time
}

type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrRequestNotApproved = errors.New("production request is not approved")
	ErrProductMismatch    = errors.New("product does not match production request")
)
