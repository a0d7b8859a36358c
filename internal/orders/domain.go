package orders

import (
	"errors"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// machine: a request is decided exactly once.
var machine = statemachine.New(map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
}, StatusApproved, StatusRejected)

// ProductionRequest is a demand signal for N units of a product. It is
// immutable once approved or rejected.
type ProductionRequest struct {
	ID          int64      `json:"id"`
	ProductID   int64      `json:"product_id"`
	ProductCode string     `json:"product_code,omitempty"`
	Quantity    int64      `json:"quantity"`
	Status      Status     `json:"status"`
	RequesterID int64      `json:"requester_id"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	Note        string     `json:"note,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateInput struct {
	ProductID   int64
	Quantity    int64
	RequesterID int64
	Note        string
}

type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrUnknownProduct  = errors.New("product does not exist")
)
