package stocktake

import (
	"errors"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

var machine = statemachine.New(map[SessionStatus][]SessionStatus{
	SessionInProgress: {SessionCompleted},
}, SessionCompleted)

// Session is one physical counting round for a warehouse. Its items are a
// snapshot of system quantities taken at open time; live stock is never
// touched by the session itself.
type Session struct {
	ID          int64         `json:"id"`
	WarehouseID int64         `json:"warehouse_id"`
	Status      SessionStatus `json:"status"`
	OpenedBy    int64         `json:"opened_by"`
	OpenedAt    time.Time     `json:"opened_at"`
	FinalizedAt *time.Time    `json:"finalized_at,omitempty"`
	Items       []Item        `json:"items,omitempty"`
}

// Item is one component's counted row. ActualQuantity stays nil until a
// count is recorded for it.
type Item struct {
	ID             int64  `json:"id"`
	SessionID      int64  `json:"session_id"`
	ComponentID    int64  `json:"component_id"`
	SystemQuantity int64  `json:"system_quantity"`
	ActualQuantity *int64 `json:"actual_quantity,omitempty"`
	Note           string `json:"note,omitempty"`
}

type Count struct {
	ComponentID    int64 `json:"component_id"`
	ActualQuantity int64 `json:"actual_quantity"`
}

// VarianceLine reports one non-zero difference between counted and system
// quantity.
type VarianceLine struct {
	ComponentID    int64 `json:"component_id"`
	SystemQuantity int64 `json:"system_quantity"`
	ActualQuantity int64 `json:"actual_quantity"`
	Variance       int64 `json:"variance"`
}

const unexpectedItemNote = "unexpected item: counted with no system stock"

var (
	ErrSessionAlreadyActive = errors.New("warehouse already has an active stocktake session")
	ErrSessionClosed        = errors.New("stocktake session is not in progress")
	ErrIncompleteCount      = errors.New("stocktake has uncounted items")
	ErrUnexpectedComponent  = errors.New("component was not part of the stocktake snapshot")
	ErrNegativeCount        = errors.New("counted quantity cannot be negative")
)
