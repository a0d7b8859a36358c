package notifications

import (
	"errors"
	"time"
)

// Kinds used by the engine modules when they notify an employee.
const (
	KindRequestDecision = "REQUEST_DECISION"
	KindMaterialRelease = "MATERIAL_RELEASE"
	KindLowStock        = "LOW_STOCK"
)

// Notification is one in-app message addressed to an employee.
type Notification struct {
	ID         int64      `json:"id"`
	EmployeeID int64      `json:"employee_id"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Entity     string     `json:"entity,omitempty"`
	EntityID   int64      `json:"entity_id,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

var ErrNotRecipient = errors.New("notification belongs to another employee")
