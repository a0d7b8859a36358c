package notifications

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskDispatch fans a stored notification out to external channels
// (email, chat webhooks). The HTTP path only writes the row; delivery
// happens on the worker.
const TaskDispatch = "notification:dispatch"

type DispatchPayload struct {
	NotificationID int64  `json:"notification_id"`
	EmployeeID     int64  `json:"employee_id"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

func NewDispatchTask(n Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(DispatchPayload{
		NotificationID: n.ID,
		EmployeeID:     n.EmployeeID,
		Kind:           n.Kind,
		Title:          n.Title,
		Message:        n.Message,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatch, payload, asynq.MaxRetry(5)), nil
}
