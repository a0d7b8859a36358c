package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries notification dispatch tasks.
	QueueNotifications = "notifications"

	// TaskLowStockScan walks warehouse stock looking for components below
	// their minimum level.
	TaskLowStockScan = "stock:lowscan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LowStockScanPayload configures one low stock scan run.
type LowStockScanPayload struct {
	// RecipientID is the employee who receives the low stock alerts.
	RecipientID int64 `json:"recipient_id"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(recipientID int64) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{RecipientID: recipientID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// IdempotencyCleanupPayload configures the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
