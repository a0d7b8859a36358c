package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/foundry-mes/foundry-mes/internal/notifications"
)

// NotificationDispatchJob delivers a stored notification to external
// channels. Delivery currently logs the message; the SMTP integration hangs
// off this handler once the mail relay is provisioned.
type NotificationDispatchJob struct {
	Logger *slog.Logger
}

// NewNotificationDispatchJob initialises the dispatch handler.
func NewNotificationDispatchJob(logger *slog.Logger) *NotificationDispatchJob {
	return &NotificationDispatchJob{Logger: logger}
}

// Handle processes one dispatch task.
func (j *NotificationDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("notification dispatch: handler not configured")
	}
	var payload notifications.DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	j.logger().Info("dispatching notification",
		slog.Int64("notification_id", payload.NotificationID),
		slog.Int64("employee_id", payload.EmployeeID),
		slog.String("kind", payload.Kind),
		slog.String("title", payload.Title),
	)
	return nil
}

func (j *NotificationDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", notifications.TaskDispatch))
	}
	return slog.Default().With(slog.String("job", notifications.TaskDispatch))
}
