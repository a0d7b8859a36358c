package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	components []LowStockComponent
}

func (s *staticSource) LowStockComponents(ctx context.Context) ([]LowStockComponent, error) {
	return s.components, nil
}

type capturedAlert struct {
	employeeID int64
	kind       string
	entityID   int64
}

type capturingNotifier struct {
	alerts []capturedAlert
}

func (n *capturingNotifier) Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error {
	n.alerts = append(n.alerts, capturedAlert{employeeID: employeeID, kind: kind, entityID: entityID})
	return nil
}

func TestLowStockScanNotifiesPerComponent(t *testing.T) {
	source := &staticSource{components: []LowStockComponent{
		{ComponentID: 7, Code: "CMP-007", Name: "Bearing", Total: 3, MinLevel: 10},
		{ComponentID: 9, Code: "CMP-009", Name: "Shaft", Total: 0, MinLevel: 5},
	}}
	notifier := &capturingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewLowStockScanJob(source, notifier, logger)

	task, err := NewLowStockScanTask(42)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, notifier.alerts, 2)
	for _, alert := range notifier.alerts {
		require.Equal(t, int64(42), alert.employeeID)
		require.Equal(t, "LOW_STOCK", alert.kind)
	}
	require.Equal(t, int64(7), notifier.alerts[0].entityID)
	require.Equal(t, int64(9), notifier.alerts[1].entityID)
}

func TestLowStockScanRejectsBadPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewLowStockScanJob(&staticSource{}, &capturingNotifier{}, logger)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewLowStockScanTask(0)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
