package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LowStockComponent is one component whose total stock dropped below its
// minimum level.
type LowStockComponent struct {
	ComponentID int64
	Code        string
	Name        string
	Total       int64
	MinLevel    int64
}

// StockSource reads the stock levels the scan compares.
type StockSource interface {
	LowStockComponents(ctx context.Context) ([]LowStockComponent, error)
}

// NotifierPort delivers the alert to an employee.
type NotifierPort interface {
	Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error
}

// LowStockScanJob sums stock per component across warehouses and alerts the
// recipient for every component under its minimum level.
type LowStockScanJob struct {
	Source   StockSource
	Notifier NotifierPort
	Logger   *slog.Logger
	kind     string
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(source StockSource, notifier NotifierPort, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Notifier: notifier, Logger: logger, kind: "LOW_STOCK"}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RecipientID <= 0 {
		return asynq.SkipRetry
	}

	start := time.Now()
	logger := j.logger()
	logger.Info("starting low stock scan", slog.Int64("recipient_id", payload.RecipientID))

	low, err := j.Source.LowStockComponents(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	var notifyErr error
	for _, c := range low {
		logger.Warn("component below minimum stock",
			slog.Int64("component_id", c.ComponentID),
			slog.String("code", c.Code),
			slog.Int64("total", c.Total),
			slog.Int64("min_level", c.MinLevel),
		)
		if j.Notifier == nil {
			continue
		}
		err := j.Notifier.Notify(ctx, payload.RecipientID, j.kind,
			fmt.Sprintf("Low stock: %s", c.Code),
			fmt.Sprintf("%s (%s) holds %d units across all warehouses, minimum is %d", c.Name, c.Code, c.Total, c.MinLevel),
			"component", c.ComponentID)
		if err != nil {
			notifyErr = err
			logger.Error("notify low stock", slog.Any("error", err), slog.Int64("component_id", c.ComponentID))
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("components", len(low)),
		slog.Duration("duration", time.Since(start)),
	)
	return notifyErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

// PGStockSource reads stock levels from PostgreSQL.
type PGStockSource struct {
	Pool *pgxpool.Pool
}

func (s *PGStockSource) LowStockComponents(ctx context.Context) ([]LowStockComponent, error) {
	rows, err := s.Pool.Query(ctx, `SELECT c.id, c.code, c.name, COALESCE(SUM(cs.quantity), 0) AS total, c.min_stock_level
FROM components c
LEFT JOIN component_stocks cs ON cs.component_id = c.id
WHERE c.min_stock_level > 0
GROUP BY c.id, c.code, c.name, c.min_stock_level
HAVING COALESCE(SUM(cs.quantity), 0) < c.min_stock_level
ORDER BY c.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockComponent
	for rows.Next() {
		var c LowStockComponent
		if err := rows.Scan(&c.ComponentID, &c.Code, &c.Name, &c.Total, &c.MinLevel); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
