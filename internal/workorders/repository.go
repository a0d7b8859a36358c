package workorders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Repository persists work orders, batches and instances in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	writer materials.Writer
	ledger inventory.Ledger
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	writer materials.Writer
	ledger inventory.Ledger
}

// WithTx executes the callback inside a read-committed transaction;
// FOR UPDATE row locks serialize concurrent writers on the same row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, writer: r.writer, ledger: r.ledger}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `wo.id, wo.code, wo.product_id, p.code, wo.production_request_id, wo.quantity, wo.assigned_line, wo.status, wo.created_by, wo.started_at, wo.completed_at, wo.created_at, wo.updated_at`

func (r *Repository) Get(ctx context.Context, id int64) (WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+`
FROM work_orders wo JOIN products p ON p.id = wo.product_id WHERE wo.id = $1`, id)
	return scanOrder(row)
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM work_orders wo JOIN products p ON p.id = wo.product_id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM work_orders wo WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Status != "" {
		argCount++
		clause := ` AND wo.status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argCount++
	query += ` ORDER BY wo.created_at DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filter.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (filter.Page-1)*filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []WorkOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func (r *Repository) GetBatch(ctx context.Context, workOrderID int64) (ProductionBatch, []ProductInstance, error) {
	var batch ProductionBatch
	err := r.pool.QueryRow(ctx, `SELECT id, work_order_id, code, production_date, expiry_date
FROM production_batches WHERE work_order_id = $1`, workOrderID).
		Scan(&batch.ID, &batch.WorkOrderID, &batch.Code, &batch.ProductionDate, &batch.ExpiryDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionBatch{}, nil, shared.ErrNotFound
	}
	if err != nil {
		return ProductionBatch{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, batch_id, serial_number, status, created_at
FROM product_instances WHERE batch_id = $1 ORDER BY serial_number`, batch.ID)
	if err != nil {
		return ProductionBatch{}, nil, err
	}
	defer rows.Close()
	var instances []ProductInstance
	for rows.Next() {
		var instance ProductInstance
		var status string
		if err := rows.Scan(&instance.ID, &instance.ProductID, &instance.BatchID, &instance.SerialNumber, &status, &instance.CreatedAt); err != nil {
			return ProductionBatch{}, nil, err
		}
		instance.Status = InstanceStatus(status)
		instances = append(instances, instance)
	}
	return batch, instances, rows.Err()
}

func (r *txRepository) GetRequestForUpdate(ctx context.Context, id int64) (RequestRef, error) {
	var ref RequestRef
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, status FROM production_requests WHERE id = $1 FOR UPDATE`, id).
		Scan(&ref.ID, &ref.ProductID, &ref.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return RequestRef{}, shared.ErrNotFound
	}
	return ref, err
}

// NextCode draws the next work-order number from a dedicated sequence so
// codes stay unique under concurrent creation.
func (r *txRepository) NextCode(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('work_order_code_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("WO-%06d", n), nil
}

func (r *txRepository) InsertWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO work_orders (code, product_id, production_request_id, quantity, assigned_line, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		order.Code, order.ProductID, order.ProductionRequestID, order.Quantity, order.AssignedLine,
		string(order.Status), order.CreatedBy).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return WorkOrder{}, shared.ErrDuplicateCode
		}
		return WorkOrder{}, err
	}
	return order, nil
}

func (r *txRepository) InsertFulfillment(ctx context.Context, requestID, workOrderID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO production_request_fulfillments (production_request_id, work_order_id, created_at)
VALUES ($1, $2, NOW())`, requestID, workOrderID)
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+`
FROM work_orders wo JOIN products p ON p.id = wo.product_id WHERE wo.id = $1 FOR UPDATE OF wo`, id)
	return scanOrder(row)
}

func (r *txRepository) SetStarted(ctx context.Context, id int64, at time.Time) error {
	return r.setStatus(ctx, id, StatusPlanned, StatusInProgress, "started_at", at)
}

func (r *txRepository) SetCompleted(ctx context.Context, id int64, at time.Time) error {
	return r.setStatus(ctx, id, StatusInProgress, StatusCompleted, "completed_at", at)
}

func (r *txRepository) setStatus(ctx context.Context, id int64, from, to Status, tsColumn string, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE work_orders SET status = $1, `+tsColumn+` = $2, updated_at = NOW()
WHERE id = $3 AND status = $4`, string(to), at, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertMaterialRequest(ctx context.Context, request materials.MaterialRequest) (materials.MaterialRequest, error) {
	return r.writer.Insert(ctx, r.tx, request)
}

func (r *txRepository) InsertBatch(ctx context.Context, batch ProductionBatch) (ProductionBatch, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO production_batches (work_order_id, code, production_date, expiry_date)
VALUES ($1, $2, $3, $4) RETURNING id`,
		batch.WorkOrderID, batch.Code, batch.ProductionDate, batch.ExpiryDate).Scan(&batch.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ProductionBatch{}, shared.ErrDuplicateCode
		}
		return ProductionBatch{}, err
	}
	return batch, nil
}

func (r *txRepository) InsertInstance(ctx context.Context, instance ProductInstance) (ProductInstance, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO product_instances (product_id, batch_id, serial_number, status, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`,
		instance.ProductID, instance.BatchID, instance.SerialNumber, string(instance.Status)).
		Scan(&instance.ID, &instance.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ProductInstance{}, shared.ErrDuplicateCode
		}
		return ProductInstance{}, err
	}
	return instance, nil
}

func (r *txRepository) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	return r.ledger.Append(ctx, r.tx, entry)
}

func scanOrder(row pgx.Row) (WorkOrder, error) {
	var order WorkOrder
	var status string
	err := row.Scan(&order.ID, &order.Code, &order.ProductID, &order.ProductCode, &order.ProductionRequestID,
		&order.Quantity, &order.AssignedLine, &status, &order.CreatedBy,
		&order.StartedAt, &order.CompletedAt, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return WorkOrder{}, err
	}
	order.Status = Status(status)
	return order, nil
}
