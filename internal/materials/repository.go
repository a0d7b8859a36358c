package materials

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Repository persists material requests in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	writer Writer
	ledger inventory.Ledger
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	writer Writer
	ledger inventory.Ledger
}

// WithTx executes the callback inside a read-committed transaction. A
// writer blocked on FOR UPDATE re-reads the committed row once the lock
// holder finishes, so a lost approve race fails the status guard instead
// of erroring on serialization.
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

func (r *Repository) Get(ctx context.Context, id int64) (MaterialRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, work_order_id, warehouse_id, status, requester_id, approver_id, approved_at, created_at, updated_at
FROM material_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if err != nil {
		return MaterialRequest{}, err
	}
	request.Lines, err = r.lines(ctx, r.pool, id)
	return request, err
}

func (r *Repository) GetSlip(ctx context.Context, id int64) (DispatchSlip, error) {
	var slip DispatchSlip
	err := r.pool.QueryRow(ctx, `SELECT mr.id, wo.code, mr.warehouse_id, mr.approver_id, mr.approved_at
FROM material_requests mr JOIN work_orders wo ON wo.id = mr.work_order_id
WHERE mr.id = $1 AND mr.status = 'APPROVED'`, id).
		Scan(&slip.RequestID, &slip.WorkOrderCode, &slip.WarehouseID, &slip.ApproverID, &slip.ApprovedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DispatchSlip{}, ErrNotApproved
	}
	if err != nil {
		return DispatchSlip{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT c.code, c.name, c.unit, l.quantity
FROM material_request_lines l JOIN components c ON c.id = l.component_id
WHERE l.request_id = $1 ORDER BY c.code`, id)
	if err != nil {
		return DispatchSlip{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SlipLine
		if err := rows.Scan(&line.ComponentCode, &line.ComponentName, &line.Unit, &line.Quantity); err != nil {
			return DispatchSlip{}, err
		}
		slip.Lines = append(slip.Lines, line)
	}
	return slip, rows.Err()
}

func (r *Repository) List(ctx context.Context, status Status, page, limit int) ([]MaterialRequest, int, error) {
	query := `SELECT id, work_order_id, warehouse_id, status, requester_id, approver_id, approved_at, created_at, updated_at
FROM material_requests WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM material_requests WHERE 1=1`
	args := []any{}
	argCount := 0

	if status != "" {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, string(status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argCount++
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []MaterialRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, request)
	}
	return requests, total, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) lines(ctx context.Context, q queryer, requestID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.request_id, l.component_id, c.code, c.name, l.quantity
FROM material_request_lines l JOIN components c ON c.id = l.component_id
WHERE l.request_id = $1 ORDER BY c.code`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ComponentID, &line.ComponentCode, &line.ComponentName, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (MaterialRequest, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, work_order_id, warehouse_id, status, requester_id, approver_id, approved_at, created_at, updated_at
FROM material_requests WHERE id = $1 FOR UPDATE`, id)
	request, err := scanRequest(row)
	if err != nil {
		return MaterialRequest{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, request_id, component_id, quantity FROM material_request_lines WHERE request_id = $1 ORDER BY component_id`, id)
	if err != nil {
		return MaterialRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ComponentID, &line.Quantity); err != nil {
			return MaterialRequest{}, err
		}
		request.Lines = append(request.Lines, line)
	}
	return request, rows.Err()
}

func (r *txRepository) RequestExists(ctx context.Context, workOrderID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM material_requests WHERE work_order_id = $1)`, workOrderID).
		Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertRequest(ctx context.Context, request MaterialRequest) (MaterialRequest, error) {
	return r.writer.Insert(ctx, r.tx, request)
}

func (r *txRepository) SetApproved(ctx context.Context, id, approverID int64, approvedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE material_requests SET status = 'APPROVED', approver_id = $1, approved_at = $2, updated_at = NOW()
WHERE id = $3 AND status = 'PENDING'`, approverID, approvedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeductStock(ctx context.Context, warehouseID, componentID, qty int64) (inventory.ComponentStock, error) {
	return r.ledger.Deduct(ctx, r.tx, warehouseID, componentID, qty)
}

func (r *txRepository) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	return r.ledger.Append(ctx, r.tx, entry)
}

func scanRequest(row pgx.Row) (MaterialRequest, error) {
	var request MaterialRequest
	var status string
	err := row.Scan(&request.ID, &request.WorkOrderID, &request.WarehouseID, &status,
		&request.RequesterID, &request.ApproverID, &request.ApprovedAt, &request.CreatedAt, &request.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialRequest{}, shared.ErrNotFound
	}
	if err != nil {
		return MaterialRequest{}, err
	}
	request.Status = Status(status)
	return request, nil
}
