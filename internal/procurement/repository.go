package procurement

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

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger inventory.Ledger
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	ledger inventory.Ledger
}

// WithTx executes the callback inside a read-committed transaction;
// FOR UPDATE row locks serialize concurrent writers on the same row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, ledger: r.ledger}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, supplier_id, warehouse_id, status, created_by, approver_id, received_at, note, created_at, updated_at`

func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Lines, err = r.lines(ctx, id)
	return order, err
}

func (r *Repository) List(ctx context.Context, status Status, page, limit int) ([]PurchaseOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
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

	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func (r *Repository) lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, component_id, quantity, unit_price
FROM purchase_order_lines WHERE order_id = $1 ORDER BY component_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ComponentID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, component_id, quantity, unit_price
FROM purchase_order_lines WHERE order_id = $1 ORDER BY component_id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ComponentID, &line.Quantity, &line.UnitPrice); err != nil {
			return PurchaseOrder{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (supplier_id, warehouse_id, status, created_by, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		order.SupplierID, order.WarehouseID, string(order.Status), order.CreatedBy, order.Note).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, component_id, quantity, unit_price)
VALUES ($1, $2, $3, $4) RETURNING id`, order.ID, line.ComponentID, line.Quantity, line.UnitPrice).Scan(&line.ID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	return order, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetApproved(ctx context.Context, id, approverID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = 'APPROVED', approver_id = $1, updated_at = NOW()
WHERE id = $2 AND status = 'SUBMITTED'`, approverID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetReceived(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = 'RECEIVED', received_at = $1, updated_at = NOW()
WHERE id = $2 AND status = 'APPROVED'`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CreditStock(ctx context.Context, warehouseID, componentID, qty int64) (inventory.ComponentStock, error) {
	return r.ledger.Credit(ctx, r.tx, warehouseID, componentID, qty)
}

func (r *txRepository) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	return r.ledger.Append(ctx, r.tx, entry)
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var order PurchaseOrder
	var status string
	err := row.Scan(&order.ID, &order.SupplierID, &order.WarehouseID, &status, &order.CreatedBy,
		&order.ApproverID, &order.ReceivedAt, &order.Note, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Status = Status(status)
	return order, nil
}
