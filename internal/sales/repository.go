package sales

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

// Repository persists sales orders in PostgreSQL.
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

const orderColumns = `id, customer_name, status, created_by, fulfilled_at, note, created_at, updated_at`

func (r *Repository) Get(ctx context.Context, id int64) (SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return SalesOrder{}, err
	}
	order.Lines, err = scanLines(r.pool.Query(ctx, lineQuery, id))
	return order, err
}

func (r *Repository) List(ctx context.Context, status Status, page, limit int) ([]SalesOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM sales_orders WHERE 1=1`
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

	var orders []SalesOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// GetShipment lists the instances shipped against one order.
func (r *Repository) GetShipment(ctx context.Context, orderID int64) (Shipment, error) {
	if _, err := r.Get(ctx, orderID); err != nil {
		return Shipment{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, serial_number
FROM product_instances WHERE sales_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return Shipment{}, err
	}
	defer rows.Close()
	shipment := Shipment{OrderID: orderID}
	for rows.Next() {
		var unit ShippedUnit
		if err := rows.Scan(&unit.InstanceID, &unit.ProductID, &unit.SerialNumber); err != nil {
			return Shipment{}, err
		}
		shipment.Units = append(shipment.Units, unit)
	}
	return shipment, rows.Err()
}

const lineQuery = `SELECT id, order_id, product_id, quantity, unit_price
FROM sales_order_lines WHERE order_id = $1 ORDER BY product_id`

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return SalesOrder{}, err
	}
	order.Lines, err = scanLines(r.tx.Query(ctx, lineQuery, id))
	return order, err
}

func (r *txRepository) Insert(ctx context.Context, order SalesOrder) (SalesOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders (customer_name, status, created_by, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		order.CustomerName, string(order.Status), order.CreatedBy, order.Note).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return SalesOrder{}, err
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO sales_order_lines (order_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4) RETURNING id`, order.ID, line.ProductID, line.Quantity, line.UnitPrice).Scan(&line.ID); err != nil {
			return SalesOrder{}, err
		}
	}
	return order, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetFulfilled(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status = 'FULFILLED', fulfilled_at = $1, updated_at = NOW()
WHERE id = $2 AND status = 'CONFIRMED'`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) OldestInStock(ctx context.Context, productID, limit int64) ([]InstanceRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, serial_number
FROM product_instances WHERE product_id = $1 AND status = 'IN_STOCK'
ORDER BY created_at, id LIMIT $2 FOR UPDATE`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []InstanceRef
	for rows.Next() {
		var ref InstanceRef
		if err := rows.Scan(&ref.ID, &ref.ProductID, &ref.SerialNumber); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *txRepository) MarkShipped(ctx context.Context, instanceID, orderID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE product_instances SET status = 'SHIPPED', sales_order_id = $1
WHERE id = $2 AND status = 'IN_STOCK'`, orderID, instanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	return r.ledger.Append(ctx, r.tx, entry)
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var order SalesOrder
	var status string
	err := row.Scan(&order.ID, &order.CustomerName, &status, &order.CreatedBy,
		&order.FulfilledAt, &order.Note, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return SalesOrder{}, err
	}
	order.Status = Status(status)
	return order, nil
}

func scanLines(rows pgx.Rows, err error) ([]Line, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
