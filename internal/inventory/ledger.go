package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ledger bundles the stock and transaction statements the engine modules run
// inside their own database transactions. Keeping these on pgx.Tx lets a
// material-request approval lock stock rows, append ledger rows and flip the
// request status in one atomic unit.
type Ledger struct{}

// StockForUpdate locks and returns one stock row. Missing rows come back as
// a zero-quantity row plus ErrStockNotFound.
func (Ledger) StockForUpdate(ctx context.Context, tx pgx.Tx, warehouseID, componentID int64) (ComponentStock, error) {
	row := tx.QueryRow(ctx, `SELECT warehouse_id, component_id, quantity, updated_at
FROM component_stocks WHERE warehouse_id=$1 AND component_id=$2 FOR UPDATE`, warehouseID, componentID)
	var stock ComponentStock
	if err := row.Scan(&stock.WarehouseID, &stock.ComponentID, &stock.Quantity, &stock.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ComponentStock{WarehouseID: warehouseID, ComponentID: componentID}, ErrStockNotFound
		}
		return ComponentStock{}, err
	}
	return stock, nil
}

// Deduct removes qty from a locked stock row, failing with
// InsufficientStockError when the row would go negative.
func (l Ledger) Deduct(ctx context.Context, tx pgx.Tx, warehouseID, componentID, qty int64) (ComponentStock, error) {
	if qty <= 0 {
		return ComponentStock{}, ErrInvalidQuantity
	}
	stock, err := l.StockForUpdate(ctx, tx, warehouseID, componentID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return ComponentStock{}, err
	}
	if stock.Quantity < qty {
		return ComponentStock{}, &InsufficientStockError{ComponentID: componentID, Needed: qty, Available: stock.Quantity}
	}
	stock.Quantity -= qty
	if err := l.saveStock(ctx, tx, stock); err != nil {
		return ComponentStock{}, err
	}
	return stock, nil
}

// Credit adds qty to a stock row, creating it when absent.
func (l Ledger) Credit(ctx context.Context, tx pgx.Tx, warehouseID, componentID, qty int64) (ComponentStock, error) {
	if qty <= 0 {
		return ComponentStock{}, ErrInvalidQuantity
	}
	stock, err := l.StockForUpdate(ctx, tx, warehouseID, componentID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return ComponentStock{}, err
	}
	stock.Quantity += qty
	if err := l.saveStock(ctx, tx, stock); err != nil {
		return ComponentStock{}, err
	}
	return stock, nil
}

// Append inserts one ledger row and returns its id. Ledger rows are
// insert-only; there is no update or delete statement on purpose.
func (Ledger) Append(ctx context.Context, tx pgx.Tx, entry Transaction) (int64, error) {
	if entry.Quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO inventory_transactions
(tx_type, warehouse_id, component_id, product_instance_id, material_request_id, quantity, actor_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		string(entry.Type), entry.WarehouseID, entry.ComponentID, entry.ProductInstanceID,
		entry.MaterialRequestID, entry.Quantity, entry.ActorID, entry.Note, createdAt).Scan(&id)
	return id, err
}

func (Ledger) saveStock(ctx context.Context, tx pgx.Tx, stock ComponentStock) error {
	_, err := tx.Exec(ctx, `INSERT INTO component_stocks (warehouse_id, component_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (warehouse_id, component_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		stock.WarehouseID, stock.ComponentID, stock.Quantity)
	return err
}
