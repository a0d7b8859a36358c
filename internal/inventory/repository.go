package inventory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock and ledger data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger Ledger
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	ledger Ledger
}

// WithTx executes the callback inside a read-committed transaction;
// FOR UPDATE row locks serialize concurrent writers on the same row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
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

// GetStockLevels lists stock rows for a warehouse ordered by component.
func (r *Repository) GetStockLevels(ctx context.Context, warehouseID int64) ([]ComponentStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, component_id, quantity, updated_at
FROM component_stocks WHERE warehouse_id=$1 ORDER BY component_id ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []ComponentStock{}
	for rows.Next() {
		var stock ComponentStock
		if err := rows.Scan(&stock.WarehouseID, &stock.ComponentID, &stock.Quantity, &stock.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, stock)
	}
	return stocks, rows.Err()
}

// ListTransactions returns ledger rows matching the filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT id, tx_type, warehouse_id, component_id, product_instance_id, material_request_id, quantity, actor_id, note, created_at
FROM inventory_transactions WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.WarehouseID != 0 {
		argCount++
		query += ` AND warehouse_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.WarehouseID)
	}
	if filter.ComponentID != 0 {
		argCount++
		query += ` AND component_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ComponentID)
	}
	if filter.Type != "" {
		argCount++
		query += ` AND tx_type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		argCount++
		query += ` AND created_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		query += ` AND created_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Transaction{}
	for rows.Next() {
		var entry Transaction
		var txType string
		if err := rows.Scan(&entry.ID, &txType, &entry.WarehouseID, &entry.ComponentID,
			&entry.ProductInstanceID, &entry.MaterialRequestID, &entry.Quantity,
			&entry.ActorID, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Type = TransactionType(txType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, warehouseID, componentID int64) (ComponentStock, error) {
	return r.ledger.StockForUpdate(ctx, r.tx, warehouseID, componentID)
}

func (r *txRepository) UpsertStock(ctx context.Context, stock ComponentStock) error {
	return r.ledger.saveStock(ctx, r.tx, stock)
}

func (r *txRepository) InsertTransaction(ctx context.Context, entry Transaction) (int64, error) {
	return r.ledger.Append(ctx, r.tx, entry)
}
