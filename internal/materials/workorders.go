package materials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// WorkOrderReader reads the few work-order fields the engine needs without
// importing the work-order module.
type WorkOrderReader struct {
	pool *pgxpool.Pool
}

func NewWorkOrderReader(pool *pgxpool.Pool) *WorkOrderReader {
	return &WorkOrderReader{pool: pool}
}

func (r *WorkOrderReader) WorkOrderRef(ctx context.Context, id int64) (WorkOrderRef, error) {
	var ref WorkOrderRef
	err := r.pool.QueryRow(ctx, `SELECT id, code, product_id, quantity, status FROM work_orders WHERE id = $1`, id).
		Scan(&ref.ID, &ref.Code, &ref.ProductID, &ref.Quantity, &ref.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrderRef{}, shared.ErrNotFound
	}
	return ref, err
}
